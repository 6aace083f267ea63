package rule

import "errors"

// Sentinel errors for the rule service layer.
var (
	ErrNotFound = errors.New("rule not found")
	// ErrInvalid wraps all creation/update-time validation failures. Invalid
	// rules are rejected before persistence, never at evaluation time.
	ErrInvalid = errors.New("invalid rule")
	// ErrCompleted marks attempts to mutate a completed rule. Completed is
	// terminal; re-activating requires creating a new rule.
	ErrCompleted = errors.New("rule is completed")
)
