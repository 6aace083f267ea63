// Package rule implements automation rule lifecycle management.
//
// The service layer owns all validation and status-transition logic for
// rules, their conditions, actions, schedules, and notification configs. It
// depends on the Repository interface defined in this package and should
// never import from api/.
//
// Repository implementations live in repository/postgres/ (durable store)
// and rediscache/ (read-through cache decorator).
package rule
