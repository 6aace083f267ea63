package logger

import "strings"

// RedactRecipient masks a notification recipient for safe logging.
// Email addresses keep the first two characters of the local part and the
// full domain: "john.doe@example.com" -> "jo***@example.com". Short local
// parts are fully masked. Anything else (phone numbers, chat handles,
// in-app user IDs) keeps only its last four characters.
func RedactRecipient(recipient string) string {
	if strings.Contains(recipient, "@") {
		parts := strings.Split(recipient, "@")
		if len(parts) != 2 {
			return "***@***"
		}
		name := parts[0]
		if len(name) > 2 {
			return name[:2] + "***@" + parts[1]
		}
		return "***@" + parts[1]
	}
	if len(recipient) > 4 {
		return "***" + recipient[len(recipient)-4:]
	}
	return "****"
}
