package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks all but the last two digits of a phone number.
// "+1 (415) 555-0134" → "***34"
func RedactPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 2 {
		return "***"
	}
	// Keep the trailing two digits only
	kept := 0
	out := make([]byte, 0, 5)
	for i := len(phone) - 1; i >= 0 && kept < 2; i-- {
		if phone[i] >= '0' && phone[i] <= '9' {
			out = append([]byte{phone[i]}, out...)
			kept++
		}
	}
	return "***" + string(out)
}
