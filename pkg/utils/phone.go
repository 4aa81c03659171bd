package utils

import "strings"

// NormalizeE164 normalises a dialable number to E.164.
// Ten-digit numbers are treated as NANP. Returns "" when the input cannot be normalised.
func NormalizeE164(input string) string {
	if input == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range input {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "+") && len(digits) >= 10 && len(digits) <= 16:
		return digits
	case strings.HasPrefix(digits, "1") && len(digits) == 11:
		return "+" + digits
	case len(digits) == 10 && !strings.HasPrefix(digits, "+"):
		return "+1" + digits
	}
	return ""
}
