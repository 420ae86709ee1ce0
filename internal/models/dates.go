package models

import "strings"

// DatePart drops any time-of-day suffix from an ISO date string, so
// "2024-01-15T00:00:00" becomes "2024-01-15".
func DatePart(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, 'T'); i >= 0 {
		return value[:i]
	}
	return value
}
