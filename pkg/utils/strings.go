package utils

import "strings"

// NormalizeSubjectID normalizes an email-like subject identifier.
func NormalizeSubjectID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
