package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// SubjectIDRegex accepts email-like ids and plain slugs used by capture clients.
	SubjectIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+@\-]+$`)
)

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateSubjectID validates a source or viewer identifier
func ValidateSubjectID(id string) error {
	if id == "" {
		return fmt.Errorf("subject id is required")
	}
	if len(id) > 254 {
		return fmt.Errorf("subject id is too long (max 254 characters)")
	}
	if !SubjectIDRegex.MatchString(id) {
		return fmt.Errorf("invalid subject id format")
	}
	return nil
}

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// ValidatePassword validates password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password is too long (max %d bytes)", MaxPasswordBytes)
	}
	return nil
}

// ValidateIntervalMinutes checks minutes against the allowed capture cadences.
func ValidateIntervalMinutes(minutes int, allowed []int) error {
	for _, m := range allowed {
		if m == minutes {
			return nil
		}
	}
	return fmt.Errorf("intervalMinutes must be one of %s", joinInts(allowed))
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
