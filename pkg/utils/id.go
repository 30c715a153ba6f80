package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateConnectionID generates a unique control channel connection ID
func GenerateConnectionID() string {
	return GenerateID("conn")
}

// GenerateSessionID generates a unique work session ID
func GenerateSessionID() string {
	return GenerateID("ws")
}

// GenerateAuditID generates a unique audit entry ID
func GenerateAuditID() string {
	return GenerateID("audit")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}
