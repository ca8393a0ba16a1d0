package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new time-ordered unique identifier. Falls back to a
// random v4 id if the v7 generator fails.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
