package utils

import (
	"github.com/google/uuid"
)

// NewCommandID generates a unique id for a submitted command.
func NewCommandID() string {
	return uuid.NewString()
}
