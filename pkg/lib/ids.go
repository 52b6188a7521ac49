package lib

import "github.com/google/uuid"

// NewID returns a random UUID v4 string, used to correlate log lines of one
// backup run or one console subscription.
func NewID() string {
	return uuid.NewString()
}
