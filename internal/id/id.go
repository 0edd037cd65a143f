package id

import "github.com/google/uuid"

// New returns a time-ordered identifier so history rows sort by creation.
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}
