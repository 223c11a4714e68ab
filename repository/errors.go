package repository

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUniqueViolation is returned when an insert or update breaks
	// a unique constraint (setlist name, stem file path).
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// isUniqueViolation reports whether err is a sqlite unique-constraint
// failure. The driver does not export a typed error for this.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
