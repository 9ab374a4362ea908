package utils

import (
	"github.com/google/uuid"
)

var newUUIDv7 = uuid.NewV7

// NewRecordID returns a time-ordered id for a settlement flow or one of its
// audit events. A random v4 id is used if the v7 generator fails.
func NewRecordID() uuid.UUID {
	id, err := newUUIDv7()
	if err != nil {
		return uuid.New()
	}
	return id
}
