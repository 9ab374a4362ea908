package utils

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordID_IsTimeOrdered(t *testing.T) {
	first := NewRecordID()
	second := NewRecordID()

	assert.Equal(t, uuid.Version(7), first.Version())
	assert.NotEqual(t, first, second)
	assert.Less(t, first.String(), second.String(), "later flows sort after earlier ones")
}

func TestNewRecordID_FallsBackToRandom(t *testing.T) {
	orig := newUUIDv7
	t.Cleanup(func() { newUUIDv7 = orig })
	newUUIDv7 = func() (uuid.UUID, error) {
		return uuid.Nil, errors.New("clock unavailable")
	}

	id := NewRecordID()
	require.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, uuid.Version(4), id.Version())
}
