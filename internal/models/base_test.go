package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreate(t *testing.T) {
	t.Parallel()

	var record BaseModel
	require.NoError(t, record.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, record.ID)

	// Caller-supplied IDs survive.
	preset := BaseModel{ID: uuid.New()}
	want := preset.ID
	require.NoError(t, preset.BeforeCreate(nil))
	assert.Equal(t, want, preset.ID)
}
