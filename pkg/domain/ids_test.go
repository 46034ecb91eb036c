package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mailomat/pkg/domain-errors"
)

func TestParseSubscriberID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSubscriberID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSubscriberID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSubscriberID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseSubscriberID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, SubscriberID(raw), id)
		assert.Equal(t, raw.String(), id.String())
	})
}

func TestParseOperatorID_Injection(t *testing.T) {
	inputs := []string{
		"'; DROP TABLE subscriptions;--",
		"550e8400-e29b-41d4-a716-446655440000\x00suffix",
		" 550e8400-e29b-41d4-a716-446655440000",
	}
	for _, in := range inputs {
		_, err := ParseOperatorID(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestNewIDsAreNotNil(t *testing.T) {
	assert.False(t, NewSubscriberID().IsNil())
	assert.False(t, NewOperatorID().IsNil())
	assert.True(t, SubscriberID{}.IsNil())
}
