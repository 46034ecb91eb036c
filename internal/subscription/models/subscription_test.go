package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPendingConfirmation.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusConfirmed.CanTransitionTo(StatusConfirmed), "confirming twice is a no-op")
	assert.False(t, StatusConfirmed.CanTransitionTo(StatusPendingConfirmation))
	assert.False(t, StatusPendingConfirmation.CanTransitionTo(StatusPendingConfirmation))
	assert.False(t, Status("unknown").CanTransitionTo(StatusConfirmed))
}
