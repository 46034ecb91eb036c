package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "mailomat/pkg/domain"
)

func TestAccessorsDefaults(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, RequestID(ctx))
	assert.True(t, OperatorID(ctx).IsNil())
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	op := id.NewOperatorID()

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithOperatorID(ctx, op)
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, op, OperatorID(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
