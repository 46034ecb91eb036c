package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPublisher_StampsAndDelivers(t *testing.T) {
	store := NewInMemoryStore()
	pub, worker := NewPublisher(store, 8, WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionSubscriptionRequested, Subject: "sub-1"}))
	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionNewsletterDispatched, Count: 3}))
	assert.ErrorIs(t, pub.Emit(context.Background(), Event{}), ErrMissingAction)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, worker.Run(ctx), context.Canceled)

	events := store.ListAll()
	require.Len(t, events, 2)
	assert.Equal(t, CategoryCompliance, events[0].Category)
	assert.Equal(t, fixedNow, events[0].Timestamp)
	assert.Equal(t, CategoryOperations, events[1].Category)
	assert.Equal(t, 3, events[1].Count)
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	store := NewInMemoryStore()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub, worker := NewPublisher(store, 1, WithLogger(logger))

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionOperatorAuthFailed}))
	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionOperatorAuthFailed}))
	assert.Contains(t, buf.String(), "audit inbox full")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = worker.Run(ctx)
	assert.Len(t, store.ListAll(), 1)
}

type failingStore struct{ calls int }

func (f *failingStore) Append(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestWorker_ContinuesAfterStoreFailure(t *testing.T) {
	inbox := make(chan Event, 2)
	inbox <- Event{Action: ActionOperatorAuthFailed}
	inbox <- Event{Action: ActionOperatorAuthFailed}
	store := &failingStore{}
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = NewWorker(store, inbox, slog.New(slog.NewJSONHandler(&buf, nil))).Run(ctx)

	assert.Equal(t, 2, store.calls)
	assert.Contains(t, buf.String(), "failed to persist audit event")
}

func TestLogStore(t *testing.T) {
	var buf bytes.Buffer
	store := NewLogStore(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, store.Append(context.Background(), Event{
		Action:   ActionSubscriptionConfirmed,
		Category: CategoryCompliance,
		Subject:  "sub-9",
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "subscription_confirmed", line["msg"])
	assert.Equal(t, "audit", line["log_type"])
	assert.Equal(t, "sub-9", line["subject"])
}
