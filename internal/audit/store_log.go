package audit

import (
	"context"
	"log/slog"
)

// LogStore writes events to the structured log with log_type=audit.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, string(event.Action),
		"log_type", "audit",
		"category", event.Category,
		"subject", event.Subject,
		"actor_id", event.ActorID,
		"reason", event.Reason,
		"request_id", event.RequestID,
		"count", event.Count,
		"occurred_at", event.Timestamp,
	)
	return nil
}
