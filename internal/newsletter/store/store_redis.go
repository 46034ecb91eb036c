package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailomat/internal/newsletter/models"
	"mailomat/pkg/platform/sentinel"
)

// Redis claims keys with SET NX and stores the finished report as JSON under the
// same key, so every instance sharing the server sees the same outcome.
// Command failures wrap sentinel.ErrUnavailable.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Begin(ctx context.Context, key string) (*models.DispatchReport, error) {
	k := keyPrefix + key
	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w: %w", sentinel.ErrUnavailable, err)
	}
	if claimed {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired or abandoned between the two calls; try once more.
		return s.retryClaim(ctx, k)
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w: %w", sentinel.ErrUnavailable, err)
	}
	if raw == pendingMarker {
		return nil, ErrInFlight
	}
	var report models.DispatchReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("decode saved report: %w", err)
	}
	return &report, nil
}

func (s *Redis) retryClaim(ctx context.Context, k string) (*models.DispatchReport, error) {
	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w: %w", sentinel.ErrUnavailable, err)
	}
	if !claimed {
		return nil, ErrInFlight
	}
	return nil, nil
}

func (s *Redis) Complete(ctx context.Context, key string, report *models.DispatchReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save report: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Abandon(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
