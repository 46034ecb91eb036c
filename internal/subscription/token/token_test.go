package token

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "mailomat/pkg/domain"
	"mailomat/pkg/platform/sentinel"
)

func TestIssue(t *testing.T) {
	seen := make(map[string]struct{})
	for range 1000 {
		tok, err := Issue()
		require.NoError(t, err)
		assert.Len(t, tok, 43)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, entropyBytes)

		_, dup := seen[tok]
		require.False(t, dup, "duplicate token issued")
		seen[tok] = struct{}{}
	}
}

type finderFunc func(ctx context.Context, token string) (id.SubscriberID, error)

func (f finderFunc) FindByToken(ctx context.Context, token string) (id.SubscriberID, error) {
	return f(ctx, token)
}

func TestResolver_Resolve(t *testing.T) {
	known := id.NewSubscriberID()
	storeDown := errors.New("connection refused")
	r := NewResolver(finderFunc(func(_ context.Context, token string) (id.SubscriberID, error) {
		switch token {
		case "known":
			return known, nil
		case "broken":
			return id.SubscriberID{}, storeDown
		default:
			return id.SubscriberID{}, sentinel.ErrNotFound
		}
	}))

	t.Run("known token", func(t *testing.T) {
		got, err := r.Resolve(context.Background(), "known")
		require.NoError(t, err)
		assert.Equal(t, known, got)
	})

	t.Run("unknown and malformed tokens share the not-found path", func(t *testing.T) {
		for _, tok := range []string{"unknown", "%%%not-base64%%%", ""} {
			_, err := r.Resolve(context.Background(), tok)
			assert.ErrorIs(t, err, ErrTokenNotFound, tok)
		}
	})

	t.Run("store failure is not reported as not found", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "broken")
		assert.ErrorIs(t, err, storeDown)
		assert.NotErrorIs(t, err, ErrTokenNotFound)
	})
}
