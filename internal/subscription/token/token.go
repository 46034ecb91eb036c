// Package token issues and resolves subscription confirmation tokens.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	id "mailomat/pkg/domain"
	"mailomat/pkg/platform/sentinel"
)

const entropyBytes = 32

// ErrTokenNotFound is returned when a token resolves to no subscriber.
var ErrTokenNotFound = errors.New("confirmation token not found")

// Issue returns 256 random bits encoded as unpadded URL-safe base64.
func Issue() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Finder looks a token up in the store.
type Finder interface {
	FindByToken(ctx context.Context, token string) (id.SubscriberID, error)
}

// Resolver maps tokens back to subscribers. Malformed tokens are not pre-screened,
// so they cost the same store lookup as absent ones.
type Resolver struct {
	finder Finder
}

func NewResolver(finder Finder) *Resolver {
	return &Resolver{finder: finder}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (id.SubscriberID, error) {
	subscriberID, err := r.finder.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.SubscriberID{}, ErrTokenNotFound
		}
		return id.SubscriberID{}, fmt.Errorf("find token: %w", err)
	}
	return subscriberID, nil
}
