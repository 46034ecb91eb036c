// Package email sends transactional mail through a configured provider.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mailomat/internal/platform/config"
)

// Message is one outbound email. Both bodies are always sent.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrRejected marks a provider that answered but refused the message.
var ErrRejected = errors.New("email rejected by provider")

// NewFromConfig builds the provider named in cfg, wrapped with tracing and metrics.
func NewFromConfig(ctx context.Context, cfg config.Email, reg prometheus.Registerer) (Sender, error) {
	var (
		sender Sender
		err    error
	)
	switch cfg.Provider {
	case config.ProviderPostmark:
		sender = NewPostmark(cfg.BaseURL, cfg.Sender, cfg.AuthToken, cfg.Timeout)
	case config.ProviderSES:
		sender, err = NewSES(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.Sender)
	case config.ProviderResend:
		sender = NewResend(cfg.AuthToken, cfg.Sender)
	default:
		err = fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewInstrumented(sender, cfg.Provider, reg), nil
}
