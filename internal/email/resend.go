package email

import (
	"context"
	"fmt"

	"github.com/resendlabs/resend-go"
)

// Resend sends through the Resend API.
type Resend struct {
	send   func(*resend.SendEmailRequest) error
	sender string
}

func NewResend(apiKey, sender string) *Resend {
	client := resend.NewClient(apiKey)
	return &Resend{
		send: func(req *resend.SendEmailRequest) error {
			_, err := client.Emails.Send(req)
			return err
		},
		sender: sender,
	}
}

// Send checks ctx before calling out; the Resend client takes no context.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.send(&resend.SendEmailRequest{
		From:    r.sender,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}
	return nil
}
