package service

import (
	"fmt"
	"html"

	"mailomat/internal/email"
)

const confirmationSubject = "Welcome!"

// confirmationMessage puts the same link in both bodies.
func confirmationMessage(to, name, link string) email.Message {
	return email.Message{
		To:      to,
		Subject: confirmationSubject,
		HTML: fmt.Sprintf(
			`<p>Welcome to our newsletter, %s!</p><p>Click <a href="%s">here</a> to confirm your subscription.</p>`,
			html.EscapeString(name), link,
		),
		Text: fmt.Sprintf(
			"Welcome to our newsletter, %s!\nVisit %s to confirm your subscription.",
			name, link,
		),
	}
}
