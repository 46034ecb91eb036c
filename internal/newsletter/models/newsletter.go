package models

import (
	"strings"

	dErrors "mailomat/pkg/domain-errors"
)

type Content struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// Newsletter is one issue sent to every confirmed subscriber.
type Newsletter struct {
	Title   string  `json:"title"`
	Content Content `json:"content"`
}

func (n Newsletter) Validate() error {
	switch {
	case strings.TrimSpace(n.Title) == "":
		return dErrors.New(dErrors.CodeValidation, "newsletter title is required")
	case strings.TrimSpace(n.Content.HTML) == "":
		return dErrors.New(dErrors.CodeValidation, "newsletter html content is required")
	case strings.TrimSpace(n.Content.Text) == "":
		return dErrors.New(dErrors.CodeValidation, "newsletter text content is required")
	}
	return nil
}

// Failure is one recipient whose send returned an error.
type Failure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// DispatchReport summarizes a broadcast. Attempted counts sends that were started;
// Skipped counts recipients never started because the caller went away.
type DispatchReport struct {
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Failures  []Failure `json:"failures"`
	Skipped   int       `json:"skipped"`
}

// Complete is true when every recipient was delivered.
func (r *DispatchReport) Complete() bool {
	return len(r.Failures) == 0 && r.Skipped == 0
}

// Undelivered is the number of recipients that did not receive the newsletter.
func (r *DispatchReport) Undelivered() int {
	return len(r.Failures) + r.Skipped
}
