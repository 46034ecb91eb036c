package models

import (
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
	"github.com/rivo/uniseg"

	dErrors "mailomat/pkg/domain-errors"
)

const (
	MaxNameGraphemes = 256
	MaxEmailBytes    = 254

	forbiddenNameChars = `/()"<>\{}`
)

// RawSubscriber is a subscription request as received. A nil field was either
// absent or JSON null.
type RawSubscriber struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// ValidSubscriber is a subscriber that passed validation. The zero value is not valid;
// obtain one through RawSubscriber.Validate or NewValidSubscriber.
type ValidSubscriber struct {
	name  string
	email string
}

func (v ValidSubscriber) Name() string  { return v.name }
func (v ValidSubscriber) Email() string { return v.email }

// Validate converts raw input into a ValidSubscriber.
// Missing fields are CodeUnprocessable; present but unacceptable values are CodeValidation.
func (r RawSubscriber) Validate() (ValidSubscriber, error) {
	if r.Name == nil {
		return ValidSubscriber{}, dErrors.New(dErrors.CodeUnprocessable, "missing field `name`")
	}
	if r.Email == nil {
		return ValidSubscriber{}, dErrors.New(dErrors.CodeUnprocessable, "missing field `email`")
	}
	return NewValidSubscriber(*r.Name, *r.Email)
}

// NewValidSubscriber trims and checks both fields.
func NewValidSubscriber(name, email string) (ValidSubscriber, error) {
	name, err := parseName(name)
	if err != nil {
		return ValidSubscriber{}, err
	}
	email, err = parseEmail(email)
	if err != nil {
		return ValidSubscriber{}, err
	}
	return ValidSubscriber{name: name, email: email}, nil
}

func parseName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "name must not be empty")
	}
	if uniseg.GraphemeClusterCount(s) > MaxNameGraphemes {
		return "", dErrors.New(dErrors.CodeValidation, "name is too long")
	}
	if strings.ContainsAny(s, forbiddenNameChars) {
		return "", dErrors.New(dErrors.CodeValidation, "name contains forbidden characters")
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", dErrors.New(dErrors.CodeValidation, "name contains control characters")
	}
	return s, nil
}

func parseEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email must not be empty")
	}
	if len(s) > MaxEmailBytes || !govalidator.IsEmail(s) {
		return "", dErrors.New(dErrors.CodeValidation, "email is not a valid address")
	}
	return s, nil
}
