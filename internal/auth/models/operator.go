package models

import (
	"time"

	id "mailomat/pkg/domain"
	dErrors "mailomat/pkg/domain-errors"
)

// Operator is an account allowed to publish newsletters.
type Operator struct {
	ID           id.OperatorID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func NewOperator(operatorID id.OperatorID, username, passwordHash string, now time.Time) (*Operator, error) {
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "operator username cannot be empty")
	}
	if len(username) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "operator username must be 128 characters or less")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "operator password hash cannot be empty")
	}
	return &Operator{
		ID:           operatorID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}
