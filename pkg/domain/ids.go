package domain

import (
	"github.com/google/uuid"

	dErrors "mailomat/pkg/domain-errors"
)

// Typed identifiers. They share the uuid representation but do not convert implicitly.
type (
	SubscriberID uuid.UUID
	OperatorID   uuid.UUID
)

func NewSubscriberID() SubscriberID { return SubscriberID(uuid.New()) }
func NewOperatorID() OperatorID     { return OperatorID(uuid.New()) }

func (id SubscriberID) String() string { return uuid.UUID(id).String() }
func (id OperatorID) String() string   { return uuid.UUID(id).String() }

func (id SubscriberID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OperatorID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func ParseSubscriberID(s string) (SubscriberID, error) {
	u, err := parseUUID(s, "subscriber")
	return SubscriberID(u), err
}

func ParseOperatorID(s string) (OperatorID, error) {
	u, err := parseUUID(s, "operator")
	return OperatorID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, kind+" id must not be nil")
	}
	return u, nil
}
