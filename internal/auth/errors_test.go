package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "mailomat/pkg/domain-errors"
)

func TestToDomain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"missing header", errMissingHeader(), dErrors.CodeUnauthorized},
		{"wrong scheme", errWrongScheme(SchemeBasic), dErrors.CodeUnauthorized},
		{"bad base64", errBase64(errors.New("illegal")), dErrors.CodeUnauthorized},
		{"missing colon", errMissingColon(), dErrors.CodeUnauthorized},
		{"invalid credentials", errInvalidCredentials("nope"), dErrors.CodeUnauthorized},
		{"store failure", errStore(errors.New("db down")), dErrors.CodeInternal},
		{"untyped", errors.New("surprise"), dErrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomain(tt.err)
			assert.True(t, dErrors.HasCode(got, tt.code))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestWrongSchemeNamesExpectedScheme(t *testing.T) {
	err := errWrongScheme(SchemeBasic)
	assert.Contains(t, err.Error(), `"Basic"`)
}
