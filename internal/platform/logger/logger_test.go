package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"no-at-sign":           "***@***",
		"a@b@c":                "***@***",
	}
	for in, want := range tests {
		assert.Equal(t, want, RedactEmail(in), in)
	}
}

func TestNewWithWriter_RedactsEmailAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.Info("subscription requested", "email", "ursula@example.com", "recipient_email", "le_guin@gmail.com", "name", "Ursula")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ur***@example.com", line["email"])
	assert.Equal(t, "le***@gmail.com", line["recipient_email"])
	assert.Equal(t, "Ursula", line["name"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
