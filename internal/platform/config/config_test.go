package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Operator = Operator{Username: "publisher", Password: "s3cret"}
	return cfg
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  base_url: https://mailomat.example.com
email:
  sender: hello@example.com
  timeout: 2s
operator:
  username: publisher
  password: from-file
dispatch:
  concurrency: 3
  timeout: 1h
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAILOMAT_OPERATOR_PASSWORD", "from-env")
	t.Setenv("MAILOMAT_AUDIT_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://mailomat.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "hello@example.com", cfg.Email.Sender)
	assert.Equal(t, 2*time.Second, cfg.Email.Timeout)
	assert.Equal(t, "from-env", cfg.Operator.Password)
	assert.Equal(t, 3, cfg.Dispatch.Concurrency)
	assert.Equal(t, time.Hour, cfg.Dispatch.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
	assert.Equal(t, 10*time.Minute, cfg.Subscription.ResendCooldown, "defaults survive merging")
}

func TestLoad_BadDurationEnv(t *testing.T) {
	t.Setenv("MAILOMAT_OPERATOR_USERNAME", "publisher")
	t.Setenv("MAILOMAT_OPERATOR_PASSWORD", "pw")
	t.Setenv("MAILOMAT_EMAIL_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAILOMAT_EMAIL_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"relative base url", func(c *Config) { c.Server.BaseURL = "/confirm" }, "server.base_url"},
		{"invalid sender", func(c *Config) { c.Email.Sender = "not-an-email" }, "email.sender"},
		{"unknown provider", func(c *Config) { c.Email.Provider = "pigeon" }, "email.provider"},
		{"ses without region", func(c *Config) { c.Email.Provider = ProviderSES }, "aws_region"},
		{"resend without key", func(c *Config) { c.Email.Provider = ProviderResend }, "auth_token"},
		{"missing operator", func(c *Config) { c.Operator = Operator{} }, "operator.username"},
		{"zero timeout", func(c *Config) { c.Email.Timeout = 0 }, "email.timeout"},
		{"zero concurrency", func(c *Config) { c.Dispatch.Concurrency = 0 }, "dispatch.concurrency"},
		{"zero dispatch timeout", func(c *Config) { c.Dispatch.Timeout = 0 }, "dispatch.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
