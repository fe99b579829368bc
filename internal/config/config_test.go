package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/cerberus-go/internal/logging"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/properties"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cerberus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearOverrides isolates a test from the caller's environment.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, name := range []string{"CERBERUS_ADDR", "CERBERUS_REGION", "AWS_REGION"} {
		t.Setenv(name, "")
	}
	for _, key := range []string{properties.Addr, properties.Region, properties.Token} {
		properties.Clear(key)
	}
	t.Cleanup(func() {
		for _, key := range []string{properties.Addr, properties.Region, properties.Token} {
			properties.Clear(key)
		}
	})
}

func TestConfig_Load(t *testing.T) {
	clearOverrides(t)

	path := writeConfig(t, `version: 0
url: https://cerberus.example.com
region: us-east-1
timeout_ms: 5000
retry:
  max_attempts: 5
  initial_interval_ms: 100
  multiplier: 3
headers:
  x-team: payments
metrics: true
`)

	cfg := &Config{Path: path, Logger: logging.New(false)}
	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, "https://cerberus.example.com", def.URL)
	assert.Equal(t, "us-east-1", def.Region)
	assert.Equal(t, 5*time.Second, def.Timeout())
	assert.True(t, def.Metrics)
	assert.False(t, def.Keyring)
	assert.Equal(t, "payments", def.HTTPHeaders().Get("X-Team"))

	policy := def.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, 3.0, policy.Multiplier)
	assert.NotNil(t, policy.Retryable)
}

func TestConfig_Defaults(t *testing.T) {
	clearOverrides(t)

	cfg := &Config{Path: filepath.Join(t.TempDir(), "missing.yaml"), Optional: true}
	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, DefaultRegion, def.Region)
	assert.Equal(t, 30*time.Second, def.Timeout())
	assert.Equal(t, 3, def.RetryPolicy().MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, def.RetryPolicy().InitialInterval)

	_, err := def.RequireURL()
	var cfgErr cerrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "url", cfgErr.Field)
}

func TestConfig_Overrides(t *testing.T) {
	clearOverrides(t)

	path := writeConfig(t, `url: https://file.example.com
region: us-east-1
properties:
  cerberus.token: s.from-file
`)

	properties.Set(properties.Addr, "https://property.example.com")
	t.Setenv("CERBERUS_REGION", "eu-west-1")

	cfg := &Config{Path: path}
	require.NoError(t, cfg.Load())
	assert.Equal(t, "https://property.example.com", cfg.Definition.URL)
	assert.Equal(t, "eu-west-1", cfg.Definition.Region)
	assert.Equal(t, "s.from-file", properties.Get(properties.Token))

	t.Setenv("CERBERUS_ADDR", "https://env.example.com")
	require.NoError(t, cfg.Load())
	assert.Equal(t, "https://env.example.com", cfg.Definition.URL)
}

func TestConfig_FilePropertiesDoNotReplaceExisting(t *testing.T) {
	clearOverrides(t)
	properties.Set(properties.Token, "s.already-set")

	path := writeConfig(t, "properties:\n  cerberus.token: s.from-file\n")
	cfg := &Config{Path: path}
	require.NoError(t, cfg.Load())
	assert.Equal(t, "s.already-set", properties.Get(properties.Token))
}

func TestConfig_AWSRegionFallback(t *testing.T) {
	clearOverrides(t)
	t.Setenv("AWS_REGION", "ap-southeast-2")

	cfg := &Config{Path: writeConfig(t, "url: https://cerberus.example.com\n")}
	require.NoError(t, cfg.Load())
	assert.Equal(t, "ap-southeast-2", cfg.Definition.Region)
}

func TestConfig_MissingFile(t *testing.T) {
	clearOverrides(t)

	cfg := &Config{Path: "/nonexistent/path/to/cerberus.yaml"}
	err := cfg.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad yaml", "url: [unterminated\n", ""},
		{"unknown key", "colour: blue\n", "(root)"},
		{"bad version", "version: 2\n", "version"},
		{"bad url", "url: cerberus.example.com\n", "url"},
		{"bad region", "region: narnia\n", "region"},
		{"bad attempts", "retry:\n  max_attempts: 0\n", "retry.max_attempts"},
		{"bad header", "headers:\n  x-team: [a, b]\n", "headers.x-team"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.content))
			var cfgErr cerrors.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, cfgErr.Field)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	def, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, def.URL)
}
