package config

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/systmms/cerberus-go/internal/logging"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/properties"
	"github.com/systmms/cerberus-go/pkg/transport"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultRegion          = "us-west-2"
	DefaultTimeoutMs       = 30000
	DefaultMaxAttempts     = transport.DefaultMaxAttempts
	DefaultIntervalMs      = 250
	DefaultRetryMultiplier = transport.DefaultMultiplier
)

//go:embed schema.json
var schema []byte

// Config holds the runtime configuration
type Config struct {
	Path   string
	Logger *logging.Logger
	// Optional makes a missing file equivalent to an empty one.
	Optional   bool
	Definition *Definition
}

// Definition represents the cerberus.yaml structure
type Definition struct {
	Version    int               `yaml:"version"`
	URL        string            `yaml:"url,omitempty"`
	Region     string            `yaml:"region,omitempty"`
	TimeoutMs  int               `yaml:"timeout_ms,omitempty"`
	Retry      RetryConfig       `yaml:"retry,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Keyring    bool              `yaml:"keyring,omitempty"`
	Metrics    bool              `yaml:"metrics,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// RetryConfig tunes the request retry policy
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts,omitempty"`
	InitialIntervalMs int     `yaml:"initial_interval_ms,omitempty"`
	Multiplier        float64 `yaml:"multiplier,omitempty"`
}

// Load reads, validates and resolves the configuration file. Values from
// the environment and from properties override the file.
func (c *Config) Load() error {
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}

	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
	case os.IsNotExist(err) && (c.Optional || c.Path == ""):
		c.Logger.Debug("no configuration file at %q, using defaults", c.Path)
		data = nil
	case os.IsNotExist(err):
		return cerrors.ConfigError{
			Field:      "path",
			Value:      c.Path,
			Message:    "configuration file not found",
			Suggestion: "Create the file or drop --config to use the environment and defaults",
		}
	default:
		return cerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}

	for key, value := range def.Properties {
		if _, set := properties.Lookup(key); !set {
			properties.Set(key, value)
		}
	}
	def.applyOverrides()
	def.applyDefaults()

	c.Definition = def
	return nil
}

// Parse validates data against the configuration schema and decodes it.
// Empty data yields an empty definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if len(strings.TrimSpace(string(data))) == 0 {
		return &def, nil
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, cerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, cerrors.ConfigError{
			Message:    fmt.Sprintf("failed to decode configuration: %v", err),
			Suggestion: "Compare the file with the documented cerberus.yaml layout",
		}
	}
	return &def, nil
}

// validate checks raw against the embedded JSON schema
func validate(raw map[string]interface{}) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(raw))
	if err != nil {
		return cerrors.ConfigError{
			Message: fmt.Sprintf("schema validation error: %v", err),
		}
	}
	if result.Valid() {
		return nil
	}

	violations := result.Errors()
	messages := make([]string, 0, len(violations))
	for _, desc := range violations {
		messages = append(messages, desc.String())
	}
	first := violations[0]
	return cerrors.ConfigError{
		Field:      first.Field(),
		Value:      first.Value(),
		Message:    strings.Join(messages, "; "),
		Suggestion: "Fix the listed fields in your cerberus.yaml",
	}
}

// applyOverrides lets the environment, then properties, win over the file.
func (d *Definition) applyOverrides() {
	if v := firstNonEmpty(os.Getenv("CERBERUS_ADDR"), properties.Get(properties.Addr)); v != "" {
		d.URL = v
	}
	if v := firstNonEmpty(os.Getenv("CERBERUS_REGION"), properties.Get(properties.Region)); v != "" {
		d.Region = v
	}
	if d.Region == "" {
		d.Region = os.Getenv("AWS_REGION")
	}
}

func (d *Definition) applyDefaults() {
	if d.Region == "" {
		d.Region = DefaultRegion
	}
	if d.TimeoutMs <= 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.Retry.MaxAttempts <= 0 {
		d.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if d.Retry.InitialIntervalMs <= 0 {
		d.Retry.InitialIntervalMs = DefaultIntervalMs
	}
	if d.Retry.Multiplier < 1 {
		d.Retry.Multiplier = DefaultRetryMultiplier
	}
}

// Timeout returns the per-attempt request timeout
func (d *Definition) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// RetryPolicy returns the configured request retry policy
func (d *Definition) RetryPolicy() transport.RetryPolicy {
	policy := transport.DefaultRetryPolicy()
	policy.MaxAttempts = d.Retry.MaxAttempts
	policy.InitialInterval = time.Duration(d.Retry.InitialIntervalMs) * time.Millisecond
	policy.Multiplier = d.Retry.Multiplier
	return policy
}

// HTTPHeaders returns the configured extra headers
func (d *Definition) HTTPHeaders() http.Header {
	headers := http.Header{}
	for key, value := range d.Headers {
		headers.Set(key, value)
	}
	return headers
}

// RequireURL returns the Cerberus URL or a ConfigError when none is set.
func (d *Definition) RequireURL() (string, error) {
	if d.URL == "" {
		return "", cerrors.ConfigError{
			Field:      "url",
			Message:    "no Cerberus URL configured",
			Suggestion: "Set CERBERUS_ADDR, pass --url, or add 'url:' to cerberus.yaml",
		}
	}
	return d.URL, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
