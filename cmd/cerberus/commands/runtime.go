package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/systmms/cerberus-go/internal/config"
	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/internal/metrics"
	"github.com/systmms/cerberus-go/pkg/cerberus"
	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/properties"
)

// Runtime carries the global flags and lazily builds the client shared by
// every command.
type Runtime struct {
	Config  *config.Config
	Logger  *logging.Logger
	URL     string
	Region  string
	Keyring bool
	// Timeout bounds a whole command. Zero means no limit.
	Timeout time.Duration

	client *cerberus.Client
	chain  *credentials.Chain
}

// NewRuntime returns a runtime with an optional default config file.
func NewRuntime() *Runtime {
	return &Runtime{
		Config: &config.Config{Path: "cerberus.yaml", Optional: true},
		Logger: logging.Discard(),
	}
}

// SetProperties applies --property key=value flags.
func (r *Runtime) SetProperties(pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	if err := properties.SetPairs(pairs); err != nil {
		return cerrors.UserError{
			Message:    "Invalid --property flag",
			Details:    err.Error(),
			Suggestion: "Use --property name=value, e.g. --property cerberus.token=s.xyz",
			Err:        err,
		}
	}
	return nil
}

// LoadProperties applies a YAML properties file.
func (r *Runtime) LoadProperties(path string) error {
	if err := properties.LoadFile(path); err != nil {
		return cerrors.UserError{
			Message:    "Failed to load properties file",
			Details:    err.Error(),
			Suggestion: "The file must be a flat YAML mapping of property names to values",
			Err:        err,
		}
	}
	return nil
}

// Context returns the context a command runs under.
func (r *Runtime) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if r.Timeout > 0 {
		return context.WithTimeout(parent, r.Timeout)
	}
	return context.WithCancel(parent)
}

// ResolvedURL loads the configuration and returns the Cerberus URL, with
// --url taking precedence.
func (r *Runtime) ResolvedURL() (string, error) {
	if err := r.load(); err != nil {
		return "", err
	}
	if r.URL != "" {
		return strings.TrimRight(r.URL, "/"), nil
	}
	return r.Config.Definition.RequireURL()
}

func (r *Runtime) load() error {
	if r.Config.Definition != nil {
		return nil
	}
	if r.Config.Logger == nil {
		r.Config.Logger = r.Logger
	}
	return r.Config.Load()
}

// Client builds the client on first use.
func (r *Runtime) Client() (*cerberus.Client, error) {
	if r.client != nil {
		return r.client, nil
	}

	cerberusURL, err := r.ResolvedURL()
	if err != nil {
		return nil, err
	}
	def := r.Config.Definition

	region := r.Region
	if region == "" {
		region = def.Region
	}

	chainOpts := []cerberus.ChainOption{cerberus.WithChainLogger(r.Logger)}
	if r.Keyring || def.Keyring {
		chainOpts = append(chainOpts, cerberus.WithKeyring())
	}

	clientOpts := []cerberus.Option{
		cerberus.WithLogger(r.Logger),
		cerberus.WithTimeout(def.Timeout()),
		cerberus.WithRetryPolicy(def.RetryPolicy()),
		cerberus.WithDefaultHeaders(def.HTTPHeaders()),
	}
	if def.Metrics {
		metrics.InitMetrics()
		m := metrics.NewClientMetrics()
		chainOpts = append(chainOpts, cerberus.WithChainMetrics(m))
		clientOpts = append(clientOpts, cerberus.WithMetrics(m))
	}

	chain, err := cerberus.NewDefaultChain(cerberusURL, region, chainOpts...)
	if err != nil {
		return nil, err
	}
	client, err := cerberus.NewClient(cerberusURL, chain, clientOpts...)
	if err != nil {
		return nil, err
	}

	r.Logger.Debug("using Cerberus at %s (region %s)", cerberusURL, region)
	r.client, r.chain = client, chain
	return client, nil
}

// Chain returns the provider chain behind Client.
func (r *Runtime) Chain() (*credentials.Chain, error) {
	if _, err := r.Client(); err != nil {
		return nil, err
	}
	return r.chain, nil
}

// readInput reads a value from a file, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.UserError{
			Message:    fmt.Sprintf("Failed to read %s", path),
			Details:    err.Error(),
			Suggestion: "Check the file path and permissions",
			Err:        err,
		}
	}
	return data, nil
}
