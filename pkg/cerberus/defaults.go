package cerberus

import (
	"net/http"
	"os"
	"strings"

	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/internal/metrics"
	"github.com/systmms/cerberus-go/pkg/credentials"
	"github.com/systmms/cerberus-go/pkg/credentials/awsauth"
	"github.com/systmms/cerberus-go/pkg/properties"
)

// DefaultRegion is used when no region is configured anywhere.
const DefaultRegion = "us-west-2"

type chainOptions struct {
	logger   *logging.Logger
	recorder credentials.AuthRecorder
	keyring  bool
	aws      []awsauth.Option
}

// ChainOption configures NewDefaultChain.
type ChainOption func(*chainOptions)

// WithChainLogger logs provider failures and AWS identity requests.
func WithChainLogger(logger *logging.Logger) ChainOption {
	return func(o *chainOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithChainMetrics records one authentication event per provider call.
func WithChainMetrics(m *metrics.ClientMetrics) ChainOption {
	return func(o *chainOptions) {
		if m != nil {
			o.recorder = m
		}
	}
}

// WithKeyring puts the OS keyring provider right after the environment
// and property providers.
func WithKeyring() ChainOption {
	return func(o *chainOptions) {
		o.keyring = true
	}
}

// WithAWSOptions passes opts to every AWS backed provider.
func WithAWSOptions(opts ...awsauth.Option) ChainOption {
	return func(o *chainOptions) {
		o.aws = append(o.aws, opts...)
	}
}

// ResolveRegion returns region when set, then CERBERUS_REGION, then the
// cerberus.region property, then AWS_REGION, then DefaultRegion.
func ResolveRegion(region string) string {
	candidates := []string{
		region,
		os.Getenv("CERBERUS_REGION"),
		properties.Get(properties.Region),
		os.Getenv("AWS_REGION"),
	}
	for _, candidate := range candidates {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return DefaultRegion
}

// NewDefaultChain builds the standard provider chain for cerberusURL:
// CERBERUS_TOKEN, the cerberus.token property, the Lambda execution role,
// the ECS task role, the EC2 instance role and finally an STS signed
// identity. Region selects the KMS key and STS endpoint; blank means
// ResolveRegion("").
func NewDefaultChain(cerberusURL, region string, opts ...ChainOption) (*credentials.Chain, error) {
	o := &chainOptions{logger: logging.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	region = ResolveRegion(region)

	awsOpts := append([]awsauth.Option{
		awsauth.WithHeaders(http.Header{ClientHeader: {ClientHeaderValue()}}),
		awsauth.WithLogger(o.logger.WithName("awsauth")),
	}, o.aws...)

	providers := []credentials.Provider{
		credentials.NewEnvironmentProvider(),
		credentials.NewPropertyProvider(),
	}
	if o.keyring {
		providers = append(providers, credentials.NewKeyringProvider(cerberusURL))
	}

	lambda, err := awsauth.NewLambdaRoleProvider(cerberusURL, region, awsOpts...)
	if err != nil {
		return nil, err
	}
	ecs, err := awsauth.NewECSTaskRoleProvider(cerberusURL, region, awsOpts...)
	if err != nil {
		return nil, err
	}
	instance, err := awsauth.NewInstanceRoleProvider(cerberusURL, region, awsOpts...)
	if err != nil {
		return nil, err
	}
	sts, err := awsauth.NewSTSIdentityProvider(cerberusURL, region, awsOpts...)
	if err != nil {
		return nil, err
	}
	providers = append(providers, lambda, ecs, instance, sts)

	chainOpts := []credentials.ChainOption{credentials.WithChainLogger(o.logger.WithName("chain"))}
	if o.recorder != nil {
		chainOpts = append(chainOpts, credentials.WithAuthRecorder(o.recorder))
	}
	return credentials.NewChain(providers, chainOpts...)
}

// NewDefaultClient resolves the Cerberus URL with ResolveURL and returns a
// client authenticating through NewDefaultChain.
func NewDefaultClient(region string, opts ...Option) (*Client, error) {
	cerberusURL, err := ResolveURL()
	if err != nil {
		return nil, err
	}
	chain, err := NewDefaultChain(cerberusURL, region)
	if err != nil {
		return nil, err
	}
	return NewClient(cerberusURL, chain, opts...)
}
