package awsauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/internal/tokencache"
)

// Option configures the providers and the identity client in this package.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	headers     http.Header
	awsConfig   *aws.Config
	kms         KMSDecrypter
	sts         CallerIdentityAPI
	lambda      FunctionConfigurationAPI
	imds        InstanceMetadataAPI
	ecsEndpoint string
	now         func() time.Time
	padding     time.Duration
	attempts    uint
	delay       time.Duration
	logger      *logging.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		headers:     http.Header{},
		ecsEndpoint: defaultECSEndpoint,
		now:         time.Now,
		padding:     tokencache.DefaultPadding,
		attempts:    DefaultAuthAttempts,
		delay:       DefaultAuthDelay,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHTTPClient sets the client used for Cerberus and ECS metadata requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithHeaders adds headers to every identity request, for example the
// client identification header.
func WithHeaders(headers http.Header) Option {
	return func(o *options) {
		for key, values := range headers {
			for _, v := range values {
				o.headers.Add(key, v)
			}
		}
	}
}

// WithAWSConfig uses cfg instead of loading the default AWS configuration.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *options) {
		o.awsConfig = &cfg
	}
}

// WithKMSClient sets the KMS client used to decrypt IAM-principal responses.
func WithKMSClient(client KMSDecrypter) Option {
	return func(o *options) {
		o.kms = client
	}
}

// WithSTSClient sets the STS client used for identity discovery.
func WithSTSClient(client CallerIdentityAPI) Option {
	return func(o *options) {
		o.sts = client
	}
}

// WithLambdaClient sets the Lambda client used to read the execution role of
// the running function.
func WithLambdaClient(client FunctionConfigurationAPI) Option {
	return func(o *options) {
		o.lambda = client
	}
}

// WithInstanceMetadataClient sets the EC2 instance metadata client.
func WithInstanceMetadataClient(client InstanceMetadataAPI) Option {
	return func(o *options) {
		o.imds = client
	}
}

// WithECSEndpoint overrides the ECS container credentials endpoint host.
func WithECSEndpoint(endpoint string) Option {
	return func(o *options) {
		o.ecsEndpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithClock sets the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPadding sets how long before lease expiry a token is refreshed.
func WithPadding(padding time.Duration) Option {
	return func(o *options) {
		o.padding = padding
	}
}

// WithRetry sets the identity request attempt count and initial delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if delay >= 0 {
			o.delay = delay
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func (o *options) identityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:     o.httpClient,
		headers:  o.headers.Clone(),
		attempts: o.attempts,
		delay:    o.delay,
		logger:   o.logger,
	}
}

// loadAWSConfig returns the configured AWS config, or loads the default
// chain, pinned to region when one is given.
func (o *options) loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if o.awsConfig != nil {
		cfg := o.awsConfig.Copy()
		if region != "" {
			cfg.Region = region
		}
		return cfg, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func (o *options) kmsClient(ctx context.Context, region string) (KMSDecrypter, error) {
	if o.kms != nil {
		return o.kms, nil
	}
	cfg, err := o.loadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return kms.NewFromConfig(cfg), nil
}
