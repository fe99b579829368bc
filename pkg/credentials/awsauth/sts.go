package awsauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

const getCallerIdentityBody = "Action=GetCallerIdentity&Version=2011-06-15"

// STSIdentityProvider proves the caller's AWS identity by handing Cerberus
// the signed headers of an STS GetCallerIdentity request. Cerberus replays
// the request to STS; the AWS credentials themselves never leave the process.
type STSIdentityProvider struct {
	*RoleProvider
	region string
	opts   *options
}

// NewSTSIdentityProvider creates a provider that signs for the regional STS
// endpoint in region using the default AWS credential chain.
func NewSTSIdentityProvider(cerberusURL, region string, opts ...Option) (*STSIdentityProvider, error) {
	if err := requireURL(cerberusURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(region) == "" {
		return nil, cerrors.InvalidArgument("region must not be blank")
	}

	o := newOptions(opts)
	client := o.identityClient(cerberusURL)
	p := &STSIdentityProvider{region: region, opts: o}
	p.RoleProvider = newRoleProvider("sts-identity", func(ctx context.Context) (*AuthResponse, error) {
		headers, err := p.signedHeaders(ctx)
		if err != nil {
			return nil, err
		}
		return client.STSIdentityAuth(ctx, headers)
	}, o)
	return p, nil
}

// Region returns the STS region requests are signed for.
func (p *STSIdentityProvider) Region() string { return p.region }

func (p *STSIdentityProvider) signedHeaders(ctx context.Context) (http.Header, error) {
	cfg, err := p.opts.loadAWSConfig(ctx, p.region)
	if err != nil {
		return nil, cerrors.NewClientError("failed to load AWS credentials for STS signing", err)
	}
	if cfg.Credentials == nil {
		return nil, cerrors.NewClientError("no AWS credentials available for STS signing", nil)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, cerrors.NewClientError("failed to retrieve AWS credentials for STS signing", err)
	}
	return SignCallerIdentity(ctx, creds, p.region, p.opts.now())
}

// SignCallerIdentity signs a GetCallerIdentity request for the STS endpoint
// in region and returns the headers Cerberus needs to verify it.
func SignCallerIdentity(ctx context.Context, creds aws.Credentials, region string, signingTime time.Time) (http.Header, error) {
	endpoint := fmt.Sprintf("https://sts.%s.amazonaws.com/", region)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(getCallerIdentityBody))
	if err != nil {
		return nil, cerrors.NewClientError("failed to build STS request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	sum := sha256.Sum256([]byte(getCallerIdentityBody))
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "sts", region, signingTime.UTC()); err != nil {
		return nil, cerrors.NewClientError("failed to sign STS request", err)
	}

	signed := http.Header{}
	for _, name := range []string{"Authorization", "X-Amz-Date", "X-Amz-Security-Token"} {
		if value := req.Header.Get(name); value != "" {
			signed.Set(name, value)
		}
	}
	if signed.Get("Authorization") == "" {
		return nil, cerrors.NewClientError("STS signing produced no Authorization header", nil)
	}
	return signed, nil
}
