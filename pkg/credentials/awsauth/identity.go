package awsauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/systmms/cerberus-go/internal/logging"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

const (
	iamPrincipalPath = "/v2/auth/iam-principal"
	stsIdentityPath  = "/v2/auth/sts-identity"

	// DefaultAuthAttempts is how many times an identity request is sent
	// before giving up.
	DefaultAuthAttempts = 3

	// DefaultAuthDelay is the wait before the first identity retry. Later
	// retries double it.
	DefaultAuthDelay = 250 * time.Millisecond
)

// AuthResponse is the token grant returned by the identity endpoints.
type AuthResponse struct {
	ClientToken   string            `json:"client_token"`
	LeaseDuration int64             `json:"lease_duration"`
	Policies      []string          `json:"policies,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Renewable     bool              `json:"renewable"`
}

// Lease returns the lease duration as a time.Duration.
func (r *AuthResponse) Lease() time.Duration {
	return time.Duration(r.LeaseDuration) * time.Second
}

// KMSDecrypter is the subset of the KMS client used to unwrap the encrypted
// IAM-principal auth response.
type KMSDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type iamPrincipalRequest struct {
	IAMPrincipalARN string `json:"iam_principal_arn"`
	Region          string `json:"region"`
}

type encryptedAuthResponse struct {
	AuthData string `json:"auth_data"`
}

// IdentityClient talks to the Cerberus identity endpoints that exchange an
// AWS identity for a token.
type IdentityClient struct {
	baseURL  string
	http     *http.Client
	headers  http.Header
	attempts uint
	delay    time.Duration
	logger   *logging.Logger
	// timer replaces the retry loop's clock when set.
	timer retry.Timer
}

// NewIdentityClient creates a client for the Cerberus instance at baseURL.
func NewIdentityClient(baseURL string, opts ...Option) (*IdentityClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, cerrors.InvalidArgument("cerberus URL must not be blank")
	}
	o := newOptions(opts)
	return o.identityClient(baseURL), nil
}

// IAMPrincipalAuth authenticates as principalARN. The service answers with
// an auth response encrypted under a KMS key in region, which is decrypted
// with decrypter.
func (c *IdentityClient) IAMPrincipalAuth(ctx context.Context, principalARN, region string, decrypter KMSDecrypter) (*AuthResponse, error) {
	body, err := json.Marshal(iamPrincipalRequest{IAMPrincipalARN: principalARN, Region: region})
	if err != nil {
		return nil, cerrors.NewClientError("failed to encode iam principal request", err)
	}

	c.logger.Debug("authenticating as %s in %s", principalARN, region)
	raw, err := c.post(ctx, iamPrincipalPath, nil, body)
	if err != nil {
		return nil, err
	}

	var encrypted encryptedAuthResponse
	if err := json.Unmarshal(raw, &encrypted); err != nil {
		return nil, cerrors.NewClientError("failed to parse iam principal auth response", err)
	}
	if encrypted.AuthData == "" {
		return nil, cerrors.NewClientError("iam principal auth response did not contain auth_data", nil)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted.AuthData)
	if err != nil {
		return nil, cerrors.NewClientError("failed to decode auth_data", err)
	}

	out, err := decrypter.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: ciphertext})
	if err != nil {
		return nil, cerrors.NewClientError(fmt.Sprintf("failed to decrypt auth response for %s", principalARN), err)
	}

	return decodeAuthResponse(out.Plaintext)
}

// STSIdentityAuth submits the headers of a signed STS GetCallerIdentity
// request and returns the plain auth response.
func (c *IdentityClient) STSIdentityAuth(ctx context.Context, signed http.Header) (*AuthResponse, error) {
	raw, err := c.post(ctx, stsIdentityPath, signed, nil)
	if err != nil {
		return nil, err
	}
	return decodeAuthResponse(raw)
}

func decodeAuthResponse(raw []byte) (*AuthResponse, error) {
	var resp AuthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, cerrors.NewClientError("failed to parse auth response", err)
	}
	if strings.TrimSpace(resp.ClientToken) == "" {
		return nil, cerrors.NewClientError("auth response did not contain a client token", nil)
	}
	return &resp, nil
}

// retryableStatus marks a 5xx answer so the retry loop tries again.
type retryableStatus struct {
	err error
}

func (e *retryableStatus) Error() string { return e.err.Error() }
func (e *retryableStatus) Unwrap() error { return e.err }

// ioFailure marks a transport error so the retry loop tries again.
type ioFailure struct {
	err error
}

func (e *ioFailure) Error() string { return e.err.Error() }
func (e *ioFailure) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var status *retryableStatus
	var ioErr *ioFailure
	return errors.As(err, &status) || errors.As(err, &ioErr)
}

// post sends body to path, retrying on I/O failures and 5xx answers.
func (c *IdentityClient) post(ctx context.Context, path string, extra http.Header, body []byte) ([]byte, error) {
	var result []byte

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("identity request to %s failed (attempt %d): %v", path, n+1, err)
		}),
	}
	if c.timer != nil {
		opts = append(opts, retry.WithTimer(c.timer))
	}

	err := retry.Do(
		func() error {
			raw, err := c.attempt(ctx, path, extra, body)
			if err != nil {
				return err
			}
			result = raw
			return nil
		},
		opts...,
	)
	if err == nil {
		return result, nil
	}

	var ioErr *ioFailure
	if errors.As(err, &ioErr) {
		return nil, transport.ClassifyIOError(ioErr.err)
	}
	var status *retryableStatus
	if errors.As(err, &status) {
		err = status.err
	}
	if cerrors.IsClientError(err) {
		return nil, err
	}
	return nil, cerrors.NewClientError(fmt.Sprintf("authentication request to %s failed", path), err)
}

func (c *IdentityClient) attempt(ctx context.Context, path string, extra http.Header, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, cerrors.NewClientError("failed to build authentication request", err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range extra {
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cerrors.NewClientError("authentication request canceled", ctx.Err())
		}
		return nil, &ioFailure{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ioFailure{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return nil, &retryableStatus{err: transport.ParseErrorBody(resp.StatusCode, raw)}
	default:
		return nil, transport.ParseErrorBody(resp.StatusCode, raw)
	}
}
