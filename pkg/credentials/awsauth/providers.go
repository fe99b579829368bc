package awsauth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

const (
	defaultECSEndpoint = "http://169.254.170.2"

	envECSRelativeURI = "AWS_CONTAINER_CREDENTIALS_RELATIVE_URI"
	envECSFullURI     = "AWS_CONTAINER_CREDENTIALS_FULL_URI"
	envECSAuthToken   = "AWS_CONTAINER_AUTHORIZATION_TOKEN"
	envLambdaFunction = "AWS_LAMBDA_FUNCTION_NAME"
	envLambdaVersion  = "AWS_LAMBDA_FUNCTION_VERSION"
	envAWSRegion      = "AWS_REGION"
	envAWSDefRegion   = "AWS_DEFAULT_REGION"
	envIMDSDisabled   = "AWS_EC2_METADATA_DISABLED"

	// metadataCheckTimeout bounds the one-off check for a reachable
	// instance metadata service.
	metadataCheckTimeout = time.Second
)

// InstanceMetadataAPI is the subset of the EC2 instance metadata client used
// to discover the instance role.
type InstanceMetadataAPI interface {
	GetIAMInfo(ctx context.Context, params *imds.GetIAMInfoInput, optFns ...func(*imds.Options)) (*imds.GetIAMInfoOutput, error)
	GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error)
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// CallerIdentityAPI is the subset of the STS client used to discover the
// role a Lambda function runs as.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// FunctionConfigurationAPI is the subset of the Lambda client used to read
// the execution role of the running function.
type FunctionConfigurationAPI interface {
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
}

// principalResolver returns the role ARN to authenticate as and the region
// whose KMS key encrypts the answer.
type principalResolver func(ctx context.Context) (principalARN, region string, err error)

// iamPrincipalAuthenticator authenticates against the IAM-principal endpoint
// as whatever resolve returns. KMS clients are created once per region. The
// returned func is only ever called under the RoleProvider write lock.
func iamPrincipalAuthenticator(client *IdentityClient, o *options, resolve principalResolver) AuthenticateFunc {
	decrypters := map[string]KMSDecrypter{}
	return func(ctx context.Context) (*AuthResponse, error) {
		principalARN, region, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		if region == "" {
			return nil, cerrors.NewClientError(fmt.Sprintf("no region available to authenticate %s", principalARN), nil)
		}

		decrypter, ok := decrypters[region]
		if !ok {
			decrypter, err = o.kmsClient(ctx, region)
			if err != nil {
				return nil, cerrors.NewClientError("failed to create KMS client", err)
			}
			decrypters[region] = decrypter
		}
		return client.IAMPrincipalAuth(ctx, principalARN, region, decrypter)
	}
}

func requireURL(cerberusURL string) error {
	if strings.TrimSpace(cerberusURL) == "" {
		return cerrors.InvalidArgument("cerberus URL must not be blank")
	}
	return nil
}

// envRegion returns the region the AWS runtime advertises.
func envRegion() string {
	if region := os.Getenv(envAWSRegion); region != "" {
		return region
	}
	return os.Getenv(envAWSDefRegion)
}

// StaticRoleProvider authenticates as a fixed IAM role.
type StaticRoleProvider struct {
	*RoleProvider
	roleARN string
	region  string
}

// NewStaticRoleProvider creates a provider for roleARN whose auth response
// is encrypted with the KMS key in region.
func NewStaticRoleProvider(cerberusURL, roleARN, region string, opts ...Option) (*StaticRoleProvider, error) {
	if err := requireURL(cerberusURL); err != nil {
		return nil, err
	}
	if !IsRoleARN(roleARN) {
		return nil, cerrors.InvalidArgument("%q is not an IAM role ARN", roleARN)
	}
	if strings.TrimSpace(region) == "" {
		return nil, cerrors.InvalidArgument("region must not be blank")
	}

	o := newOptions(opts)
	p := &StaticRoleProvider{roleARN: roleARN, region: region}
	auth := iamPrincipalAuthenticator(o.identityClient(cerberusURL), o, func(ctx context.Context) (string, string, error) {
		return p.roleARN, p.region, nil
	})
	p.RoleProvider = newRoleProvider("static-role", auth, o)
	return p, nil
}

// NewStaticRoleProviderForAccount creates a provider for role in account.
func NewStaticRoleProviderForAccount(cerberusURL, account, role, region string, opts ...Option) (*StaticRoleProvider, error) {
	if strings.TrimSpace(account) == "" || strings.TrimSpace(role) == "" {
		return nil, cerrors.InvalidArgument("account and role must not be blank")
	}
	return NewStaticRoleProvider(cerberusURL, RoleARN(account, role), region, opts...)
}

// RoleARN returns the role this provider authenticates as.
func (p *StaticRoleProvider) RoleARN() string { return p.roleARN }

// Region returns the region passed to the auth endpoint.
func (p *StaticRoleProvider) Region() string { return p.region }

// InstanceRoleProvider authenticates as the IAM role attached to the EC2
// instance it runs on.
type InstanceRoleProvider struct {
	*RoleProvider
	region string
	imds   InstanceMetadataAPI

	checkOnce sync.Once
	available bool
}

// NewInstanceRoleProvider creates an instance role provider. An empty region
// means the instance's own region.
func NewInstanceRoleProvider(cerberusURL, region string, opts ...Option) (*InstanceRoleProvider, error) {
	if err := requireURL(cerberusURL); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	p := &InstanceRoleProvider{region: region, imds: o.imds}
	if p.imds == nil {
		p.imds = imds.New(imds.Options{})
	}
	p.RoleProvider = newRoleProvider("instance-role", iamPrincipalAuthenticator(o.identityClient(cerberusURL), o, p.resolve), o)
	return p, nil
}

// ShouldRun reports whether the instance metadata service is enabled and
// answers. The service is asked once; later calls reuse the answer.
func (p *InstanceRoleProvider) ShouldRun(ctx context.Context) bool {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envIMDSDisabled)), "true") {
		return false
	}
	p.checkOnce.Do(func() {
		p.available = p.metadataReachable(ctx)
	})
	return p.available
}

func (p *InstanceRoleProvider) metadataReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	out, err := p.imds.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		p.logger.Debug("instance metadata service is not reachable: %v", err)
		return false
	}
	_ = out.Content.Close()
	return true
}

func (p *InstanceRoleProvider) resolve(ctx context.Context) (string, string, error) {
	info, err := p.imds.GetIAMInfo(ctx, &imds.GetIAMInfoInput{})
	if err != nil {
		return "", "", cerrors.NewClientError("failed to read instance profile from instance metadata", err)
	}
	profileARN := info.IAMInfo.InstanceProfileArn
	account, err := AccountFromInstanceProfileARN(profileARN)
	if err != nil {
		return "", "", cerrors.NewClientError("unexpected instance profile", err)
	}

	roleName, err := p.roleName(ctx)
	if err != nil {
		return "", "", err
	}

	region := p.region
	if region == "" {
		doc, err := p.imds.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
		if err != nil {
			return "", "", cerrors.NewClientError("failed to read instance identity document", err)
		}
		region = doc.Region
	}

	return roleARNIn(partitionOf(profileARN), account, roleName), region, nil
}

// roleName reads the first role listed under iam/security-credentials/.
func (p *InstanceRoleProvider) roleName(ctx context.Context) (string, error) {
	out, err := p.imds.GetMetadata(ctx, &imds.GetMetadataInput{Path: "iam/security-credentials/"})
	if err != nil {
		return "", cerrors.NewClientError("failed to list instance role from instance metadata", err)
	}
	defer func() { _ = out.Content.Close() }()

	scanner := bufio.NewScanner(out.Content)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			return name, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", cerrors.NewClientError("failed to read instance role name", err)
	}
	return "", cerrors.NewClientError("no IAM role is attached to this instance", nil)
}

// ECSTaskRoleProvider authenticates as the task role of the ECS task it runs
// in.
type ECSTaskRoleProvider struct {
	*RoleProvider
	region   string
	endpoint string
	http     *http.Client
}

// NewECSTaskRoleProvider creates an ECS task role provider. An empty region
// means AWS_REGION.
func NewECSTaskRoleProvider(cerberusURL, region string, opts ...Option) (*ECSTaskRoleProvider, error) {
	if err := requireURL(cerberusURL); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	p := &ECSTaskRoleProvider{region: region, endpoint: o.ecsEndpoint, http: o.httpClient}
	p.RoleProvider = newRoleProvider("ecs-task-role", iamPrincipalAuthenticator(o.identityClient(cerberusURL), o, p.resolve), o)
	return p, nil
}

// ShouldRun reports whether the ECS container credentials endpoint is
// configured.
func (p *ECSTaskRoleProvider) ShouldRun(ctx context.Context) bool {
	return os.Getenv(envECSRelativeURI) != "" || os.Getenv(envECSFullURI) != ""
}

type ecsCredentials struct {
	RoleArn string `json:"RoleArn"`
}

func (p *ECSTaskRoleProvider) resolve(ctx context.Context) (string, string, error) {
	target := os.Getenv(envECSFullURI)
	if relative := os.Getenv(envECSRelativeURI); relative != "" {
		target = p.endpoint + relative
	}
	if target == "" {
		return "", "", cerrors.NewClientError("not running in ECS: container credentials endpoint is not set", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", cerrors.NewClientError("failed to build ECS credentials request", err)
	}
	if token := os.Getenv(envECSAuthToken); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", "", cerrors.NewClientError("failed to reach ECS credentials endpoint", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", cerrors.NewClientError(fmt.Sprintf("ECS credentials endpoint returned status %d", resp.StatusCode), nil)
	}

	var creds ecsCredentials
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&creds); err != nil {
		return "", "", cerrors.NewClientError("failed to parse ECS credentials response", err)
	}
	if creds.RoleArn == "" {
		return "", "", cerrors.NewClientError("ECS credentials response did not include a role ARN", nil)
	}

	region := p.region
	if region == "" {
		region = envRegion()
	}
	return creds.RoleArn, region, nil
}

// LambdaRoleProvider authenticates as the execution role of the Lambda
// function it runs in.
//
// The role is read from the function configuration, which carries the full
// role ARN including any IAM path such as /service-role/. When the function
// is not allowed to read its own configuration, the role is derived from the
// STS caller identity instead. An assumed-role ARN has no path, so that
// fallback only matches roles created at the root path.
type LambdaRoleProvider struct {
	*RoleProvider
	region string
	lambda FunctionConfigurationAPI
	sts    CallerIdentityAPI
	opts   *options
}

// NewLambdaRoleProvider creates a Lambda role provider. An empty region means
// AWS_REGION.
func NewLambdaRoleProvider(cerberusURL, region string, opts ...Option) (*LambdaRoleProvider, error) {
	if err := requireURL(cerberusURL); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	p := &LambdaRoleProvider{region: region, lambda: o.lambda, sts: o.sts, opts: o}
	p.RoleProvider = newRoleProvider("lambda-role", iamPrincipalAuthenticator(o.identityClient(cerberusURL), o, p.resolve), o)
	return p, nil
}

// ShouldRun reports whether the process runs inside AWS Lambda.
func (p *LambdaRoleProvider) ShouldRun(ctx context.Context) bool {
	return os.Getenv(envLambdaFunction) != ""
}

func (p *LambdaRoleProvider) resolve(ctx context.Context) (string, string, error) {
	region := p.region
	if region == "" {
		region = envRegion()
	}

	if function := os.Getenv(envLambdaFunction); function != "" {
		roleARN, err := p.functionRole(ctx, function, region)
		if err == nil {
			return roleARN, region, nil
		}
		p.opts.logger.Warn("failed to read execution role of Lambda function %s, falling back to STS caller identity: %v", function, err)
	}

	roleARN, err := p.callerRole(ctx, region)
	if err != nil {
		return "", "", err
	}
	return roleARN, region, nil
}

// functionRole reads the execution role from the configuration of the
// running function version.
func (p *LambdaRoleProvider) functionRole(ctx context.Context, function, region string) (string, error) {
	if p.lambda == nil {
		cfg, err := p.opts.loadAWSConfig(ctx, region)
		if err != nil {
			return "", fmt.Errorf("failed to create Lambda client: %w", err)
		}
		p.lambda = lambda.NewFromConfig(cfg)
	}

	input := &lambda.GetFunctionConfigurationInput{FunctionName: aws.String(function)}
	if version := os.Getenv(envLambdaVersion); version != "" {
		input.Qualifier = aws.String(version)
	}
	out, err := p.lambda.GetFunctionConfiguration(ctx, input)
	if err != nil {
		return "", err
	}

	roleARN := aws.ToString(out.Role)
	if !IsRoleARN(roleARN) {
		return "", fmt.Errorf("function configuration has no IAM role ARN: %q", roleARN)
	}
	return roleARN, nil
}

// callerRole derives the role from the STS assumed-role identity.
func (p *LambdaRoleProvider) callerRole(ctx context.Context, region string) (string, error) {
	if p.sts == nil {
		cfg, err := p.opts.loadAWSConfig(ctx, region)
		if err != nil {
			return "", cerrors.NewClientError("failed to create STS client", err)
		}
		p.sts = sts.NewFromConfig(cfg)
	}

	out, err := p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", cerrors.NewClientError("failed to get Lambda caller identity", err)
	}

	roleARN, err := RoleARNFromAssumedRole(aws.ToString(out.Arn))
	if err != nil {
		return "", cerrors.NewClientError("unexpected Lambda caller identity", err)
	}
	return roleARN, nil
}
