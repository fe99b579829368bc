package awsauth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/cerberus-go/pkg/credentials"
	"github.com/systmms/cerberus-go/pkg/credentials/awsauth"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/tests/fakes"
)

func TestStaticRoleProvider_InvalidArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		roleARN string
		region  string
	}{
		{"blank url", "", "arn:aws:iam::123456789012:role/app", "us-west-2"},
		{"not a role", "https://cerberus.example.com", "arn:aws:iam::123456789012:user/bob", "us-west-2"},
		{"blank region", "https://cerberus.example.com", "arn:aws:iam::123456789012:role/app", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := awsauth.NewStaticRoleProvider(tt.url, tt.roleARN, tt.region)
			assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
		})
	}

	_, err := awsauth.NewStaticRoleProviderForAccount("https://cerberus.example.com", "", "app", "us-west-2")
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
}

func TestStaticRoleProvider_AuthenticatesOnce(t *testing.T) {
	t.Parallel()

	server := fakes.NewServer()
	defer server.Close()

	p, err := awsauth.NewStaticRoleProviderForAccount(server.URL, "123456789012", "app", "us-east-1",
		awsauth.WithKMSClient(fakes.NewFakeKMSClient()), fastRetry())
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/app", p.RoleARN())
	assert.Equal(t, "us-east-1", p.Region())
	assert.Equal(t, "static-role", p.Name())

	for i := 0; i < 3; i++ {
		creds, err := p.Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "s.fake-auth-token", creds.Token())
	}
	assert.Equal(t, 1, server.AuthCalls())
	assert.Equal(t, "us-east-1", server.LastAuthRequest()["region"])
}

func TestInstanceRoleProvider(t *testing.T) {
	t.Parallel()

	server := fakes.NewServer()
	defer server.Close()

	metadata := &fakes.FakeIMDSClient{
		InstanceProfileArn: "arn:aws:iam::123456789012:instance-profile/web-profile",
		RoleName:           "web-role",
		Region:             "eu-west-1",
		AccountID:          "123456789012",
	}

	p, err := awsauth.NewInstanceRoleProvider(server.URL, "",
		awsauth.WithInstanceMetadataClient(metadata),
		awsauth.WithKMSClient(fakes.NewFakeKMSClient()),
		fastRetry())
	require.NoError(t, err)

	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fake-auth-token", creds.Token())
	assert.Equal(t, map[string]interface{}{
		"iam_principal_arn": "arn:aws:iam::123456789012:role/web-role",
		"region":            "eu-west-1",
	}, server.LastAuthRequest())
}

func TestInstanceRoleProvider_MetadataUnavailable(t *testing.T) {
	t.Parallel()

	metadata := &fakes.FakeIMDSClient{Err: errors.New("EC2 IMDS request timed out")}
	p, err := awsauth.NewInstanceRoleProvider("https://cerberus.example.com", "us-west-2",
		awsauth.WithInstanceMetadataClient(metadata))
	require.NoError(t, err)

	_, err = p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))
}

func TestInstanceRoleProvider_ShouldRun(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "")

	metadata := &fakes.FakeIMDSClient{InstanceID: "i-0123456789abcdef0"}
	p, err := awsauth.NewInstanceRoleProvider("https://cerberus.example.com", "us-west-2",
		awsauth.WithInstanceMetadataClient(metadata))
	require.NoError(t, err)

	assert.True(t, p.ShouldRun(context.Background()))
	assert.True(t, p.ShouldRun(context.Background()))
	assert.Equal(t, 1, metadata.MetadataCalls())

	t.Setenv("AWS_EC2_METADATA_DISABLED", "TRUE")
	assert.False(t, p.ShouldRun(context.Background()))
	assert.Equal(t, 1, metadata.MetadataCalls())
}

func TestInstanceRoleProvider_ShouldNotRunOffEC2(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "")

	metadata := &fakes.FakeIMDSClient{Err: errors.New("dial tcp 169.254.169.254:80: connect: no route to host")}
	p, err := awsauth.NewInstanceRoleProvider("https://cerberus.example.com", "us-west-2",
		awsauth.WithInstanceMetadataClient(metadata))
	require.NoError(t, err)

	assert.False(t, p.ShouldRun(context.Background()))
	assert.False(t, p.ShouldRun(context.Background()))
	assert.Equal(t, 1, metadata.MetadataCalls())
}

func TestInstanceRoleProvider_SkippedInChainOffEC2(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	metadata := &fakes.FakeIMDSClient{InstanceID: "i-0123456789abcdef0"}
	instance, err := awsauth.NewInstanceRoleProvider("https://cerberus.example.com", "us-west-2",
		awsauth.WithInstanceMetadataClient(metadata))
	require.NoError(t, err)

	chain, err := credentials.NewChain([]credentials.Provider{instance, credentials.NewStaticProvider("tok")})
	require.NoError(t, err)

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token())
	assert.Zero(t, metadata.MetadataCalls())
}

func TestECSTaskRoleProvider(t *testing.T) {
	ecs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/credentials/task-id" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"RoleArn":"arn:aws:iam::123456789012:role/task-role","AccessKeyId":"AKID"}`))
	}))
	defer ecs.Close()

	server := fakes.NewServer()
	defer server.Close()

	p, err := awsauth.NewECSTaskRoleProvider(server.URL, "",
		awsauth.WithECSEndpoint(ecs.URL),
		awsauth.WithKMSClient(fakes.NewFakeKMSClient()),
		fastRetry())
	require.NoError(t, err)

	t.Setenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI", "")
	t.Setenv("AWS_CONTAINER_CREDENTIALS_FULL_URI", "")
	assert.False(t, p.ShouldRun(context.Background()))

	t.Setenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI", "/v2/credentials/task-id")
	t.Setenv("AWS_REGION", "ap-southeast-2")
	assert.True(t, p.ShouldRun(context.Background()))

	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fake-auth-token", creds.Token())
	assert.Equal(t, map[string]interface{}{
		"iam_principal_arn": "arn:aws:iam::123456789012:role/task-role",
		"region":            "ap-southeast-2",
	}, server.LastAuthRequest())
}

func TestLambdaRoleProvider(t *testing.T) {
	server := fakes.NewServer()
	defer server.Close()

	functions := &fakes.FakeLambdaClient{Role: "arn:aws:iam::123456789012:role/lambda-exec"}
	p, err := awsauth.NewLambdaRoleProvider(server.URL, "us-west-2",
		awsauth.WithLambdaClient(functions),
		awsauth.WithSTSClient(&fakes.FakeSTSClient{Err: errors.New("STS must not be called")}),
		awsauth.WithKMSClient(fakes.NewFakeKMSClient()),
		fastRetry())
	require.NoError(t, err)

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	t.Setenv("AWS_LAMBDA_FUNCTION_VERSION", "")
	assert.False(t, p.ShouldRun(context.Background()))
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-function")
	assert.True(t, p.ShouldRun(context.Background()))

	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fake-auth-token", creds.Token())
	assert.Equal(t, "arn:aws:iam::123456789012:role/lambda-exec", server.LastAuthRequest()["iam_principal_arn"])

	inputs := functions.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "my-function", awssdk.ToString(inputs[0].FunctionName))
	assert.Nil(t, inputs[0].Qualifier)
}

func TestLambdaRoleProvider_KeepsRolePath(t *testing.T) {
	server := fakes.NewServer()
	defer server.Close()

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-fn")
	t.Setenv("AWS_LAMBDA_FUNCTION_VERSION", "7")

	functions := &fakes.FakeLambdaClient{Role: "arn:aws:iam::123456789012:role/service-role/my-fn-role"}
	p, err := awsauth.NewLambdaRoleProvider(server.URL, "us-west-2",
		awsauth.WithLambdaClient(functions),
		awsauth.WithSTSClient(&fakes.FakeSTSClient{Arn: "arn:aws:sts::123456789012:assumed-role/my-fn-role/my-fn"}),
		awsauth.WithKMSClient(fakes.NewFakeKMSClient()),
		fastRetry())
	require.NoError(t, err)

	_, err = p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"iam_principal_arn": "arn:aws:iam::123456789012:role/service-role/my-fn-role",
		"region":            "us-west-2",
	}, server.LastAuthRequest())

	inputs := functions.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "7", awssdk.ToString(inputs[0].Qualifier))
}

func TestLambdaRoleProvider_FallsBackToCallerIdentity(t *testing.T) {
	server := fakes.NewServer()
	defer server.Close()

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-function")
	t.Setenv("AWS_LAMBDA_FUNCTION_VERSION", "")

	p, err := awsauth.NewLambdaRoleProvider(server.URL, "us-west-2",
		awsauth.WithLambdaClient(&fakes.FakeLambdaClient{Err: errors.New("AccessDeniedException: not authorized to perform lambda:GetFunctionConfiguration")}),
		awsauth.WithSTSClient(&fakes.FakeSTSClient{Arn: "arn:aws:sts::123456789012:assumed-role/lambda-exec/my-function"}),
		awsauth.WithKMSClient(fakes.NewFakeKMSClient()),
		fastRetry())
	require.NoError(t, err)

	_, err = p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/lambda-exec", server.LastAuthRequest()["iam_principal_arn"])
}

func TestLambdaRoleProvider_UnexpectedIdentity(t *testing.T) {
	t.Parallel()

	stsClient := &fakes.FakeSTSClient{Arn: "arn:aws:iam::123456789012:user/bob"}
	p, err := awsauth.NewLambdaRoleProvider("https://cerberus.example.com", "us-west-2", awsauth.WithSTSClient(stsClient))
	require.NoError(t, err)

	_, err = p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))
}

func TestSTSIdentityProvider(t *testing.T) {
	t.Parallel()

	server := fakes.NewServer()
	defer server.Close()

	cfg := awssdk.Config{
		Region:      "us-west-2",
		Credentials: awscreds.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "session-token"),
	}
	p, err := awsauth.NewSTSIdentityProvider(server.URL, "us-west-2", awsauth.WithAWSConfig(cfg), fastRetry())
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", p.Region())

	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fake-auth-token", creds.Token())

	headers := server.LastHeaders()
	assert.Contains(t, headers.Get("Authorization"), "/us-west-2/sts/aws4_request")
	assert.Equal(t, "session-token", headers.Get("X-Amz-Security-Token"))
}

func TestSTSIdentityProvider_InChain(t *testing.T) {
	t.Parallel()

	server := fakes.NewServer()
	defer server.Close()

	cfg := awssdk.Config{Credentials: awscreds.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")}
	stsProvider, err := awsauth.NewSTSIdentityProvider(server.URL, "us-west-2", awsauth.WithAWSConfig(cfg), fastRetry())
	require.NoError(t, err)

	broken, err := awsauth.NewLambdaRoleProvider(server.URL, "us-west-2",
		awsauth.WithSTSClient(&fakes.FakeSTSClient{Err: errors.New("no credentials")}))
	require.NoError(t, err)

	chain, err := credentials.NewChain([]credentials.Provider{broken, stsProvider})
	require.NoError(t, err)

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fake-auth-token", creds.Token())

	last, ok := chain.LastUsed()
	require.True(t, ok)
	assert.Equal(t, "sts-identity", credentials.ProviderName(last))
}
