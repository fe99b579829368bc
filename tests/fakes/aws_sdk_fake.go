package fakes

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FakeKMSClient is a fake of the KMS Decrypt call. By default the
// "ciphertext" is returned unchanged as plaintext, which pairs with
// Server's identity endpoint that "encrypts" by doing nothing.
type FakeKMSClient struct {
	mu    sync.Mutex
	calls [][]byte

	// DecryptFunc allows custom behavior for Decrypt
	DecryptFunc func(ctx context.Context, params *kms.DecryptInput) (*kms.DecryptOutput, error)
}

// NewFakeKMSClient creates a new fake KMS client
func NewFakeKMSClient() *FakeKMSClient {
	return &FakeKMSClient{}
}

// Decrypt implements the KMS Decrypt call
func (f *FakeKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]byte(nil), params.CiphertextBlob...))
	f.mu.Unlock()

	if f.DecryptFunc != nil {
		return f.DecryptFunc(ctx, params)
	}
	return &kms.DecryptOutput{Plaintext: params.CiphertextBlob}, nil
}

// Calls returns the ciphertexts passed to Decrypt.
func (f *FakeKMSClient) Calls() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.calls...)
}

// FakeSTSClient is a fake of the STS GetCallerIdentity call.
type FakeSTSClient struct {
	// Arn is returned as the caller identity
	Arn string
	// Err, when set, is returned instead
	Err error

	// GetCallerIdentityFunc allows custom behavior for GetCallerIdentity
	GetCallerIdentityFunc func(ctx context.Context, params *sts.GetCallerIdentityInput) (*sts.GetCallerIdentityOutput, error)
}

// GetCallerIdentity implements the STS GetCallerIdentity call
func (f *FakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.GetCallerIdentityFunc != nil {
		return f.GetCallerIdentityFunc(ctx, params)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	account := ""
	if parts := strings.Split(f.Arn, ":"); len(parts) > 4 {
		account = parts[4]
	}
	return &sts.GetCallerIdentityOutput{
		Arn:     aws.String(f.Arn),
		Account: aws.String(account),
		UserId:  aws.String("AROAFAKE:session"),
	}, nil
}

// FakeLambdaClient is a fake of the Lambda GetFunctionConfiguration call.
type FakeLambdaClient struct {
	mu     sync.Mutex
	inputs []lambda.GetFunctionConfigurationInput

	// Role is returned as the function's execution role
	Role string
	// Err, when set, is returned instead
	Err error
}

// GetFunctionConfiguration implements the Lambda GetFunctionConfiguration call
func (f *FakeLambdaClient) GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, *params)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return &lambda.GetFunctionConfigurationOutput{
		FunctionName: params.FunctionName,
		Role:         aws.String(f.Role),
	}, nil
}

// Inputs returns the requests passed to GetFunctionConfiguration.
func (f *FakeLambdaClient) Inputs() []lambda.GetFunctionConfigurationInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lambda.GetFunctionConfigurationInput(nil), f.inputs...)
}

// FakeIMDSClient is a fake of the EC2 instance metadata calls used to
// discover an instance role.
type FakeIMDSClient struct {
	InstanceProfileArn string
	RoleName           string
	Region             string
	AccountID          string
	InstanceID         string
	// Err, when set, is returned from every call
	Err error

	metadataCalls atomic.Int32
}

// GetIAMInfo implements the IMDS GetIAMInfo call
func (f *FakeIMDSClient) GetIAMInfo(ctx context.Context, params *imds.GetIAMInfoInput, optFns ...func(*imds.Options)) (*imds.GetIAMInfoOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &imds.GetIAMInfoOutput{
		IAMInfo: imds.IAMInfo{
			Code:               "Success",
			InstanceProfileArn: f.InstanceProfileArn,
			InstanceProfileID:  "AIPAFAKE",
		},
	}, nil
}

// GetInstanceIdentityDocument implements the IMDS identity document call
func (f *FakeIMDSClient) GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &imds.GetInstanceIdentityDocumentOutput{
		InstanceIdentityDocument: imds.InstanceIdentityDocument{
			Region:    f.Region,
			AccountID: f.AccountID,
		},
	}, nil
}

// GetMetadata implements the IMDS GetMetadata call. Only the instance id
// and the security credentials listing are supported.
func (f *FakeIMDSClient) GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error) {
	f.metadataCalls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	switch params.Path {
	case "instance-id":
		return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader(f.InstanceID))}, nil
	case "iam/security-credentials/":
		return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader(f.RoleName + "\n"))}, nil
	default:
		return nil, fmt.Errorf("unexpected metadata path %q", params.Path)
	}
}

// MetadataCalls returns how many GetMetadata calls were made.
func (f *FakeIMDSClient) MetadataCalls() int {
	return int(f.metadataCalls.Load())
}
