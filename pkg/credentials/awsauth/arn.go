package awsauth

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

const defaultPartition = "aws"

// RoleARN builds the IAM role ARN for role in account.
func RoleARN(account, role string) string {
	return roleARNIn(defaultPartition, account, role)
}

func roleARNIn(partition, account, role string) string {
	return arn.ARN{
		Partition: partition,
		Service:   "iam",
		AccountID: account,
		Resource:  "role/" + strings.TrimPrefix(role, "/"),
	}.String()
}

// IsRoleARN reports whether s is an IAM role ARN.
func IsRoleARN(s string) bool {
	parsed, err := arn.Parse(s)
	if err != nil {
		return false
	}
	return parsed.Service == "iam" && strings.HasPrefix(parsed.Resource, "role/")
}

// RoleARNFromAssumedRole converts an STS assumed-role ARN such as
// arn:aws:sts::123456789012:assumed-role/app/session into the IAM role ARN
// arn:aws:iam::123456789012:role/app. A role ARN is returned unchanged.
//
// Assumed-role ARNs never carry the IAM path, so the result is only correct
// for roles at the root path.
func RoleARNFromAssumedRole(assumed string) (string, error) {
	parsed, err := arn.Parse(assumed)
	if err != nil {
		return "", cerrors.InvalidArgument("%q is not an ARN: %v", assumed, err)
	}
	if parsed.Service == "iam" && strings.HasPrefix(parsed.Resource, "role/") {
		return assumed, nil
	}
	if parsed.Service != "sts" || !strings.HasPrefix(parsed.Resource, "assumed-role/") {
		return "", cerrors.InvalidArgument("%q is not an assumed-role ARN", assumed)
	}

	parts := strings.Split(strings.TrimPrefix(parsed.Resource, "assumed-role/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		return "", cerrors.InvalidArgument("%q has no role name", assumed)
	}

	return roleARNIn(parsed.Partition, parsed.AccountID, parts[0]), nil
}

// AccountFromInstanceProfileARN returns the account id of an instance
// profile ARN.
func AccountFromInstanceProfileARN(profileARN string) (string, error) {
	parsed, err := arn.Parse(profileARN)
	if err != nil {
		return "", fmt.Errorf("invalid instance profile ARN %q: %w", profileARN, err)
	}
	if parsed.Service != "iam" || !strings.HasPrefix(parsed.Resource, "instance-profile/") {
		return "", fmt.Errorf("%q is not an instance profile ARN", profileARN)
	}
	if parsed.AccountID == "" {
		return "", fmt.Errorf("instance profile ARN %q has no account id", profileARN)
	}
	return parsed.AccountID, nil
}

// partitionOf returns the partition of an ARN, defaulting to aws.
func partitionOf(s string) string {
	if parsed, err := arn.Parse(s); err == nil && parsed.Partition != "" {
		return parsed.Partition
	}
	return defaultPartition
}
