// Package awserr maps AWS API error codes onto the errors callers branch on.
package awserr

import (
	"errors"
	"slices"

	"github.com/aws/smithy-go"
)

// ErrResourceNotFound is returned when a referenced resource (VPC, subnet,
// security group, launch template, IAM entity) does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// Codes reported by EC2 and IAM for missing resources.
var notFoundCodes = []string{
	"InvalidVpcID.NotFound",
	"InvalidSubnetID.NotFound",
	"InvalidGroup.NotFound",
	"InvalidLaunchTemplateName.NotFoundException",
	"InvalidLaunchTemplateId.NotFound",
	"InvalidInstanceID.NotFound",
	"NoSuchEntity",
}

// Code returns the API error code carried by err, or "" if err is not an API
// error.
func Code(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsCode reports whether err carries one of the given API error codes.
func IsCode(err error, codes ...string) bool {
	code := Code(err)
	return code != "" && slices.Contains(codes, code)
}

// IsNotFound reports whether err means the resource does not exist, either
// as ErrResourceNotFound or as one of the provider's not-found codes.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) || IsCode(err, notFoundCodes...)
}
