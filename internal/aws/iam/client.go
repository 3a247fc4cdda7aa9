package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsiam "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"

	"tasnim.dev/cloud-gaming/internal/aws/awserr"
)

type IAMAPI interface {
	CreateRole(ctx context.Context, params *awsiam.CreateRoleInput, optFns ...func(*awsiam.Options)) (*awsiam.CreateRoleOutput, error)
	GetRole(ctx context.Context, params *awsiam.GetRoleInput, optFns ...func(*awsiam.Options)) (*awsiam.GetRoleOutput, error)
	DeleteRole(ctx context.Context, params *awsiam.DeleteRoleInput, optFns ...func(*awsiam.Options)) (*awsiam.DeleteRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *awsiam.AttachRolePolicyInput, optFns ...func(*awsiam.Options)) (*awsiam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *awsiam.DetachRolePolicyInput, optFns ...func(*awsiam.Options)) (*awsiam.DetachRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *awsiam.ListAttachedRolePoliciesInput, optFns ...func(*awsiam.Options)) (*awsiam.ListAttachedRolePoliciesOutput, error)
	CreateInstanceProfile(ctx context.Context, params *awsiam.CreateInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.CreateInstanceProfileOutput, error)
	GetInstanceProfile(ctx context.Context, params *awsiam.GetInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.GetInstanceProfileOutput, error)
	DeleteInstanceProfile(ctx context.Context, params *awsiam.DeleteInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.DeleteInstanceProfileOutput, error)
	AddRoleToInstanceProfile(ctx context.Context, params *awsiam.AddRoleToInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.AddRoleToInstanceProfileOutput, error)
	RemoveRoleFromInstanceProfile(ctx context.Context, params *awsiam.RemoveRoleFromInstanceProfileInput, optFns ...func(*awsiam.Options)) (*awsiam.RemoveRoleFromInstanceProfileOutput, error)
}

type Client struct {
	api IAMAPI
}

func NewClient(api IAMAPI) *Client {
	return &Client{api: api}
}

func iamTags(tags map[string]string) []iamtypes.Tag {
	keys := lo.Keys(tags)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) iamtypes.Tag {
		return iamtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])}
	})
}

func notFound(kind, name string, err error) error {
	if awserr.IsNotFound(err) {
		return fmt.Errorf("%s %s: %w", kind, name, awserr.ErrResourceNotFound)
	}
	return nil
}

// CreateRole creates a role and returns its ARN.
func (c *Client) CreateRole(ctx context.Context, spec RoleSpec) (string, error) {
	log := clog.FromContext(ctx)

	doc, err := json.Marshal(spec.TrustPolicy)
	if err != nil {
		return "", fmt.Errorf("marshalling trust policy: %w", err)
	}

	log.Info("creating IAM role", "role_name", spec.Name)
	out, err := c.api.CreateRole(ctx, &awsiam.CreateRoleInput{
		RoleName:                 aws.String(spec.Name),
		AssumeRolePolicyDocument: aws.String(string(doc)),
		Description:              aws.String(spec.Description),
		Tags:                     iamTags(spec.Tags),
	})
	if err != nil {
		return "", fmt.Errorf("CreateRole(%s): %w", spec.Name, err)
	}
	return aws.ToString(out.Role.Arn), nil
}

// GetRole fetches a role by name. A missing role is reported as
// awserr.ErrResourceNotFound.
func (c *Client) GetRole(ctx context.Context, name string) (IAMRole, error) {
	out, err := c.api.GetRole(ctx, &awsiam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if nf := notFound("role", name, err); nf != nil {
			return IAMRole{}, nf
		}
		return IAMRole{}, fmt.Errorf("GetRole(%s): %w", name, err)
	}

	r := out.Role
	var createdAt time.Time
	if r.CreateDate != nil {
		createdAt = *r.CreateDate
	}

	policyDoc := aws.ToString(r.AssumeRolePolicyDocument)
	if decoded, err := url.QueryUnescape(policyDoc); err == nil {
		policyDoc = decoded
	}

	return IAMRole{
		Name:                     aws.ToString(r.RoleName),
		RoleID:                   aws.ToString(r.RoleId),
		ARN:                      aws.ToString(r.Arn),
		Path:                     aws.ToString(r.Path),
		Description:              aws.ToString(r.Description),
		CreatedAt:                createdAt,
		AssumeRolePolicyDocument: policyDoc,
	}, nil
}

func (c *Client) DeleteRole(ctx context.Context, name string) error {
	clog.FromContext(ctx).Info("deleting IAM role", "role_name", name)
	if _, err := c.api.DeleteRole(ctx, &awsiam.DeleteRoleInput{RoleName: aws.String(name)}); err != nil {
		return fmt.Errorf("DeleteRole(%s): %w", name, err)
	}
	return nil
}

func (c *Client) AttachRolePolicy(ctx context.Context, roleName, policyArn string) error {
	clog.FromContext(ctx).Info("attaching policy to IAM role", "role_name", roleName, "policy_arn", policyArn)
	_, err := c.api.AttachRolePolicy(ctx, &awsiam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyArn),
	})
	if err != nil {
		return fmt.Errorf("AttachRolePolicy(%s): %w", roleName, err)
	}
	return nil
}

func (c *Client) DetachRolePolicy(ctx context.Context, roleName, policyArn string) error {
	clog.FromContext(ctx).Info("detaching policy from IAM role", "role_name", roleName, "policy_arn", policyArn)
	_, err := c.api.DetachRolePolicy(ctx, &awsiam.DetachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyArn),
	})
	if err != nil {
		return fmt.Errorf("DetachRolePolicy(%s): %w", roleName, err)
	}
	return nil
}

func (c *Client) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]IAMAttachedPolicy, error) {
	var policies []IAMAttachedPolicy
	var marker *string

	for {
		out, err := c.api.ListAttachedRolePolicies(ctx, &awsiam.ListAttachedRolePoliciesInput{
			RoleName: aws.String(roleName),
			Marker:   marker,
		})
		if err != nil {
			return nil, fmt.Errorf("ListAttachedRolePolicies(%s): %w", roleName, err)
		}

		for _, p := range out.AttachedPolicies {
			policies = append(policies, IAMAttachedPolicy{
				Name: aws.ToString(p.PolicyName),
				ARN:  aws.ToString(p.PolicyArn),
			})
		}

		if !out.IsTruncated {
			break
		}
		marker = out.Marker
	}

	return policies, nil
}

// CreateInstanceProfile creates an instance profile and returns its ARN.
func (c *Client) CreateInstanceProfile(ctx context.Context, name string, tags map[string]string) (string, error) {
	clog.FromContext(ctx).Info("creating IAM instance profile", "profile_name", name)
	out, err := c.api.CreateInstanceProfile(ctx, &awsiam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(name),
		Tags:                iamTags(tags),
	})
	if err != nil {
		return "", fmt.Errorf("CreateInstanceProfile(%s): %w", name, err)
	}
	return aws.ToString(out.InstanceProfile.Arn), nil
}

// GetInstanceProfile fetches an instance profile with the names of its
// roles. A missing profile is reported as awserr.ErrResourceNotFound.
func (c *Client) GetInstanceProfile(ctx context.Context, name string) (InstanceProfile, error) {
	out, err := c.api.GetInstanceProfile(ctx, &awsiam.GetInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	})
	if err != nil {
		if nf := notFound("instance profile", name, err); nf != nil {
			return InstanceProfile{}, nf
		}
		return InstanceProfile{}, fmt.Errorf("GetInstanceProfile(%s): %w", name, err)
	}

	p := out.InstanceProfile
	return InstanceProfile{
		Name: aws.ToString(p.InstanceProfileName),
		ARN:  aws.ToString(p.Arn),
		Roles: lo.Map(p.Roles, func(r iamtypes.Role, _ int) string {
			return aws.ToString(r.RoleName)
		}),
	}, nil
}

func (c *Client) DeleteInstanceProfile(ctx context.Context, name string) error {
	clog.FromContext(ctx).Info("deleting IAM instance profile", "profile_name", name)
	_, err := c.api.DeleteInstanceProfile(ctx, &awsiam.DeleteInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("DeleteInstanceProfile(%s): %w", name, err)
	}
	return nil
}

func (c *Client) AddRoleToInstanceProfile(ctx context.Context, profileName, roleName string) error {
	clog.FromContext(ctx).Info("adding role to instance profile", "profile_name", profileName, "role_name", roleName)
	_, err := c.api.AddRoleToInstanceProfile(ctx, &awsiam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		RoleName:            aws.String(roleName),
	})
	if err != nil {
		return fmt.Errorf("AddRoleToInstanceProfile(%s): %w", profileName, err)
	}
	return nil
}

func (c *Client) RemoveRoleFromInstanceProfile(ctx context.Context, profileName, roleName string) error {
	clog.FromContext(ctx).Info("removing role from instance profile", "profile_name", profileName, "role_name", roleName)
	_, err := c.api.RemoveRoleFromInstanceProfile(ctx, &awsiam.RemoveRoleFromInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		RoleName:            aws.String(roleName),
	})
	if err != nil {
		return fmt.Errorf("RemoveRoleFromInstanceProfile(%s): %w", profileName, err)
	}
	return nil
}
