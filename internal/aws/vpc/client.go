package vpc

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"

	"tasnim.dev/cloud-gaming/internal/aws/awserr"
)

type VPCAPI interface {
	DescribeVpcs(ctx context.Context, params *awsec2.DescribeVpcsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *awsec2.DescribeSubnetsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *awsec2.DescribeSecurityGroupsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, params *awsec2.CreateSecurityGroupInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *awsec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*awsec2.Options)) (*awsec2.AuthorizeSecurityGroupIngressOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *awsec2.DeleteSecurityGroupInput, optFns ...func(*awsec2.Options)) (*awsec2.DeleteSecurityGroupOutput, error)
}

type Client struct {
	api VPCAPI
}

func NewClient(api VPCAPI) *Client {
	return &Client{api: api}
}

func nameFromTags(tags []types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func tagSpec(rt types.ResourceType, tags map[string]string) []types.TagSpecification {
	if len(tags) == 0 {
		return nil
	}
	keys := lo.Keys(tags)
	slices.Sort(keys)
	return []types.TagSpecification{{
		ResourceType: rt,
		Tags: lo.Map(keys, func(k string, _ int) types.Tag {
			return types.Tag{Key: aws.String(k), Value: aws.String(tags[k])}
		}),
	}}
}

// LookupVPC resolves an existing VPC by id. A missing VPC is reported as
// awserr.ErrResourceNotFound.
func (c *Client) LookupVPC(ctx context.Context, vpcID string) (VPCInfo, error) {
	out, err := c.api.DescribeVpcs(ctx, &awsec2.DescribeVpcsInput{
		VpcIds: []string{vpcID},
	})
	if err != nil {
		if awserr.IsNotFound(err) {
			return VPCInfo{}, fmt.Errorf("vpc %s: %w", vpcID, awserr.ErrResourceNotFound)
		}
		return VPCInfo{}, fmt.Errorf("DescribeVpcs: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return VPCInfo{}, fmt.Errorf("vpc %s: %w", vpcID, awserr.ErrResourceNotFound)
	}

	v := out.Vpcs[0]
	return VPCInfo{
		VPCID:     aws.ToString(v.VpcId),
		Name:      nameFromTags(v.Tags),
		CIDR:      aws.ToString(v.CidrBlock),
		IsDefault: aws.ToBool(v.IsDefault),
		State:     string(v.State),
	}, nil
}

// LookupSubnet resolves an existing subnet by id. A missing subnet is
// reported as awserr.ErrResourceNotFound.
func (c *Client) LookupSubnet(ctx context.Context, subnetID string) (SubnetInfo, error) {
	out, err := c.api.DescribeSubnets(ctx, &awsec2.DescribeSubnetsInput{
		SubnetIds: []string{subnetID},
	})
	if err != nil {
		if awserr.IsNotFound(err) {
			return SubnetInfo{}, fmt.Errorf("subnet %s: %w", subnetID, awserr.ErrResourceNotFound)
		}
		return SubnetInfo{}, fmt.Errorf("DescribeSubnets: %w", err)
	}
	if len(out.Subnets) == 0 {
		return SubnetInfo{}, fmt.Errorf("subnet %s: %w", subnetID, awserr.ErrResourceNotFound)
	}

	s := out.Subnets[0]
	return SubnetInfo{
		SubnetID:     aws.ToString(s.SubnetId),
		VPCID:        aws.ToString(s.VpcId),
		Name:         nameFromTags(s.Tags),
		CIDR:         aws.ToString(s.CidrBlock),
		AZ:           aws.ToString(s.AvailabilityZone),
		AvailableIPs: int(aws.ToInt32(s.AvailableIpAddressCount)),
	}, nil
}

// FindSecurityGroup returns the security group called name in vpcID.
func (c *Client) FindSecurityGroup(ctx context.Context, vpcID, name string) (SecurityGroupInfo, error) {
	var nextToken *string

	for {
		out, err := c.api.DescribeSecurityGroups(ctx, &awsec2.DescribeSecurityGroupsInput{
			Filters: []types.Filter{
				{Name: aws.String("vpc-id"), Values: []string{vpcID}},
				{Name: aws.String("group-name"), Values: []string{name}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return SecurityGroupInfo{}, fmt.Errorf("DescribeSecurityGroups: %w", err)
		}

		for _, sg := range out.SecurityGroups {
			if aws.ToString(sg.GroupName) != name {
				continue
			}
			return SecurityGroupInfo{
				GroupID:      aws.ToString(sg.GroupId),
				Name:         aws.ToString(sg.GroupName),
				Description:  aws.ToString(sg.Description),
				VPCID:        aws.ToString(sg.VpcId),
				InboundRules: lo.Map(sg.IpPermissions, toRule),
			}, nil
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return SecurityGroupInfo{}, fmt.Errorf("security group %s: %w", name, awserr.ErrResourceNotFound)
}

func toRule(p types.IpPermission, _ int) SecurityGroupRule {
	return SecurityGroupRule{
		Protocol: NormalizeProtocol(aws.ToString(p.IpProtocol)),
		FromPort: int(aws.ToInt32(p.FromPort)),
		ToPort:   int(aws.ToInt32(p.ToPort)),
		Sources: lo.Map(p.IpRanges, func(r types.IpRange, _ int) string {
			return aws.ToString(r.CidrIp)
		}),
	}
}

// CreateSecurityGroup creates a security group and returns its id. New
// groups allow all outbound traffic.
func (c *Client) CreateSecurityGroup(ctx context.Context, spec SecurityGroupSpec) (string, error) {
	log := clog.FromContext(ctx)

	log.Info("creating security group", "name", spec.Name, "vpc_id", spec.VPCID)
	out, err := c.api.CreateSecurityGroup(ctx, &awsec2.CreateSecurityGroupInput{
		GroupName:         aws.String(spec.Name),
		Description:       aws.String(spec.Description),
		VpcId:             aws.String(spec.VPCID),
		TagSpecifications: tagSpec(types.ResourceTypeSecurityGroup, spec.Tags),
	})
	if err != nil {
		return "", fmt.Errorf("CreateSecurityGroup: %w", err)
	}
	return aws.ToString(out.GroupId), nil
}

// AuthorizeIngress opens perm on groupID. A rule that already exists is not
// an error.
func (c *Client) AuthorizeIngress(ctx context.Context, groupID string, perm IngressPermission) error {
	log := clog.FromContext(ctx)

	port := aws.Int32(int32(perm.Port))
	_, err := c.api.AuthorizeSecurityGroupIngress(ctx, &awsec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(groupID),
		IpPermissions: []types.IpPermission{{
			IpProtocol: aws.String(perm.Protocol),
			FromPort:   port,
			ToPort:     port,
			IpRanges: []types.IpRange{{
				CidrIp:      aws.String(perm.CIDR),
				Description: aws.String(perm.Description),
			}},
		}},
	})
	if awserr.IsCode(err, "InvalidPermission.Duplicate") {
		log.Debug("ingress rule already present", "group_id", groupID, "port", perm.Port)
		return nil
	}
	if err != nil {
		return fmt.Errorf("AuthorizeSecurityGroupIngress: %w", err)
	}
	return nil
}

func (c *Client) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	clog.FromContext(ctx).Info("deleting security group", "group_id", groupID)
	_, err := c.api.DeleteSecurityGroup(ctx, &awsec2.DeleteSecurityGroupInput{
		GroupId: aws.String(groupID),
	})
	if err != nil {
		return fmt.Errorf("DeleteSecurityGroup: %w", err)
	}
	return nil
}
