package ec2

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"

	"tasnim.dev/cloud-gaming/internal/aws/awserr"
)

// ErrNoImage is returned when no image matches a name pattern.
var ErrNoImage = errors.New("no matching image")

type EC2API interface {
	DescribeImages(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error)
	DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
	RunInstances(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *awsec2.TerminateInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.TerminateInstancesOutput, error)
	CreateLaunchTemplate(ctx context.Context, params *awsec2.CreateLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateLaunchTemplateOutput, error)
	DescribeLaunchTemplates(ctx context.Context, params *awsec2.DescribeLaunchTemplatesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeLaunchTemplatesOutput, error)
	DeleteLaunchTemplate(ctx context.Context, params *awsec2.DeleteLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.DeleteLaunchTemplateOutput, error)
}

type Client struct {
	api EC2API

	// launchAttempts and launchBackoff bound the retries of RunInstances
	// while a fresh instance profile propagates.
	launchAttempts int
	launchBackoff  time.Duration
}

func NewClient(api EC2API) *Client {
	return &Client{
		api:            api,
		launchAttempts: 10,
		launchBackoff:  2 * time.Second,
	}
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

func nameFromTags(tags []types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func toInstance(inst types.Instance) EC2Instance {
	var state string
	if inst.State != nil {
		state = string(inst.State.Name)
	}
	return EC2Instance{
		Name:       nameFromTags(inst.Tags),
		InstanceID: aws.ToString(inst.InstanceId),
		Type:       string(inst.InstanceType),
		State:      state,
		PrivateIP:  aws.ToString(inst.PrivateIpAddress),
		PublicIP:   aws.ToString(inst.PublicIpAddress),
	}
}

// LatestImage returns the newest available image owned by owner whose name
// matches pattern.
func (c *Client) LatestImage(ctx context.Context, pattern, owner string) (Image, error) {
	out, err := c.api.DescribeImages(ctx, &awsec2.DescribeImagesInput{
		Owners: []string{owner},
		Filters: []types.Filter{
			{Name: aws.String("name"), Values: []string{pattern}},
			{Name: aws.String("state"), Values: []string{string(types.ImageStateAvailable)}},
		},
	})
	if err != nil {
		return Image{}, fmt.Errorf("DescribeImages: %w", err)
	}
	if len(out.Images) == 0 {
		return Image{}, fmt.Errorf("%w: %s owned by %s", ErrNoImage, pattern, owner)
	}

	// CreationDate is ISO 8601, so lexical order is chronological.
	latest := lo.MaxBy(out.Images, func(a, b types.Image) bool {
		return aws.ToString(a.CreationDate) > aws.ToString(b.CreationDate)
	})

	img := Image{
		ImageID: aws.ToString(latest.ImageId),
		Name:    aws.ToString(latest.Name),
	}
	if t, err := time.Parse(time.RFC3339, aws.ToString(latest.CreationDate)); err == nil {
		img.CreatedAt = t
	}
	return img, nil
}

// CreateLaunchTemplate creates a launch template requesting spot capacity.
func (c *Client) CreateLaunchTemplate(ctx context.Context, spec LaunchTemplateSpec) (LaunchTemplate, error) {
	log := clog.FromContext(ctx)

	log.Info("creating launch template", "name", spec.Name, "instance_type", spec.InstanceType)
	out, err := c.api.CreateLaunchTemplate(ctx, &awsec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(spec.Name),
		LaunchTemplateData: &types.RequestLaunchTemplateData{
			InstanceType: types.InstanceType(spec.InstanceType),
			KeyName:      aws.String(spec.KeyName),
			NetworkInterfaces: []types.LaunchTemplateInstanceNetworkInterfaceSpecificationRequest{{
				DeviceIndex: aws.Int32(0),
				SubnetId:    aws.String(spec.SubnetID),
				Groups:      []string{spec.SecurityGroupID},
				Description: aws.String("ENI"),
			}},
			InstanceMarketOptions: &types.LaunchTemplateInstanceMarketOptionsRequest{
				MarketType: types.MarketTypeSpot,
				SpotOptions: &types.LaunchTemplateSpotMarketOptionsRequest{
					InstanceInterruptionBehavior: types.InstanceInterruptionBehavior(spec.SpotInterruptionBehavior),
					BlockDurationMinutes:         aws.Int32(int32(spec.SpotBlockDurationMinutes)),
				},
			},
		},
		TagSpecifications: tagSpec(types.ResourceTypeLaunchTemplate, spec.Tags),
	})
	if err != nil {
		return LaunchTemplate{}, fmt.Errorf("CreateLaunchTemplate: %w", err)
	}

	lt := out.LaunchTemplate
	if lt == nil {
		return LaunchTemplate{}, fmt.Errorf("CreateLaunchTemplate: no launch template returned")
	}
	return LaunchTemplate{
		ID:      aws.ToString(lt.LaunchTemplateId),
		Name:    aws.ToString(lt.LaunchTemplateName),
		Version: aws.ToInt64(lt.LatestVersionNumber),
	}, nil
}

// FindLaunchTemplate looks up a launch template by name.
func (c *Client) FindLaunchTemplate(ctx context.Context, name string) (LaunchTemplate, error) {
	out, err := c.api.DescribeLaunchTemplates(ctx, &awsec2.DescribeLaunchTemplatesInput{
		LaunchTemplateNames: []string{name},
	})
	if err != nil {
		if awserr.IsNotFound(err) {
			return LaunchTemplate{}, fmt.Errorf("launch template %s: %w", name, awserr.ErrResourceNotFound)
		}
		return LaunchTemplate{}, fmt.Errorf("DescribeLaunchTemplates: %w", err)
	}
	if len(out.LaunchTemplates) == 0 {
		return LaunchTemplate{}, fmt.Errorf("launch template %s: %w", name, awserr.ErrResourceNotFound)
	}

	lt := out.LaunchTemplates[0]
	return LaunchTemplate{
		ID:      aws.ToString(lt.LaunchTemplateId),
		Name:    aws.ToString(lt.LaunchTemplateName),
		Version: aws.ToInt64(lt.LatestVersionNumber),
	}, nil
}

func (c *Client) DeleteLaunchTemplate(ctx context.Context, id string) error {
	clog.FromContext(ctx).Info("deleting launch template", "id", id)
	_, err := c.api.DeleteLaunchTemplate(ctx, &awsec2.DeleteLaunchTemplateInput{
		LaunchTemplateId: aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("DeleteLaunchTemplate: %w", err)
	}
	return nil
}

// RunInstance launches one instance and returns its id. RunInstances is
// retried only while the instance profile has not propagated yet.
func (c *Client) RunInstance(ctx context.Context, spec InstanceSpec) (string, error) {
	log := clog.FromContext(ctx)

	input := &awsec2.RunInstancesInput{
		ImageId:      aws.String(spec.ImageID),
		InstanceType: types.InstanceType(spec.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		KeyName:      aws.String(spec.KeyName),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(spec.SubnetID),
			AssociatePublicIpAddress: aws.Bool(true),
			Groups:                   []string{spec.SecurityGroupID},
		}},
		BlockDeviceMappings: []types.BlockDeviceMapping{{
			DeviceName: aws.String(spec.RootDeviceName),
			Ebs: &types.EbsBlockDevice{
				VolumeSize:          aws.Int32(int32(spec.RootVolumeSizeGiB)),
				VolumeType:          types.VolumeType(spec.RootVolumeType),
				Encrypted:           aws.Bool(spec.RootVolumeEncrypted),
				DeleteOnTermination: aws.Bool(true),
			},
		}},
		TagSpecifications: tagSpec(types.ResourceTypeInstance, lo.Assign(spec.Tags, map[string]string{"Name": spec.Name})),
	}
	if spec.AvailabilityZone != "" {
		input.Placement = &types.Placement{AvailabilityZone: aws.String(spec.AvailabilityZone)}
	}
	if spec.InstanceProfileName != "" {
		input.IamInstanceProfile = &types.IamInstanceProfileSpecification{
			Name: aws.String(spec.InstanceProfileName),
		}
	}
	if spec.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(spec.UserData)))
	}

	log.Info("launching instance", "name", spec.Name, "instance_type", spec.InstanceType, "image_id", spec.ImageID)

	var result *awsec2.RunInstancesOutput
	backoff := c.launchBackoff
	for attempt := 1; ; attempt++ {
		var err error
		result, err = c.api.RunInstances(ctx, input)
		if err == nil {
			break
		}
		if !isProfilePropagation(err) || attempt >= c.launchAttempts {
			return "", fmt.Errorf("RunInstances: %w", err)
		}

		log.Debug("instance profile not ready, retrying", "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, 30*time.Second)
		}
	}

	if len(result.Instances) == 0 || result.Instances[0].InstanceId == nil {
		return "", fmt.Errorf("RunInstances: no instance returned")
	}
	id := aws.ToString(result.Instances[0].InstanceId)
	log.Info("launched instance", "id", id)
	return id, nil
}

func isProfilePropagation(err error) bool {
	if !awserr.IsCode(err, "InvalidParameterValue") {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "instance profile") || strings.Contains(msg, "iaminstanceprofile")
}

// WaitRunning blocks until the instance is running and returns it with its
// public address.
func (c *Client) WaitRunning(ctx context.Context, id string, maxWait time.Duration) (EC2Instance, error) {
	clog.FromContext(ctx).Info("waiting for instance to run", "id", id)
	out, err := awsec2.NewInstanceRunningWaiter(c.api).WaitForOutput(ctx, &awsec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	}, maxWait)
	if err != nil {
		return EC2Instance{}, fmt.Errorf("waiting for %s to run: %w", id, err)
	}
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			if aws.ToString(inst.InstanceId) == id {
				return toInstance(inst), nil
			}
		}
	}
	return EC2Instance{}, fmt.Errorf("instance %s: %w", id, awserr.ErrResourceNotFound)
}

// FindInstances returns the live (not terminated) instances whose Name tag
// equals name.
func (c *Client) FindInstances(ctx context.Context, name string) ([]EC2Instance, error) {
	var instances []EC2Instance
	var nextToken *string

	for {
		out, err := c.api.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
			Filters: []types.Filter{
				{Name: aws.String("tag:Name"), Values: []string{name}},
				{Name: aws.String("instance-state-name"), Values: []string{
					string(types.InstanceStateNamePending),
					string(types.InstanceStateNameRunning),
					string(types.InstanceStateNameStopping),
					string(types.InstanceStateNameStopped),
				}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances: %w", err)
		}

		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				instances = append(instances, toInstance(inst))
			}
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return instances, nil
}

// TerminateInstances terminates ids and waits until they are gone, so the
// network interfaces holding the security group are released.
func (c *Client) TerminateInstances(ctx context.Context, ids []string, maxWait time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	log := clog.FromContext(ctx)

	log.Info("terminating instances", "ids", ids)
	_, err := c.api.TerminateInstances(ctx, &awsec2.TerminateInstancesInput{
		InstanceIds: ids,
	})
	if err != nil {
		return fmt.Errorf("TerminateInstances: %w", err)
	}

	if err := awsec2.NewInstanceTerminatedWaiter(c.api).Wait(ctx, &awsec2.DescribeInstancesInput{
		InstanceIds: ids,
	}, maxWait); err != nil {
		return fmt.Errorf("waiting for termination: %w", err)
	}
	log.Info("instances terminated", "ids", ids)
	return nil
}
