package ec2

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasnim.dev/cloud-gaming/internal/aws/awserr"
)

type mockEC2API struct {
	describeImagesFunc          func(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error)
	describeInstancesFunc       func(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
	runInstancesFunc            func(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error)
	terminateInstancesFunc      func(ctx context.Context, params *awsec2.TerminateInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.TerminateInstancesOutput, error)
	createLaunchTemplateFunc    func(ctx context.Context, params *awsec2.CreateLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateLaunchTemplateOutput, error)
	describeLaunchTemplatesFunc func(ctx context.Context, params *awsec2.DescribeLaunchTemplatesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeLaunchTemplatesOutput, error)
	deleteLaunchTemplateFunc    func(ctx context.Context, params *awsec2.DeleteLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.DeleteLaunchTemplateOutput, error)
}

func (m *mockEC2API) DescribeImages(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error) {
	return m.describeImagesFunc(ctx, params, optFns...)
}

func (m *mockEC2API) DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error) {
	return m.describeInstancesFunc(ctx, params, optFns...)
}

func (m *mockEC2API) RunInstances(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error) {
	return m.runInstancesFunc(ctx, params, optFns...)
}

func (m *mockEC2API) TerminateInstances(ctx context.Context, params *awsec2.TerminateInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.TerminateInstancesOutput, error) {
	return m.terminateInstancesFunc(ctx, params, optFns...)
}

func (m *mockEC2API) CreateLaunchTemplate(ctx context.Context, params *awsec2.CreateLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateLaunchTemplateOutput, error) {
	return m.createLaunchTemplateFunc(ctx, params, optFns...)
}

func (m *mockEC2API) DescribeLaunchTemplates(ctx context.Context, params *awsec2.DescribeLaunchTemplatesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeLaunchTemplatesOutput, error) {
	return m.describeLaunchTemplatesFunc(ctx, params, optFns...)
}

func (m *mockEC2API) DeleteLaunchTemplate(ctx context.Context, params *awsec2.DeleteLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.DeleteLaunchTemplateOutput, error) {
	return m.deleteLaunchTemplateFunc(ctx, params, optFns...)
}

func apiError(code, msg string) error {
	return &smithy.GenericAPIError{Code: code, Message: msg}
}

func testClient(mock *mockEC2API) *Client {
	c := NewClient(mock)
	c.launchBackoff = time.Millisecond
	return c
}

func TestLatestImage(t *testing.T) {
	mock := &mockEC2API{
		describeImagesFunc: func(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error) {
			assert.Equal(t, []string{"amazon"}, params.Owners)
			assert.Equal(t, []string{"Windows_Server-2019-English-Full-Base-*"}, params.Filters[0].Values)
			return &awsec2.DescribeImagesOutput{
				Images: []types.Image{
					{ImageId: awssdk.String("ami-old"), Name: awssdk.String("old"), CreationDate: awssdk.String("2024-01-10T08:00:00.000Z")},
					{ImageId: awssdk.String("ami-new"), Name: awssdk.String("new"), CreationDate: awssdk.String("2025-03-12T08:00:00.000Z")},
					{ImageId: awssdk.String("ami-mid"), Name: awssdk.String("mid"), CreationDate: awssdk.String("2024-11-01T08:00:00.000Z")},
				},
			}, nil
		},
	}

	img, err := testClient(mock).LatestImage(context.Background(), "Windows_Server-2019-English-Full-Base-*", "amazon")
	require.NoError(t, err)
	assert.Equal(t, "ami-new", img.ImageID)
	assert.Equal(t, 2025, img.CreatedAt.Year())
}

func TestLatestImage_None(t *testing.T) {
	mock := &mockEC2API{
		describeImagesFunc: func(ctx context.Context, params *awsec2.DescribeImagesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeImagesOutput, error) {
			return &awsec2.DescribeImagesOutput{}, nil
		},
	}
	_, err := testClient(mock).LatestImage(context.Background(), "nothing-*", "amazon")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestCreateLaunchTemplate(t *testing.T) {
	mock := &mockEC2API{
		createLaunchTemplateFunc: func(ctx context.Context, params *awsec2.CreateLaunchTemplateInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateLaunchTemplateOutput, error) {
			data := params.LaunchTemplateData
			assert.Equal(t, types.InstanceType("g4ad.4xlarge"), data.InstanceType)
			assert.Equal(t, types.MarketTypeSpot, data.InstanceMarketOptions.MarketType)
			assert.Equal(t, types.InstanceInterruptionBehaviorStop, data.InstanceMarketOptions.SpotOptions.InstanceInterruptionBehavior)
			assert.Equal(t, int32(120), awssdk.ToInt32(data.InstanceMarketOptions.SpotOptions.BlockDurationMinutes))
			assert.Equal(t, []string{"sg-1"}, data.NetworkInterfaces[0].Groups)
			return &awsec2.CreateLaunchTemplateOutput{
				LaunchTemplate: &types.LaunchTemplate{
					LaunchTemplateId:    awssdk.String("lt-123"),
					LaunchTemplateName:  params.LaunchTemplateName,
					LatestVersionNumber: awssdk.Int64(1),
				},
			}, nil
		},
	}

	lt, err := testClient(mock).CreateLaunchTemplate(context.Background(), LaunchTemplateSpec{
		Name:                     "tmpl",
		InstanceType:             "g4ad.4xlarge",
		KeyName:                  "key",
		SubnetID:                 "subnet-1",
		SecurityGroupID:          "sg-1",
		SpotInterruptionBehavior: "stop",
		SpotBlockDurationMinutes: 120,
	})
	require.NoError(t, err)
	assert.Equal(t, LaunchTemplate{ID: "lt-123", Name: "tmpl", Version: 1}, lt)
}

func TestFindLaunchTemplate_NotFound(t *testing.T) {
	mock := &mockEC2API{
		describeLaunchTemplatesFunc: func(ctx context.Context, params *awsec2.DescribeLaunchTemplatesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeLaunchTemplatesOutput, error) {
			return nil, apiError("InvalidLaunchTemplateName.NotFoundException", "not found")
		},
	}
	_, err := testClient(mock).FindLaunchTemplate(context.Background(), "tmpl")
	assert.ErrorIs(t, err, awserr.ErrResourceNotFound)
}

func TestRunInstance(t *testing.T) {
	mock := &mockEC2API{
		runInstancesFunc: func(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error) {
			decoded, err := base64.StdEncoding.DecodeString(awssdk.ToString(params.UserData))
			require.NoError(t, err)
			assert.Equal(t, "<powershell>\necho hi\n</powershell>", string(decoded))

			assert.Equal(t, "profile", awssdk.ToString(params.IamInstanceProfile.Name))
			assert.Equal(t, "us-east-1a", awssdk.ToString(params.Placement.AvailabilityZone))

			ebs := params.BlockDeviceMappings[0]
			assert.Equal(t, "/dev/sda1", awssdk.ToString(ebs.DeviceName))
			assert.Equal(t, int32(150), awssdk.ToInt32(ebs.Ebs.VolumeSize))
			assert.Equal(t, types.VolumeTypeGp3, ebs.Ebs.VolumeType)
			assert.True(t, awssdk.ToBool(ebs.Ebs.Encrypted))

			tags := params.TagSpecifications[0].Tags
			require.Len(t, tags, 2)
			assert.Equal(t, "Application", awssdk.ToString(tags[0].Key))
			assert.Equal(t, "Name", awssdk.ToString(tags[1].Key))
			assert.Equal(t, "gaming/g4ad.4xlarge", awssdk.ToString(tags[1].Value))

			return &awsec2.RunInstancesOutput{
				Instances: []types.Instance{{InstanceId: awssdk.String("i-123")}},
			}, nil
		},
	}

	id, err := testClient(mock).RunInstance(context.Background(), InstanceSpec{
		Name:                "gaming/g4ad.4xlarge",
		ImageID:             "ami-1",
		InstanceType:        "g4ad.4xlarge",
		KeyName:             "key",
		SubnetID:            "subnet-1",
		AvailabilityZone:    "us-east-1a",
		SecurityGroupID:     "sg-1",
		InstanceProfileName: "profile",
		UserData:            "<powershell>\necho hi\n</powershell>",
		RootDeviceName:      "/dev/sda1",
		RootVolumeSizeGiB:   150,
		RootVolumeType:      "gp3",
		RootVolumeEncrypted: true,
		Tags:                map[string]string{"Application": "cloud-gaming"},
	})
	require.NoError(t, err)
	assert.Equal(t, "i-123", id)
}

func TestRunInstance_Retry(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
		wantErr   bool
	}{
		{
			name:      "profile propagation is retried",
			err:       apiError("InvalidParameterValue", "Value (x) for parameter iamInstanceProfile.name is invalid. Invalid IAM Instance Profile name"),
			wantCalls: 3,
		},
		{
			name:      "other invalid parameter is not retried",
			err:       apiError("InvalidParameterValue", "Invalid value for volume size"),
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "capacity error is not retried",
			err:       apiError("InsufficientInstanceCapacity", "no capacity"),
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			mock := &mockEC2API{
				runInstancesFunc: func(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error) {
					calls++
					if calls < 3 {
						return nil, tt.err
					}
					return &awsec2.RunInstancesOutput{
						Instances: []types.Instance{{InstanceId: awssdk.String("i-123")}},
					}, nil
				},
			}

			_, err := testClient(mock).RunInstance(context.Background(), InstanceSpec{InstanceProfileName: "p"})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunInstance_RetriesExhausted(t *testing.T) {
	calls := 0
	mock := &mockEC2API{
		runInstancesFunc: func(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error) {
			calls++
			return nil, apiError("InvalidParameterValue", "Invalid IAM Instance Profile name")
		},
	}

	c := testClient(mock)
	c.launchAttempts = 4
	_, err := c.RunInstance(context.Background(), InstanceSpec{})
	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestWaitRunning(t *testing.T) {
	mock := &mockEC2API{
		describeInstancesFunc: func(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error) {
			return &awsec2.DescribeInstancesOutput{
				Reservations: []types.Reservation{{
					Instances: []types.Instance{{
						InstanceId:      awssdk.String("i-123"),
						InstanceType:    types.InstanceType("g4ad.4xlarge"),
						State:           &types.InstanceState{Name: types.InstanceStateNameRunning},
						PublicIpAddress: awssdk.String("54.21.3.100"),
						Tags:            []types.Tag{{Key: awssdk.String("Name"), Value: awssdk.String("gaming")}},
					}},
				}},
			}, nil
		},
	}

	inst, err := testClient(mock).WaitRunning(context.Background(), "i-123", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, EC2Instance{
		Name:       "gaming",
		InstanceID: "i-123",
		Type:       "g4ad.4xlarge",
		State:      "running",
		PublicIP:   "54.21.3.100",
	}, inst)
}

func TestFindInstances(t *testing.T) {
	calls := 0
	mock := &mockEC2API{
		describeInstancesFunc: func(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error) {
			calls++
			assert.Equal(t, "tag:Name", awssdk.ToString(params.Filters[0].Name))
			assert.Equal(t, []string{"gaming"}, params.Filters[0].Values)
			if calls == 1 {
				return &awsec2.DescribeInstancesOutput{
					Reservations: []types.Reservation{{Instances: []types.Instance{{InstanceId: awssdk.String("i-1")}}}},
					NextToken:    awssdk.String("next"),
				}, nil
			}
			return &awsec2.DescribeInstancesOutput{
				Reservations: []types.Reservation{{Instances: []types.Instance{{InstanceId: awssdk.String("i-2")}}}},
			}, nil
		},
	}

	instances, err := testClient(mock).FindInstances(context.Background(), "gaming")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "i-1", instances[0].InstanceID)
	assert.Equal(t, "i-2", instances[1].InstanceID)
}

func TestTerminateInstances(t *testing.T) {
	terminated := false
	mock := &mockEC2API{
		terminateInstancesFunc: func(ctx context.Context, params *awsec2.TerminateInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.TerminateInstancesOutput, error) {
			assert.Equal(t, []string{"i-1"}, params.InstanceIds)
			terminated = true
			return &awsec2.TerminateInstancesOutput{}, nil
		},
		describeInstancesFunc: func(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error) {
			return &awsec2.DescribeInstancesOutput{
				Reservations: []types.Reservation{{
					Instances: []types.Instance{{
						InstanceId: awssdk.String("i-1"),
						State:      &types.InstanceState{Name: types.InstanceStateNameTerminated},
					}},
				}},
			}, nil
		},
	}

	require.NoError(t, testClient(mock).TerminateInstances(context.Background(), []string{"i-1"}, time.Minute))
	assert.True(t, terminated)

	// Nothing to do, nothing called.
	assert.NoError(t, testClient(&mockEC2API{}).TerminateInstances(context.Background(), nil, time.Minute))
}
