package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	awss3sdk "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsec2 "tasnim.dev/cloud-gaming/internal/aws/ec2"
	awsiam "tasnim.dev/cloud-gaming/internal/aws/iam"
	awss3 "tasnim.dev/cloud-gaming/internal/aws/s3"
	awsvpc "tasnim.dev/cloud-gaming/internal/aws/vpc"
)

type ServiceClient struct {
	EC2    *awsec2.Client
	VPC    *awsvpc.Client
	IAM    *awsiam.Client
	S3     *awss3.Client
	STS    STSAPI
	Region string
}

func NewServiceClient(ctx context.Context, profile, region string) (*ServiceClient, error) {
	cfg, err := LoadConfig(ctx, profile, region)
	if err != nil {
		return nil, err
	}
	return NewServiceClientFromConfig(cfg), nil
}

func NewServiceClientFromConfig(cfg aws.Config) *ServiceClient {
	ec2Client := ec2.NewFromConfig(cfg)

	return &ServiceClient{
		EC2:    awsec2.NewClient(ec2Client),
		VPC:    awsvpc.NewClient(ec2Client),
		IAM:    awsiam.NewClient(iam.NewFromConfig(cfg)),
		S3:     awss3.NewClient(awss3sdk.NewFromConfig(cfg)),
		STS:    sts.NewFromConfig(cfg),
		Region: cfg.Region,
	}
}

