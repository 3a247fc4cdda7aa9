// Package deploy creates the resources of a stack.Graph through the EC2 and
// IAM APIs and removes them again. A deploy is all-or-nothing: when a step
// fails, every resource created before it is deleted in reverse order.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	awsec2 "tasnim.dev/cloud-gaming/internal/aws/ec2"
	awsiam "tasnim.dev/cloud-gaming/internal/aws/iam"
	awss3 "tasnim.dev/cloud-gaming/internal/aws/s3"
	awsvpc "tasnim.dev/cloud-gaming/internal/aws/vpc"
	"tasnim.dev/cloud-gaming/internal/flavor"
	"tasnim.dev/cloud-gaming/internal/stack"
)

const defaultWaitTimeout = 15 * time.Minute

// Network is the subset of the VPC client a deploy needs.
type Network interface {
	LookupVPC(ctx context.Context, vpcID string) (awsvpc.VPCInfo, error)
	LookupSubnet(ctx context.Context, subnetID string) (awsvpc.SubnetInfo, error)
	FindSecurityGroup(ctx context.Context, vpcID, name string) (awsvpc.SecurityGroupInfo, error)
	CreateSecurityGroup(ctx context.Context, spec awsvpc.SecurityGroupSpec) (string, error)
	AuthorizeIngress(ctx context.Context, groupID string, perm awsvpc.IngressPermission) error
	DeleteSecurityGroup(ctx context.Context, groupID string) error
}

// Compute is the subset of the EC2 client a deploy needs.
type Compute interface {
	LatestImage(ctx context.Context, pattern, owner string) (awsec2.Image, error)
	CreateLaunchTemplate(ctx context.Context, spec awsec2.LaunchTemplateSpec) (awsec2.LaunchTemplate, error)
	FindLaunchTemplate(ctx context.Context, name string) (awsec2.LaunchTemplate, error)
	DeleteLaunchTemplate(ctx context.Context, id string) error
	RunInstance(ctx context.Context, spec awsec2.InstanceSpec) (string, error)
	WaitRunning(ctx context.Context, id string, maxWait time.Duration) (awsec2.EC2Instance, error)
	FindInstances(ctx context.Context, name string) ([]awsec2.EC2Instance, error)
	TerminateInstances(ctx context.Context, ids []string, maxWait time.Duration) error
}

// Identity is the subset of the IAM client a deploy needs.
type Identity interface {
	CreateRole(ctx context.Context, spec awsiam.RoleSpec) (string, error)
	GetRole(ctx context.Context, name string) (awsiam.IAMRole, error)
	DeleteRole(ctx context.Context, name string) error
	AttachRolePolicy(ctx context.Context, roleName, policyArn string) error
	DetachRolePolicy(ctx context.Context, roleName, policyArn string) error
	ListAttachedRolePolicies(ctx context.Context, roleName string) ([]awsiam.IAMAttachedPolicy, error)
	CreateInstanceProfile(ctx context.Context, name string, tags map[string]string) (string, error)
	GetInstanceProfile(ctx context.Context, name string) (awsiam.InstanceProfile, error)
	DeleteInstanceProfile(ctx context.Context, name string) error
	AddRoleToInstanceProfile(ctx context.Context, profileName, roleName string) error
	RemoveRoleFromInstanceProfile(ctx context.Context, profileName, roleName string) error
}

// Storage lists objects, used to check the driver bundle before launch.
type Storage interface {
	Objects(ctx context.Context, q awss3.ObjectQuery) ([]awss3.S3Object, error)
}

type Config struct {
	Network  Network
	Compute  Compute
	Identity Identity
	// Storage and Drivers are optional. When both are set the preflight
	// checks the driver bundle is not empty.
	Storage Storage
	Drivers *flavor.DriverBundle
	// WaitTimeout bounds waiting for the instance to run or terminate.
	WaitTimeout time.Duration
}

type Deployer struct {
	cfg Config
}

func New(cfg Config) *Deployer {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	return &Deployer{cfg: cfg}
}

// Resolved holds what the preflight looked up.
type Resolved struct {
	VPC     awsvpc.VPCInfo
	Subnet  awsvpc.SubnetInfo
	Drivers []awss3.S3Object
}

// Preflight runs the read-only lookups a deploy depends on concurrently.
// A missing VPC or subnet fails with awserr.ErrResourceNotFound; an empty
// or unreadable driver bundle is only logged.
func (d *Deployer) Preflight(ctx context.Context, g *stack.Graph) (Resolved, error) {
	log := clog.FromContext(ctx)

	var res Resolved
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		vpc, err := d.cfg.Network.LookupVPC(egCtx, g.Network.VpcID)
		if err != nil {
			return fmt.Errorf("looking up VPC: %w", err)
		}
		res.VPC = vpc
		return nil
	})

	eg.Go(func() error {
		subnet, err := d.cfg.Network.LookupSubnet(egCtx, g.Network.SubnetID)
		if err != nil {
			return fmt.Errorf("looking up subnet: %w", err)
		}
		res.Subnet = subnet
		return nil
	})

	if d.cfg.Storage != nil && d.cfg.Drivers != nil {
		bundle := *d.cfg.Drivers
		eg.Go(func() error {
			objects, err := d.cfg.Storage.Objects(egCtx, awss3.ObjectQuery{
				Bucket: bundle.Bucket,
				Prefix: bundle.Prefix + "/",
				Region: bundle.Region,
			})
			switch {
			case err != nil:
				log.Warn("could not list driver bundle", "bucket", bundle.Bucket, "prefix", bundle.Prefix, "error", err)
			case len(objects) == 0:
				log.Warn("driver bundle is empty, the boot script will install no GPU driver", "bucket", bundle.Bucket, "prefix", bundle.Prefix)
			default:
				log.Debug("driver bundle found", "bucket", bundle.Bucket, "objects", len(objects))
			}
			res.Drivers = objects
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return Resolved{}, err
	}

	if res.Subnet.VPCID != "" && res.Subnet.VPCID != res.VPC.VPCID {
		log.Warn("subnet is not in the configured VPC", "subnet_id", res.Subnet.SubnetID, "subnet_vpc", res.Subnet.VPCID, "vpc_id", res.VPC.VPCID)
	}
	return res, nil
}

// Deploy runs the preflight and creates every resource of g in dependency
// order. On failure everything created so far is removed and the original
// error is returned, joined with any rollback errors.
func (d *Deployer) Deploy(ctx context.Context, g *stack.Graph) (out stack.Outputs, err error) {
	log := clog.FromContext(ctx).With("stack", g.ID)
	ctx = clog.WithLogger(ctx, log)

	res, err := d.Preflight(ctx, g)
	if err != nil {
		return stack.Outputs{}, err
	}

	var td teardown
	defer func() {
		if err == nil {
			return
		}
		log.Warn("deploy failed, rolling back", "error", err)
		// Rollback must run even when ctx was cancelled.
		if rbErr := td.run(context.WithoutCancel(ctx)); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	tags := tagMap(g.Tags)
	n, c, id := d.cfg.Network, d.cfg.Compute, d.cfg.Identity

	sgID, err := n.CreateSecurityGroup(ctx, awsvpc.SecurityGroupSpec{
		Name:        g.SecurityGroup.Name,
		Description: g.SecurityGroup.Description,
		VPCID:       res.VPC.VPCID,
		Tags:        tags,
	})
	if err != nil {
		return stack.Outputs{}, err
	}
	td.push("security group", func(ctx context.Context) error { return n.DeleteSecurityGroup(ctx, sgID) })

	for _, rule := range g.SecurityGroup.Ingress {
		if err := n.AuthorizeIngress(ctx, sgID, awsvpc.IngressPermission{
			Protocol:    rule.Protocol,
			Port:        rule.FromPort,
			CIDR:        rule.CIDR,
			Description: rule.Description,
		}); err != nil {
			return stack.Outputs{}, err
		}
	}

	role := g.Role
	if _, err := id.CreateRole(ctx, awsiam.RoleSpec{
		Name:        role.Name,
		Description: "Lets " + g.Instance.Name + " read the graphics driver bundle",
		TrustPolicy: stack.TrustPolicy(role.Principal),
		Tags:        tags,
	}); err != nil {
		return stack.Outputs{}, err
	}
	td.push("role", func(ctx context.Context) error { return id.DeleteRole(ctx, role.Name) })

	for _, arn := range role.ManagedPolicies {
		if err := id.AttachRolePolicy(ctx, role.Name, arn); err != nil {
			return stack.Outputs{}, err
		}
		td.push("role policy", func(ctx context.Context) error { return id.DetachRolePolicy(ctx, role.Name, arn) })
	}

	profile := g.InstanceProfile.Name
	if _, err := id.CreateInstanceProfile(ctx, profile, tags); err != nil {
		return stack.Outputs{}, err
	}
	td.push("instance profile", func(ctx context.Context) error { return id.DeleteInstanceProfile(ctx, profile) })

	if err := id.AddRoleToInstanceProfile(ctx, profile, role.Name); err != nil {
		return stack.Outputs{}, err
	}
	td.push("instance profile role", func(ctx context.Context) error {
		return id.RemoveRoleFromInstanceProfile(ctx, profile, role.Name)
	})

	lt, err := c.CreateLaunchTemplate(ctx, awsec2.LaunchTemplateSpec{
		Name:                     g.LaunchTemplate.Name,
		InstanceType:             g.LaunchTemplate.InstanceType,
		KeyName:                  g.LaunchTemplate.KeyName,
		SubnetID:                 res.Subnet.SubnetID,
		SecurityGroupID:          sgID,
		SpotInterruptionBehavior: g.LaunchTemplate.Spot.InterruptionBehavior,
		SpotBlockDurationMinutes: g.LaunchTemplate.Spot.BlockDurationMinutes,
		Tags:                     tags,
	})
	if err != nil {
		return stack.Outputs{}, err
	}
	td.push("launch template", func(ctx context.Context) error { return c.DeleteLaunchTemplate(ctx, lt.ID) })

	inst := g.Instance
	image, err := c.LatestImage(ctx, inst.Image.NamePattern, inst.Image.Owner)
	if err != nil {
		return stack.Outputs{}, err
	}
	log.Info("resolved image", "image_id", image.ImageID, "name", image.Name)

	instanceID, err := c.RunInstance(ctx, awsec2.InstanceSpec{
		Name:                inst.Name,
		ImageID:             image.ImageID,
		InstanceType:        inst.InstanceType,
		KeyName:             inst.KeyName,
		SubnetID:            res.Subnet.SubnetID,
		AvailabilityZone:    res.Subnet.AZ,
		SecurityGroupID:     sgID,
		InstanceProfileName: profile,
		UserData:            inst.UserData,
		RootDeviceName:      inst.Volume.DeviceName,
		RootVolumeSizeGiB:   inst.Volume.SizeGiB,
		RootVolumeType:      inst.Volume.Type,
		RootVolumeEncrypted: inst.Volume.Encrypted,
		Tags:                tags,
	})
	if err != nil {
		return stack.Outputs{}, err
	}
	td.push("instance", func(ctx context.Context) error {
		return c.TerminateInstances(ctx, []string{instanceID}, d.cfg.WaitTimeout)
	})

	running, err := c.WaitRunning(ctx, instanceID, d.cfg.WaitTimeout)
	if err != nil {
		return stack.Outputs{}, err
	}
	log.Info("instance running", "id", instanceID, "public_ip", running.PublicIP)

	return stack.Outputs{
		PublicIP:         running.PublicIP,
		Credentials:      stack.ConsoleURL(g.Env.Region, instanceID),
		InstanceID:       instanceID,
		KeyName:          inst.KeyName,
		LaunchTemplateID: lt.ID,
	}, nil
}

func tagMap(tags []stack.Tag) map[string]string {
	return lo.SliceToMap(tags, func(t stack.Tag) (string, string) {
		return t.Key, t.Value
	})
}
