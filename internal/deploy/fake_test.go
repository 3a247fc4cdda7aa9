package deploy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"tasnim.dev/cloud-gaming/internal/aws/awserr"
	awsec2 "tasnim.dev/cloud-gaming/internal/aws/ec2"
	awsiam "tasnim.dev/cloud-gaming/internal/aws/iam"
	awss3 "tasnim.dev/cloud-gaming/internal/aws/s3"
	awsvpc "tasnim.dev/cloud-gaming/internal/aws/vpc"
)

var errInjected = errors.New("injected failure")

// fakeCloud implements every backend interface, records the mutating calls
// in order and fails the call named in failOn.
type fakeCloud struct {
	mu     sync.Mutex
	calls  []string
	failOn string

	missingVPC bool
	drivers    []awss3.S3Object
	driversErr error

	// existing resources, for Destroy
	instances   []awsec2.EC2Instance
	template    *awsec2.LaunchTemplate
	profile     *awsiam.InstanceProfile
	roleExists  bool
	policies    []awsiam.IAMAttachedPolicy
	group       *awsvpc.SecurityGroupInfo
	deleteError map[string]error

	lastInstance awsec2.InstanceSpec
	lastTemplate awsec2.LaunchTemplateSpec
	ingress      []awsvpc.IngressPermission
}

func (f *fakeCloud) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn == call {
		return fmt.Errorf("%s: %w", call, errInjected)
	}
	if err, ok := f.deleteError[call]; ok {
		return err
	}
	return nil
}

func (f *fakeCloud) called(call string) bool {
	return slices.Contains(f.calls, call)
}

func (f *fakeCloud) LookupVPC(ctx context.Context, vpcID string) (awsvpc.VPCInfo, error) {
	if f.missingVPC {
		return awsvpc.VPCInfo{}, fmt.Errorf("vpc %s: %w", vpcID, awserr.ErrResourceNotFound)
	}
	return awsvpc.VPCInfo{VPCID: vpcID}, nil
}

func (f *fakeCloud) LookupSubnet(ctx context.Context, subnetID string) (awsvpc.SubnetInfo, error) {
	return awsvpc.SubnetInfo{SubnetID: subnetID, VPCID: "vpc-0abc", AZ: "us-east-1b"}, nil
}

func (f *fakeCloud) FindSecurityGroup(ctx context.Context, vpcID, name string) (awsvpc.SecurityGroupInfo, error) {
	if f.group == nil {
		return awsvpc.SecurityGroupInfo{}, awserr.ErrResourceNotFound
	}
	return *f.group, nil
}

func (f *fakeCloud) CreateSecurityGroup(ctx context.Context, spec awsvpc.SecurityGroupSpec) (string, error) {
	return "sg-1", f.record("CreateSecurityGroup")
}

func (f *fakeCloud) AuthorizeIngress(ctx context.Context, groupID string, perm awsvpc.IngressPermission) error {
	f.ingress = append(f.ingress, perm)
	return f.record("AuthorizeIngress")
}

func (f *fakeCloud) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	return f.record("DeleteSecurityGroup")
}

func (f *fakeCloud) LatestImage(ctx context.Context, pattern, owner string) (awsec2.Image, error) {
	return awsec2.Image{ImageID: "ami-win2019", Name: pattern}, f.record("LatestImage")
}

func (f *fakeCloud) CreateLaunchTemplate(ctx context.Context, spec awsec2.LaunchTemplateSpec) (awsec2.LaunchTemplate, error) {
	f.lastTemplate = spec
	return awsec2.LaunchTemplate{ID: "lt-1", Name: spec.Name}, f.record("CreateLaunchTemplate")
}

func (f *fakeCloud) FindLaunchTemplate(ctx context.Context, name string) (awsec2.LaunchTemplate, error) {
	if f.template == nil {
		return awsec2.LaunchTemplate{}, awserr.ErrResourceNotFound
	}
	return *f.template, nil
}

func (f *fakeCloud) DeleteLaunchTemplate(ctx context.Context, id string) error {
	return f.record("DeleteLaunchTemplate")
}

func (f *fakeCloud) RunInstance(ctx context.Context, spec awsec2.InstanceSpec) (string, error) {
	f.lastInstance = spec
	return "i-1", f.record("RunInstance")
}

func (f *fakeCloud) WaitRunning(ctx context.Context, id string, maxWait time.Duration) (awsec2.EC2Instance, error) {
	return awsec2.EC2Instance{InstanceID: id, PublicIP: "54.1.2.3"}, f.record("WaitRunning")
}

func (f *fakeCloud) FindInstances(ctx context.Context, name string) ([]awsec2.EC2Instance, error) {
	return f.instances, nil
}

func (f *fakeCloud) TerminateInstances(ctx context.Context, ids []string, maxWait time.Duration) error {
	return f.record("TerminateInstances")
}

func (f *fakeCloud) CreateRole(ctx context.Context, spec awsiam.RoleSpec) (string, error) {
	return "arn:role", f.record("CreateRole")
}

func (f *fakeCloud) GetRole(ctx context.Context, name string) (awsiam.IAMRole, error) {
	if !f.roleExists {
		return awsiam.IAMRole{}, awserr.ErrResourceNotFound
	}
	return awsiam.IAMRole{Name: name}, nil
}

func (f *fakeCloud) DeleteRole(ctx context.Context, name string) error {
	return f.record("DeleteRole")
}

func (f *fakeCloud) AttachRolePolicy(ctx context.Context, roleName, policyArn string) error {
	return f.record("AttachRolePolicy")
}

func (f *fakeCloud) DetachRolePolicy(ctx context.Context, roleName, policyArn string) error {
	return f.record("DetachRolePolicy")
}

func (f *fakeCloud) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]awsiam.IAMAttachedPolicy, error) {
	return f.policies, nil
}

func (f *fakeCloud) CreateInstanceProfile(ctx context.Context, name string, tags map[string]string) (string, error) {
	return "arn:profile", f.record("CreateInstanceProfile")
}

func (f *fakeCloud) GetInstanceProfile(ctx context.Context, name string) (awsiam.InstanceProfile, error) {
	if f.profile == nil {
		return awsiam.InstanceProfile{}, awserr.ErrResourceNotFound
	}
	return *f.profile, nil
}

func (f *fakeCloud) DeleteInstanceProfile(ctx context.Context, name string) error {
	return f.record("DeleteInstanceProfile")
}

func (f *fakeCloud) AddRoleToInstanceProfile(ctx context.Context, profileName, roleName string) error {
	return f.record("AddRoleToInstanceProfile")
}

func (f *fakeCloud) RemoveRoleFromInstanceProfile(ctx context.Context, profileName, roleName string) error {
	return f.record("RemoveRoleFromInstanceProfile")
}

func (f *fakeCloud) Objects(ctx context.Context, q awss3.ObjectQuery) ([]awss3.S3Object, error) {
	return f.drivers, f.driversErr
}
