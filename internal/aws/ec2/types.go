package ec2

import "time"

// EC2Instance represents a single EC2 instance.
type EC2Instance struct {
	Name       string
	InstanceID string
	Type       string
	State      string
	PrivateIP  string
	PublicIP   string
}

// Image is a machine image resolved by name pattern.
type Image struct {
	ImageID   string
	Name      string
	CreatedAt time.Time
}

// LaunchTemplate identifies a created launch template.
type LaunchTemplate struct {
	ID      string
	Name    string
	Version int64
}

// LaunchTemplateSpec describes a spot launch template attached to one subnet.
type LaunchTemplateSpec struct {
	Name                     string
	InstanceType             string
	KeyName                  string
	SubnetID                 string
	SecurityGroupID          string
	SpotInterruptionBehavior string
	SpotBlockDurationMinutes int
	Tags                     map[string]string
}

// InstanceSpec describes a single on-demand instance launch.
type InstanceSpec struct {
	Name                string
	ImageID             string
	InstanceType        string
	KeyName             string
	SubnetID            string
	AvailabilityZone    string
	SecurityGroupID     string
	InstanceProfileName string
	UserData            string // plain text, encoded on launch
	RootDeviceName      string
	RootVolumeSizeGiB   int
	RootVolumeType      string
	RootVolumeEncrypted bool
	Tags                map[string]string
}
