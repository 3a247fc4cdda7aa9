package stack

// Graph is the declared resource tree of one deployment. It is built once
// from a Config and is not mutated afterwards.
type Graph struct {
	ID     string
	Env    Env
	Flavor string
	User   string

	Network         Network
	SecurityGroup   SecurityGroup
	Role            Role
	InstanceProfile InstanceProfile
	LaunchTemplate  LaunchTemplate
	Instance        Instance

	// Tags are applied to every taggable resource, sorted by key.
	Tags []Tag
}

type Tag struct {
	Key   string
	Value string
}

// Network references the pre-existing VPC and subnet.
type Network struct {
	VpcID            string
	SubnetID         string
	AvailabilityZone string
}

type SecurityGroup struct {
	LogicalID   string
	Name        string
	Description string
	Ingress     []IngressRule
}

// IngressRule opens a single TCP port to a single CIDR.
type IngressRule struct {
	Protocol    string
	FromPort    int
	ToPort      int
	CIDR        string
	Description string
}

type Role struct {
	LogicalID       string
	Name            string
	Principal       string
	ManagedPolicies []string
}

type InstanceProfile struct {
	LogicalID string
	Name      string
}

type LaunchTemplate struct {
	LogicalID    string
	Name         string
	InstanceType string
	KeyName      string
	Spot         SpotOptions
}

type SpotOptions struct {
	InterruptionBehavior string
	BlockDurationMinutes int
}

type Instance struct {
	LogicalID    string
	Name         string
	InstanceType string
	KeyName      string
	Image        Image
	Volume       Volume
	UserData     string
}

// Image selects the latest AMI published under an SSM parameter / name
// pattern.
type Image struct {
	SSMParameter string
	NamePattern  string
	Owner        string
}

type Volume struct {
	DeviceName string
	SizeGiB    int
	Type       string
	Encrypted  bool
}
