package vpc

type VPCInfo struct {
	VPCID     string
	Name      string
	CIDR      string
	IsDefault bool
	State     string
}

type SubnetInfo struct {
	SubnetID     string
	VPCID        string
	Name         string
	CIDR         string
	AZ           string
	AvailableIPs int
}

type SecurityGroupInfo struct {
	GroupID      string
	Name         string
	Description  string
	VPCID        string
	InboundRules []SecurityGroupRule
}

type SecurityGroupRule struct {
	Protocol string // tcp, udp, icmp, All
	FromPort int
	ToPort   int
	Sources  []string
}

// SecurityGroupSpec describes a security group to create.
type SecurityGroupSpec struct {
	Name        string
	Description string
	VPCID       string
	Tags        map[string]string
}

// IngressPermission opens a single port to a single CIDR.
type IngressPermission struct {
	Protocol    string
	Port        int
	CIDR        string
	Description string
}
