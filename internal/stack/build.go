// Package stack builds the resource graph of a cloud-gaming deployment and
// synthesizes it as a CloudFormation template.
package stack

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"tasnim.dev/cloud-gaming/internal/flavor"
)

const (
	namePrefix = "TeamBuildingCloudGaming"

	protocolTCP = "tcp"

	ec2ServicePrincipal = "ec2.amazonaws.com"
	// S3ReadOnlyPolicyArn lets the boot script fetch the driver bundle.
	S3ReadOnlyPolicyArn = "arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"

	// Spot settings are shared by every flavor and are not configurable.
	spotInterruptionBehavior = "stop"
	spotBlockDurationMinutes = 120

	rootDeviceName = "/dev/sda1"
	rootVolumeType = "gp3"

	windowsImageParameter = "/aws/service/ami-windows-latest/Windows_Server-2019-English-Full-Base"
	windowsImagePattern   = "Windows_Server-2019-English-Full-Base-*"
	windowsImageOwner     = "amazon"
)

// StackID is the deployment identifier for user.
func StackID(user string) string {
	return namePrefix + "-" + user
}

// Build validates cfg and produces the resource graph. Nothing is produced
// when validation fails.
func Build(id string, env Env, cfg Config, f flavor.Flavor) (*Graph, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("no flavor given")
	}

	user := cfg.User
	instanceType := f.InstanceType(cfg.InstanceSize)

	userData, err := f.UserData(flavor.UserDataParams{
		DCVServerURL:        cfg.DCVServerURL,
		DCVDisplayDriverURL: cfg.DCVDisplayDriverURL,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering user data: %w", err)
	}

	g := &Graph{
		ID:     id,
		Env:    env,
		Flavor: f.Name(),
		User:   user,
		Network: Network{
			VpcID:            cfg.VpcID,
			SubnetID:         cfg.SubnetID,
			AvailabilityZone: cfg.SubnetAvailabilityZone,
		},
		SecurityGroup: SecurityGroup{
			LogicalID:   logicalID("SecurityGroup", user),
			Name:        "InboundAccessFromRdpDcvFor" + user,
			Description: "Allow RDP, and NICE DCV access for " + user,
			Ingress:     ingressRules(cfg.AllowInboundCIDR, cfg.OpenPorts),
		},
		Role: Role{
			LogicalID:       logicalID(id, "S3Read", user),
			Name:            id + ".GraphicsDriverS3Access-" + user,
			Principal:       ec2ServicePrincipal,
			ManagedPolicies: []string{S3ReadOnlyPolicyArn},
		},
		InstanceProfile: InstanceProfile{
			LogicalID: logicalID(id, "InstanceProfile", user),
			Name:      id + ".GraphicsDriverS3Access-" + user,
		},
		LaunchTemplate: LaunchTemplate{
			LogicalID:    logicalID(namePrefix, "LaunchTemplate", user),
			Name:         namePrefix + "InstanceLaunchTemplate-" + user + "/" + instanceType,
			InstanceType: instanceType,
			KeyName:      cfg.KeyName,
			Spot: SpotOptions{
				InterruptionBehavior: spotInterruptionBehavior,
				BlockDurationMinutes: spotBlockDurationMinutes,
			},
		},
		Instance: Instance{
			LogicalID:    logicalID("EC2Instance", user),
			Name:         namePrefix + "-" + user + "/" + instanceType,
			InstanceType: instanceType,
			KeyName:      cfg.KeyName,
			Image: Image{
				SSMParameter: windowsImageParameter,
				NamePattern:  windowsImagePattern,
				Owner:        windowsImageOwner,
			},
			Volume: Volume{
				DeviceName: rootDeviceName,
				SizeGiB:    cfg.VolumeSizeGiB,
				Type:       rootVolumeType,
				Encrypted:  true,
			},
			UserData: userData,
		},
		Tags: sortedTags(cfg.Tags),
	}

	return g, nil
}

// ingressRules emits one rule per port, keeping order and duplicates.
func ingressRules(cidr string, ports []int) []IngressRule {
	return lo.Map(ports, func(port int, _ int) IngressRule {
		return IngressRule{
			Protocol:    protocolTCP,
			FromPort:    port,
			ToPort:      port,
			CIDR:        cidr,
			Description: fmt.Sprintf("from %s:%d", cidr, port),
		}
	})
}

func sortedTags(tags map[string]string) []Tag {
	keys := lo.Keys(tags)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) Tag {
		return Tag{Key: k, Value: tags[k]}
	})
}

// logicalID joins parts into a CloudFormation logical ID, which only allows
// ASCII letters and digits.
func logicalID(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		for _, r := range part {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
