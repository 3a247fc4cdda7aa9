package stack

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	templateFormatVersion = "2010-09-09"
	imageParameterName    = "WindowsImageId"
)

// Template is a CloudFormation template. Maps are emitted with sorted keys by
// both encoders, so equal graphs always serialize to equal bytes.
type Template struct {
	AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string               `json:"Description" yaml:"Description"`
	Parameters               map[string]Parameter `json:"Parameters" yaml:"Parameters"`
	Resources                map[string]Resource  `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output    `json:"Outputs" yaml:"Outputs"`
}

type Parameter struct {
	Type    string `json:"Type" yaml:"Type"`
	Default string `json:"Default,omitempty" yaml:"Default,omitempty"`
}

type Resource struct {
	Type       string         `json:"Type" yaml:"Type"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	Properties map[string]any `json:"Properties" yaml:"Properties"`
}

type Output struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
}

// Synthesize renders g as a CloudFormation template.
func Synthesize(g *Graph) *Template {
	sg := g.SecurityGroup
	role := g.Role
	profile := g.InstanceProfile
	lt := g.LaunchTemplate
	inst := g.Instance

	instanceTags := append([]Tag{{Key: "Name", Value: inst.Name}}, g.Tags...)
	slices.SortStableFunc(instanceTags, func(a, b Tag) int { return strings.Compare(a.Key, b.Key) })

	resources := map[string]Resource{
		sg.LogicalID: {
			Type: "AWS::EC2::SecurityGroup",
			Properties: map[string]any{
				"GroupName":        sg.Name,
				"GroupDescription": sg.Description,
				"VpcId":            g.Network.VpcID,
				"SecurityGroupIngress": lo.Map(sg.Ingress, func(r IngressRule, _ int) map[string]any {
					return map[string]any{
						"IpProtocol":  r.Protocol,
						"FromPort":    r.FromPort,
						"ToPort":      r.ToPort,
						"CidrIp":      r.CIDR,
						"Description": r.Description,
					}
				}),
				"SecurityGroupEgress": []map[string]any{{
					"CidrIp":      "0.0.0.0/0",
					"IpProtocol":  "-1",
					"Description": "Allow all outbound traffic by default",
				}},
				"Tags": cfnTags(g.Tags),
			},
		},
		role.LogicalID: {
			Type: "AWS::IAM::Role",
			Properties: map[string]any{
				"RoleName":                 role.Name,
				"AssumeRolePolicyDocument": TrustPolicy(role.Principal),
				"ManagedPolicyArns":        role.ManagedPolicies,
				"Tags":                     cfnTags(g.Tags),
			},
		},
		profile.LogicalID: {
			Type: "AWS::IAM::InstanceProfile",
			Properties: map[string]any{
				"InstanceProfileName": profile.Name,
				"Roles":               []any{ref(role.LogicalID)},
			},
		},
		lt.LogicalID: {
			Type: "AWS::EC2::LaunchTemplate",
			Properties: map[string]any{
				"LaunchTemplateName": lt.Name,
				"LaunchTemplateData": map[string]any{
					"KeyName":      lt.KeyName,
					"InstanceType": lt.InstanceType,
					"NetworkInterfaces": []map[string]any{{
						"SubnetId":    g.Network.SubnetID,
						"DeviceIndex": 0,
						"Description": "ENI",
						"Groups":      []any{getAtt(sg.LogicalID, "GroupId")},
					}},
					"InstanceMarketOptions": map[string]any{
						"MarketType": "spot",
						"SpotOptions": map[string]any{
							"BlockDurationMinutes":         lt.Spot.BlockDurationMinutes,
							"InstanceInterruptionBehavior": lt.Spot.InterruptionBehavior,
						},
					},
				},
			},
		},
		inst.LogicalID: {
			Type:      "AWS::EC2::Instance",
			DependsOn: []string{role.LogicalID},
			Properties: map[string]any{
				"AvailabilityZone":   g.Network.AvailabilityZone,
				"SubnetId":           g.Network.SubnetID,
				"ImageId":            ref(imageParameterName),
				"InstanceType":       inst.InstanceType,
				"KeyName":            inst.KeyName,
				"IamInstanceProfile": ref(profile.LogicalID),
				"SecurityGroupIds":   []any{getAtt(sg.LogicalID, "GroupId")},
				"UserData":           map[string]any{"Fn::Base64": inst.UserData},
				"BlockDeviceMappings": []map[string]any{{
					"DeviceName": inst.Volume.DeviceName,
					"Ebs": map[string]any{
						"VolumeSize": inst.Volume.SizeGiB,
						"VolumeType": inst.Volume.Type,
						"Encrypted":  inst.Volume.Encrypted,
					},
				}},
				"Tags": cfnTags(instanceTags),
			},
		},
	}

	return &Template{
		AWSTemplateFormatVersion: templateFormatVersion,
		Description:              fmt.Sprintf("Cloud gaming %s instance for %s", g.Flavor, g.User),
		Parameters: map[string]Parameter{
			imageParameterName: {
				Type:    "AWS::SSM::Parameter::Value<AWS::EC2::Image::Id>",
				Default: inst.Image.SSMParameter,
			},
		},
		Resources: resources,
		Outputs: map[string]Output{
			OutputPublicIP: {Value: getAtt(inst.LogicalID, "PublicIp")},
			OutputCredentials: {
				Description: "Retrieve the Administrator password",
				Value: map[string]any{"Fn::Join": []any{"", []any{
					ConsoleURL(g.Env.Region, ""),
					ref(inst.LogicalID),
				}}},
			},
			OutputInstanceID:       {Value: ref(inst.LogicalID)},
			OutputKeyName:          {Value: inst.KeyName},
			OutputLaunchTemplateID: {Value: ref(lt.LogicalID)},
		},
	}
}

// YAML encodes the template with two-space indentation.
func (t *Template) YAML() ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encoding template as YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding template as YAML: %w", err)
	}
	return []byte(b.String()), nil
}

// JSON encodes the template without HTML escaping, so the user data keeps its
// <powershell> tags readable.
func (t *Template) JSON() ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encoding template as JSON: %w", err)
	}
	return []byte(b.String()), nil
}

// TrustPolicy is the assume-role document letting principal (a service)
// assume a role.
func TrustPolicy(principal string) map[string]any {
	return map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Effect":    "Allow",
			"Principal": map[string]any{"Service": principal},
			"Action":    "sts:AssumeRole",
		}},
	}
}

func ref(logicalID string) map[string]any {
	return map[string]any{"Ref": logicalID}
}

func getAtt(logicalID, attr string) map[string]any {
	return map[string]any{"Fn::GetAtt": []string{logicalID, attr}}
}

func cfnTags(tags []Tag) []map[string]string {
	return lo.Map(tags, func(t Tag, _ int) map[string]string {
		return map[string]string{"Key": t.Key, "Value": t.Value}
	})
}
