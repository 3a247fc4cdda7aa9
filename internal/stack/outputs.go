package stack

import "fmt"

// Output keys, in the order they are printed.
const (
	OutputPublicIP         = "PublicIp"
	OutputCredentials      = "Credentials"
	OutputInstanceID       = "InstanceId"
	OutputKeyName          = "KeyName"
	OutputLaunchTemplateID = "LaunchTemplateId"
)

// Outputs are the values an operator needs after a deploy.
type Outputs struct {
	PublicIP         string
	Credentials      string
	InstanceID       string
	KeyName          string
	LaunchTemplateID string
}

type OutputValue struct {
	Key   string
	Value string
}

// Values returns the outputs as ordered key/value pairs.
func (o Outputs) Values() []OutputValue {
	return []OutputValue{
		{OutputPublicIP, o.PublicIP},
		{OutputCredentials, o.Credentials},
		{OutputInstanceID, o.InstanceID},
		{OutputKeyName, o.KeyName},
		{OutputLaunchTemplateID, o.LaunchTemplateID},
	}
}

// ConsoleURL links to the EC2 console page that retrieves the Windows
// password for instanceID.
func ConsoleURL(region, instanceID string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/ec2/v2/home?region=%s#ConnectToInstance:instanceId=%s", region, region, instanceID)
}
