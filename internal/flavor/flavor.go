// Package flavor defines the per-instance-family pieces of a cloud-gaming
// deployment: the instance type and the boot script. Everything else (network,
// security group, IAM, launch template) is shared and lives in package stack.
package flavor

// UserDataParams holds the values a boot script is rendered from.
type UserDataParams struct {
	// DCVServerURL is the NICE DCV server installer (MSI).
	DCVServerURL string
	// DCVDisplayDriverURL is the NICE DCV virtual display driver installer (MSI).
	DCVDisplayDriverURL string
}

// Flavor supplies the two values the provisioning template leaves open.
type Flavor interface {
	// Name is the registry key, e.g. "g4ad".
	Name() string
	// InstanceType builds the EC2 instance type from a size selector such as
	// "4XLARGE". The result is not checked against real offerings.
	InstanceType(size string) string
	// UserData renders the boot script submitted with the instance.
	UserData(p UserDataParams) (string, error)
}

// DriverBundle locates the vendor driver archive a boot script downloads.
type DriverBundle struct {
	Bucket string
	Prefix string
	Region string
}

// DriverSource is implemented by flavors whose boot script pulls a driver
// bundle from S3, so deploy can check the bundle exists beforehand.
type DriverSource interface {
	DriverBundle() DriverBundle
}
