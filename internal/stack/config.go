package stack

import (
	"errors"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Config is the deployment configuration a Graph is built from.
type Config struct {
	// User is the operator name. Every resource name embeds it.
	User string
	// VpcID, SubnetID and SubnetAvailabilityZone reference pre-existing
	// network resources.
	VpcID                  string
	SubnetID               string
	SubnetAvailabilityZone string
	// KeyName is the EC2 key pair used to decrypt the Windows password.
	KeyName string
	// AllowInboundCIDR is the only source allowed through the security group.
	AllowInboundCIDR string
	// OpenPorts are exposed over TCP, one ingress rule each, in order.
	OpenPorts     []int
	VolumeSizeGiB int

	DCVServerURL        string
	DCVDisplayDriverURL string

	// InstanceSize is the size selector handed to the flavor, e.g. "4XLARGE".
	InstanceSize string
	Tags         map[string]string
}

// Env is the deployment target.
type Env struct {
	Account string
	Region  string
}

var (
	ErrMissingUser    = errors.New("user is a required parameter, specify it with '--user me'")
	ErrMissingLocalIP = errors.New("local IP is a required parameter, specify it with '--local-ip XXX.XXX.XXX.XXX'")
	ErrMissingKeyName = errors.New("SSH key name is a required parameter, specify it by setting the environment variable '" + KeyNameEnv + "'")
)

// KeyNameEnv is the environment variable the key pair name is read from.
const KeyNameEnv = "AWS_CLOUD_GAMING_SSH_KEY"

// Validate checks the presence constraints on cfg and returns every
// violation at once. Values are not otherwise checked: malformed URLs or
// CIDRs are left for the provider to reject.
func Validate(cfg Config) error {
	var mErr *multierror.Error

	if strings.TrimSpace(cfg.User) == "" {
		mErr = multierror.Append(mErr, ErrMissingUser)
	}
	if strings.TrimSpace(cfg.AllowInboundCIDR) == "" {
		mErr = multierror.Append(mErr, ErrMissingLocalIP)
	}
	if strings.TrimSpace(cfg.KeyName) == "" {
		mErr = multierror.Append(mErr, ErrMissingKeyName)
	}

	return mErr.ErrorOrNil()
}

// Violations flattens a Validate error into its individual constraints.
func Violations(err error) []error {
	if err == nil {
		return nil
	}
	var mErr *multierror.Error
	if errors.As(err, &mErr) {
		return mErr.WrappedErrors()
	}
	return []error{err}
}
