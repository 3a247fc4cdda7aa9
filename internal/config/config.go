package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"tasnim.dev/cloud-gaming/internal/stack"
)

const (
	DCVDisplayDriverURL = "https://d1uj6qtbmh3dt5.cloudfront.net/Drivers/nice-dcv-virtual-display-x64-Release-34.msi"
	DCVServerURL        = "https://d1uj6qtbmh3dt5.cloudfront.net/2021.0/Servers/nice-dcv-server-x64-Release-2021.0-10242.msi"

	// Placeholder marks values that must be filled in before a deploy can
	// find the resources they reference.
	Placeholder = "PLACEHOLDER"
)

// Config holds the deployment defaults, optionally overridden by
// ~/.config/cloud-gaming/config.yaml.
type Config struct {
	DefaultProfile string `yaml:"default_profile"`
	DefaultRegion  string `yaml:"default_region"`
	Account        string `yaml:"account"`
	Flavor         string `yaml:"flavor"`

	VpcID                  string `yaml:"vpc_id"`
	SubnetID               string `yaml:"subnet_id"`
	SubnetAvailabilityZone string `yaml:"subnet_availability_zone"`

	InstanceSize  string `yaml:"instance_size"`
	VolumeSizeGiB int    `yaml:"volume_size_gib"`
	OpenPorts     []int  `yaml:"open_ports"`

	DCVServerURL        string `yaml:"dcv_server_url"`
	DCVDisplayDriverURL string `yaml:"dcv_display_driver_url"`

	// Tags from the file are added to the default tags.
	Tags map[string]string `yaml:"tags"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DefaultRegion:          "us-east-1",
		Account:                Placeholder,
		Flavor:                 "g4ad",
		VpcID:                  Placeholder,
		SubnetID:               Placeholder,
		SubnetAvailabilityZone: Placeholder,
		InstanceSize:           "4XLARGE",
		VolumeSizeGiB:          150,
		OpenPorts:              []int{3389, 8443},
		DCVServerURL:           DCVServerURL,
		DCVDisplayDriverURL:    DCVDisplayDriverURL,
		Tags:                   map[string]string{"Application": "cloud-gaming"},
	}
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cloud-gaming", "config.yaml"), nil
}

// Load reads the config file at path over the defaults. With an empty path
// the default location is used, and a missing file there yields the
// defaults. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Merge applies CLI flag overrides. Flags take precedence over config defaults.
func (c *Config) Merge(profile, region string) (string, string) {
	p := c.DefaultProfile
	if profile != "" {
		p = profile
	}
	r := c.DefaultRegion
	if region != "" {
		r = region
	}
	return p, r
}

// Deployment combines the defaults with the three per-run parameters. The
// result is not validated; stack.Validate reports what is missing.
func (c *Config) Deployment(user, localIP, keyName string) stack.Config {
	return stack.Config{
		User:                   strings.TrimSpace(user),
		VpcID:                  c.VpcID,
		SubnetID:               c.SubnetID,
		SubnetAvailabilityZone: c.SubnetAvailabilityZone,
		KeyName:                strings.TrimSpace(keyName),
		AllowInboundCIDR:       HostCIDR(localIP),
		OpenPorts:              slices.Clone(c.OpenPorts),
		VolumeSizeGiB:          c.VolumeSizeGiB,
		DCVServerURL:           c.DCVServerURL,
		DCVDisplayDriverURL:    c.DCVDisplayDriverURL,
		InstanceSize:           c.InstanceSize,
		Tags:                   maps.Clone(c.Tags),
	}
}

// HostCIDR turns a single address into a /32 block. An empty address stays
// empty and a value that already carries a prefix length is kept.
func HostCIDR(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || strings.Contains(ip, "/") {
		return ip
	}
	return ip + "/32"
}
