package iam

import "time"

type IAMRole struct {
	Name                     string
	RoleID                   string
	ARN                      string
	Path                     string
	Description              string
	CreatedAt                time.Time
	AssumeRolePolicyDocument string // decoded JSON
}

type IAMAttachedPolicy struct {
	Name string
	ARN  string
}

type InstanceProfile struct {
	Name  string
	ARN   string
	Roles []string
}

// RoleSpec describes a role assumable by an AWS service.
type RoleSpec struct {
	Name        string
	Description string
	// TrustPolicy is marshalled to JSON as the assume-role policy document.
	TrustPolicy any
	Tags        map[string]string
}
