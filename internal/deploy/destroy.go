package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"

	"tasnim.dev/cloud-gaming/internal/aws/awserr"
	awsec2 "tasnim.dev/cloud-gaming/internal/aws/ec2"
	"tasnim.dev/cloud-gaming/internal/stack"
)

// Destroy removes the resources of a previous deploy of g, found by their
// deterministic names. Resources that do not exist are skipped, so Destroy
// also cleans up after a partially failed rollback. Every step is attempted;
// the errors of failed steps are joined.
func (d *Deployer) Destroy(ctx context.Context, g *stack.Graph) error {
	log := clog.FromContext(ctx).With("stack", g.ID)
	ctx = clog.WithLogger(ctx, log)

	var errs error
	record := func(what string, err error) {
		if err == nil || awserr.IsNotFound(err) {
			return
		}
		errs = errors.Join(errs, fmt.Errorf("%s: %w", what, err))
	}

	c, id, n := d.cfg.Compute, d.cfg.Identity, d.cfg.Network

	instances, err := c.FindInstances(ctx, g.Instance.Name)
	record("finding instances", err)
	if ids := lo.Map(instances, func(i awsec2.EC2Instance, _ int) string { return i.InstanceID }); len(ids) > 0 {
		record("terminating instances", c.TerminateInstances(ctx, ids, d.cfg.WaitTimeout))
	} else if err == nil {
		log.Info("no instance to terminate", "name", g.Instance.Name)
	}

	if lt, err := c.FindLaunchTemplate(ctx, g.LaunchTemplate.Name); err != nil {
		record("finding launch template", err)
	} else {
		record("deleting launch template", c.DeleteLaunchTemplate(ctx, lt.ID))
	}

	if profile, err := id.GetInstanceProfile(ctx, g.InstanceProfile.Name); err != nil {
		record("finding instance profile", err)
	} else {
		for _, role := range profile.Roles {
			record("removing role from instance profile", id.RemoveRoleFromInstanceProfile(ctx, profile.Name, role))
		}
		record("deleting instance profile", id.DeleteInstanceProfile(ctx, profile.Name))
	}

	if _, err := id.GetRole(ctx, g.Role.Name); err != nil {
		record("finding role", err)
	} else {
		policies, err := id.ListAttachedRolePolicies(ctx, g.Role.Name)
		record("listing role policies", err)
		for _, p := range policies {
			record("detaching role policy", id.DetachRolePolicy(ctx, g.Role.Name, p.ARN))
		}
		record("deleting role", id.DeleteRole(ctx, g.Role.Name))
	}

	if sg, err := n.FindSecurityGroup(ctx, g.Network.VpcID, g.SecurityGroup.Name); err != nil {
		record("finding security group", err)
	} else {
		record("deleting security group", n.DeleteSecurityGroup(ctx, sg.GroupID))
	}

	if errs != nil {
		log.Error("destroy finished with errors")
		return errs
	}
	log.Info("destroy complete")
	return nil
}
