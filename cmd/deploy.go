package cmd

import (
	"context"
	"fmt"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	awsclient "tasnim.dev/cloud-gaming/internal/aws"
	"tasnim.dev/cloud-gaming/internal/deploy"
	"tasnim.dev/cloud-gaming/internal/flavor"
	"tasnim.dev/cloud-gaming/internal/stack"
	"tasnim.dev/cloud-gaming/internal/theme"
)

func newDeployCmd(o *rootOptions) *cobra.Command {
	var checkDrivers bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create the gaming instance and everything it needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := o.load()
			if err != nil {
				return err
			}
			// Parameter errors are reported before any AWS call.
			if err := stack.Validate(s.stack); err != nil {
				return err
			}

			client, g, err := connect(ctx, s)
			if err != nil {
				return err
			}

			cfg := deploy.Config{
				Network:     client.VPC,
				Compute:     client.EC2,
				Identity:    client.IAM,
				WaitTimeout: timeout,
			}
			if src, ok := s.flavor.(flavor.DriverSource); ok && checkDrivers {
				bundle := src.DriverBundle()
				cfg.Storage = client.S3
				cfg.Drivers = &bundle
			}

			clog.FromContext(ctx).Info("deploying", "stack", g.ID, "region", g.Env.Region, "instance_type", g.Instance.InstanceType)
			outputs, err := deploy.New(cfg).Deploy(ctx, g)
			if err != nil {
				return fmt.Errorf("deploying %s: %w", g.ID, err)
			}

			values := lo.Map(outputs.Values(), func(v stack.OutputValue, _ int) theme.KeyValue {
				return theme.KeyValue{Key: v.Key, Value: v.Value}
			})
			out := cmd.OutOrStdout()
			lipgloss.Fprintln(out, theme.RenderStatus("deployed"))
			lipgloss.Fprintln(out, theme.RenderOutputs("Outputs:", g.ID, values))
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDrivers, "check-drivers", true, "check the GPU driver bundle exists before launching")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "how long to wait for the instance to start")

	return cmd
}

// connect builds the AWS clients and the graph for the caller's account.
func connect(ctx context.Context, s *settings) (*awsclient.ServiceClient, *stack.Graph, error) {
	client, err := awsclient.NewServiceClient(ctx, s.profile, s.region)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing AWS client: %w", err)
	}
	account, err := awsclient.ResolveAccount(ctx, client.STS, s.cfg.Account)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving account: %w", err)
	}
	// The SDK may have picked the region from the profile.
	s.region = client.Region

	g, err := s.graph(account)
	if err != nil {
		return nil, nil, err
	}
	return client, g, nil
}
