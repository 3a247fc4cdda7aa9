package cmd

import (
	"fmt"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"tasnim.dev/cloud-gaming/internal/deploy"
	"tasnim.dev/cloud-gaming/internal/stack"
	"tasnim.dev/cloud-gaming/internal/theme"
)

func newDestroyCmd(o *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the resources of a previous deploy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := o.load()
			if err != nil {
				return err
			}
			if err := stack.Validate(s.stack); err != nil {
				return err
			}

			client, g, err := connect(ctx, s)
			if err != nil {
				return err
			}

			clog.FromContext(ctx).Info("destroying", "stack", g.ID, "region", g.Env.Region)
			d := deploy.New(deploy.Config{
				Network:     client.VPC,
				Compute:     client.EC2,
				Identity:    client.IAM,
				WaitTimeout: timeout,
			})
			if err := d.Destroy(ctx, g); err != nil {
				return fmt.Errorf("destroying %s: %w", g.ID, err)
			}

			lipgloss.Fprintln(cmd.OutOrStdout(), theme.RenderStatus("destroyed"))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "how long to wait for the instance to terminate")

	return cmd
}
