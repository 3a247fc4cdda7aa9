package cmd

import (
	"errors"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"tasnim.dev/cloud-gaming/internal/stack"
	"tasnim.dev/cloud-gaming/internal/theme"
)

var errInvalid = errors.New("deployment parameters are invalid")

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the deployment parameters and list every missing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := stack.Validate(s.stack); err != nil {
				lipgloss.Fprintln(out, theme.RenderStatus("invalid"))
				lipgloss.Fprintln(out, theme.RenderViolations(stack.Violations(err)))
				return errInvalid
			}
			lipgloss.Fprintln(out, theme.RenderStatus("valid"))
			return nil
		},
	}
}
