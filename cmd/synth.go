package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tasnim.dev/cloud-gaming/internal/stack"
)

func newSynthCmd(o *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Print the CloudFormation template of the deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "yaml" && output != "json" {
				return fmt.Errorf("unsupported output %q, use yaml or json", output)
			}

			s, err := o.load()
			if err != nil {
				return err
			}
			g, err := s.graph(s.cfg.Account)
			if err != nil {
				return err
			}

			tmpl := stack.Synthesize(g)
			var body []byte
			if output == "json" {
				body, err = tmpl.JSON()
			} else {
				body, err = tmpl.YAML()
			}
			if err != nil {
				return fmt.Errorf("rendering template: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "template format: yaml or json")

	return cmd
}
