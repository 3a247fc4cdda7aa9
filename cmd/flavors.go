package cmd

import (
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"tasnim.dev/cloud-gaming/internal/config"
	"tasnim.dev/cloud-gaming/internal/flavor"
	"tasnim.dev/cloud-gaming/internal/theme"
)

func newFlavorsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flavors",
		Short: "List the registered compute flavors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			items := lo.FilterMap(flavor.List(), func(name string, _ int) (string, bool) {
				f, err := flavor.Get(name)
				if err != nil {
					return "", false
				}
				return fmt.Sprintf("%s  %s", name, theme.MutedStyle.Render(f.InstanceType(cfg.InstanceSize))), true
			})
			lipgloss.Fprintln(cmd.OutOrStdout(), theme.RenderList("Flavors", items))
			return nil
		},
	}
}
