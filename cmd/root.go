package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tasnim.dev/cloud-gaming/internal/config"
	"tasnim.dev/cloud-gaming/internal/flavor"
	applog "tasnim.dev/cloud-gaming/internal/log"
	"tasnim.dev/cloud-gaming/internal/stack"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	profile    string
	region     string
	configPath string
	flavor     string
	verbose    bool
	logFile    string
	user       string
	localIP    string

	closeLog func() error
}

func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "cloud-gaming",
		Short:         "Provision a cloud gaming machine on EC2",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx, closeLog, err := applog.Setup(cmd.Context(), applog.Options{
				Verbose: o.verbose,
				File:    o.logFile,
				Writer:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			o.closeLog = closeLog
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if o.closeLog == nil {
				return nil
			}
			return o.closeLog()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&o.profile, "profile", "p", "", "AWS profile to use")
	f.StringVarP(&o.region, "region", "r", "", "AWS region to use")
	f.StringVar(&o.configPath, "config", "", "config file (default ~/.config/cloud-gaming/config.yaml)")
	f.StringVar(&o.flavor, "flavor", "", "compute flavor, see 'cloud-gaming flavors'")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&o.logFile, "log-file", "", "also write JSON logs to this file")
	f.StringVarP(&o.user, "user", "u", "", "operator name, embedded in every resource name")
	f.StringVar(&o.localIP, "local-ip", "", "IPv4 address allowed to connect to the instance")

	cmd.AddCommand(
		newValidateCmd(o),
		newSynthCmd(o),
		newDeployCmd(o),
		newDestroyCmd(o),
		newFlavorsCmd(o),
	)

	return cmd
}

// settings is everything a command needs that does not come from AWS.
type settings struct {
	cfg     *config.Config
	profile string
	region  string
	flavor  flavor.Flavor
	stack   stack.Config
}

func (o *rootOptions) load() (*settings, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	profile, region := cfg.Merge(o.profile, o.region)

	name := cfg.Flavor
	if o.flavor != "" {
		name = o.flavor
	}
	f, err := flavor.Get(name)
	if err != nil {
		return nil, err
	}

	return &settings{
		cfg:     cfg,
		profile: profile,
		region:  region,
		flavor:  f,
		stack:   cfg.Deployment(o.user, o.localIP, os.Getenv(stack.KeyNameEnv)),
	}, nil
}

// graph builds the resource graph for account, validating the deployment
// parameters first.
func (s *settings) graph(account string) (*stack.Graph, error) {
	env := stack.Env{Account: account, Region: s.region}
	return stack.Build(stack.StackID(s.stack.User), env, s.stack, s.flavor)
}
