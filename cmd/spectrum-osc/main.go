package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petems/spectrum-osc/internal/config"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

type options struct {
	configPath string
	watch      bool
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{cfg: config.Default()}

	root := &cobra.Command{
		Use:           "spectrum-osc",
		Short:         "Stream the live audio spectrum to an OSC receiver",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default: "+config.Path()+")")
	pf.BoolVar(&opts.watch, "watch", false, "restart the stream when the config file changes")
	config.BindFlags(pf, opts.cfg)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Stream until interrupted (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runHeadless(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "tray",
			Short: "Run with a menu bar icon",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTray(cmd, opts)
			},
		},
		newDevicesCmd(),
	)

	return root
}

// resolve layers file and env values under the command line flags and
// returns the effective config together with a function that re-reads it.
func resolve(cmd *cobra.Command, opts *options) (*config.Config, func() (*config.Config, error), error) {
	changed := config.Changed(cmd.Flags())
	base := *opts.cfg

	load := func() (*config.Config, error) {
		next := base
		if err := config.Resolve(&next, opts.configPath, changed); err != nil {
			return nil, err
		}
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return &next, nil
	}

	cfg, err := load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, load, nil
}
