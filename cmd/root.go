// Package cmd wires the dspcore command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/dspcore/cmd/run"
	"github.com/tphakala/dspcore/cmd/validate"
	"github.com/tphakala/dspcore/cmd/version"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "dspcore",
		Short:         "Audio data-plane runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	versionCmd := version.Command()
	rootCmd.AddCommand(
		run.Command(settings),
		validate.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs no configuration
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configFile, debug)
	}

	return rootCmd
}

// initialize loads configuration and installs the global logger.
func initialize(settings *conf.Settings, configFile string, debug bool) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	if debug {
		loaded.Debug = true
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}
