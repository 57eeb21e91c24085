package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "agentrelay",
		Short:         "Route messages to agents and run them with model failover",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "agentrelay.yaml", "path to the relay configuration")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&f.logFormat, "log-format", "text", "log format (text or json)")

	cmd.AddCommand(
		newValidateCmd(f),
		newAgentsCmd(f),
		newResolveCmd(f),
		newChainCmd(f),
		newChatCmd(f),
	)

	return cmd
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", f.configPath, err)
	}
	return cfg, nil
}

func (f *rootFlags) logger(cmd *cobra.Command) *logging.RelayLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(f.logLevel),
		Format: f.logFormat,
		Output: cmd.ErrOrStderr(),
	})
}
