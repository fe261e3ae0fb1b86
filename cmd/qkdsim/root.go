package main

import (
	"fmt"

	"github.com/alan-christopher/qkdsim/internal/config"
	"github.com/alan-christopher/qkdsim/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Commands are built fresh per call so
// tests can run them in isolation.
func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "qkdsim",
		Short: "Simulate BB84 and KMB09 quantum key distribution",
		Long: `qkdsim runs cycles of the BB84 or KMB09 key exchange between Alice and Bob,
optionally with an intercept-resend eavesdropper, and reports the quantum bit
error rate (QBER) of every cycle and of the run as a whole.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	config.RegisterCommonFlags(root.PersistentFlags())

	load := func(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
		cfg, err := config.Load(cmd.Flags(), configFile)
		if err != nil {
			return cfg, zerolog.Nop(), fmt.Errorf("load config: %w", err)
		}
		log := logger.New(logger.Config{
			Level:  cfg.LogLevel,
			Pretty: cfg.LogPretty,
			Out:    cmd.ErrOrStderr(),
		})
		return cfg, log, nil
	}

	root.AddCommand(newRunCmd(load))
	root.AddCommand(newHistoryCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

type loader func(cmd *cobra.Command) (config.Config, zerolog.Logger, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the qkdsim version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "qkdsim", Version)
		},
	}
}
