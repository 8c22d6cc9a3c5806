// Package cmd provides the command-line interface of the sports data agent:
// an interactive chat over a folder of CSV files plus a few maintenance commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/config"
)

var (
	configPath string
	dataFolder string

	cfg    *config.Config
	logger zerolog.Logger
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "sda",
	Short:         "Ask questions about sports data in plain language",
	Long:          `sda loads a folder of CSV files into a SQL database and answers questions about them with an LLM agent that writes and runs read-only queries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "hash-password" {
			return nil
		}
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if dataFolder != "" {
			cfg.Data.Folder = dataFolder
		}
		logger, err = config.NewLogger(cfg.Log, os.Stderr)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI and exits non-zero on failure. The first interrupt
// cancels the command context, so a running turn finishes its current tool
// call and stops; a second one kills the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default searches ./config.yaml, ~/.config/sda/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataFolder, "data", "d", "", "folder of CSV files (overrides data.folder)")
}
