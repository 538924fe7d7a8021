// OmniHome Core serves the smart-home dashboard: device state, provider
// linking, scenes, energy and voice control, stored locally in SQLite and
// optionally mirrored to a remote document store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/mblarson/omnihome/migrations"
)

// Version information, set at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "omnihome",
		Short:         "OmniHome smart-home dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(opts),
		newDevicesCmd(opts),
		newStorageCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// getConfigPath returns OMNIHOME_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("OMNIHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "omnihome %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
