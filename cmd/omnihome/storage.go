package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mblarson/omnihome/internal/persistence"
)

func newStorageCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect or reset the storage backend",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the active storage mode",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdapter(cmd.Context(), opts.configPath, func(_ context.Context, a *persistence.Adapter) error {
					return storageTable(a.Status()).write(cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Remove the stored override and fall back to the config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdapter(cmd.Context(), opts.configPath, func(ctx context.Context, a *persistence.Adapter) error {
					if err := a.ResetConfig(ctx); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "storage override removed, mode is now %s\n", a.Mode())
					return nil
				})
			},
		},
	)
	return cmd
}

func storageTable(st persistence.Status) *table {
	source := string(st.Source)
	if source == "" {
		source = "none"
	}
	t := newTable("MODE", "CONNECTED", "SOURCE", "PROJECT", "ERROR")
	t.addRow(string(st.Mode), strconv.FormatBool(st.Connected), source, st.Config.ProjectID, st.LastError)
	return t
}
