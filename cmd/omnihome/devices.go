package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/database"
	"github.com/mblarson/omnihome/internal/infrastructure/logging"
	"github.com/mblarson/omnihome/internal/persistence"
)

func newDevicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and control stored devices",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List devices in the local store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAdapter(cmd.Context(), opts.configPath, func(ctx context.Context, a *persistence.Adapter) error {
					devices, err := a.LoadLocal(ctx)
					if err != nil {
						return err
					}
					return deviceTable(devices).write(cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "toggle <id>",
			Short: "Flip a device on or off",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withAdapter(cmd.Context(), opts.configPath, func(ctx context.Context, a *persistence.Adapter) error {
					d, err := toggleDevice(ctx, a, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", d.Name, d.StatusLabel())
					return nil
				})
			},
		},
	)
	return cmd
}

// toggleDevice flips IsOn through the adapter so remote mode mirrors it.
func toggleDevice(ctx context.Context, a *persistence.Adapter, id string) (device.Device, error) {
	devices, err := a.LoadLocal(ctx)
	if err != nil {
		return device.Device{}, err
	}
	for _, d := range devices {
		if d.ID != id {
			continue
		}
		u := device.Update{ID: id, IsOn: device.Bool(!d.IsOn)}
		if err := a.UpdateDevice(ctx, u); err != nil {
			return device.Device{}, err
		}
		return device.Apply(d, u), nil
	}
	return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
}

func deviceTable(devices []device.Device) *table {
	t := newTable("ID", "NAME", "ROOM", "TYPE", "ON", "STATE", "PROVIDER")
	for _, d := range devices {
		t.addRow(d.ID, d.Name, d.Room, string(d.Type), strconv.FormatBool(d.IsOn), d.StatusLabel(), d.Provider)
	}
	return t
}

// withAdapter opens the database and persistence adapter for a one-shot
// command, runs fn, then closes both.
func withAdapter(ctx context.Context, configPath string, fn func(context.Context, *persistence.Adapter) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // command exit

	adapter, err := persistence.New(ctx, persistence.Options{
		Local:       device.NewSQLiteRepository(db.DB),
		Settings:    persistence.NewSettingsRepository(db.DB),
		Defaults:    cfg.Storage.Remote,
		OverrideKey: cfg.Storage.OverrideKey,
		Logger:      log.Component("persistence"),
	})
	if err != nil {
		return fmt.Errorf("creating persistence adapter: %w", err)
	}
	defer adapter.Close() //nolint:errcheck // command exit

	return fn(ctx, adapter)
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := database.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // command exit
			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.Database.Path)
			return nil
		},
	}
}
