package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/upicheck/internal/migrate"
)

func migrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ClickHouse schema used by the result sink",
	}

	cmd.PersistentFlags().StringVar(
		&dsn, "dsn", "",
		"ClickHouse DSN (defaults to sinks.clickhouse from the config)",
	)

	migrator := func() (migrate.Migrator, error) {
		cfg, log, err := setup()
		if err != nil {
			return nil, err
		}

		if dsn == "" {
			ch := cfg.Sinks.ClickHouse
			if ch.Endpoint == "" {
				return nil, errors.New("no ClickHouse endpoint: set --dsn or sinks.clickhouse.endpoint")
			}

			ch.ApplyDefaults()
			dsn = ch.MigrationDSN()
		}

		return migrate.New(log, dsn), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}

				return m.Up(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}

				return m.Down(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator()
				if err != nil {
					return err
				}

				v, dirty, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Printf("version %d (dirty: %t)\n", v, dirty)

				return nil
			},
		},
	)

	return cmd
}
