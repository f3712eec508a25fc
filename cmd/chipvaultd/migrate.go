package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"chipvault/internal/config"
	"chipvault/internal/persistence"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			db, err := sql.Open("postgres", cfg.PostgresURL)
			if err != nil {
				return fmt.Errorf("postgres open: %w", err)
			}
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("postgres ping: %w", err)
			}

			migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
			switch args[0] {
			case "up":
				return migrator.Up(cmd.Context())
			case "down":
				return migrator.Down(cmd.Context())
			default:
				return fmt.Errorf("unknown direction %q (want up or down)", args[0])
			}
		},
	}
	return cmd
}
