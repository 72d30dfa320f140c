package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/crm-service/internal/app"
	"github.com/spec-kit/crm-service/internal/persistence"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(migrateDirectionCmd(persistence.MigrateUp, "Apply all pending migrations"))
	cmd.AddCommand(migrateDirectionCmd(persistence.MigrateDown, "Roll back every migration"))
	return cmd
}

func migrateDirectionCmd(direction persistence.MigrationDirection, short string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   string(direction),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				if dir == "" {
					dir = c.Config.Postgres.MigrationsDir
				}
				if err := persistence.Migrate(cmd.Context(), c.Postgres.PoolHandle(), dir, direction, c.Logger); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", direction)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	return cmd
}
