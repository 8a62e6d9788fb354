package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-importer/internal/app"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

func newDBCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Ping the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openDB(cmd)
			if err != nil {
				return err
			}
			defer repository.Close(db, c.logger)
			if err := repository.HealthCheck(cmd.Context(), db, 3*time.Second, c.logger); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s)\n", db.Dialect())
			return nil
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openDB(cmd)
			if err != nil {
				return err
			}
			defer repository.Close(db, c.logger)
			if err := repository.Migrate(cmd.Context(), db, c.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}

	cmd.AddCommand(health, migrate)
	return cmd
}

func (c *cli) openDB(cmd *cobra.Command) (*repository.DB, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return app.OpenDB(cmd.Context(), cfg, c.logger)
}
