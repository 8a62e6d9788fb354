package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-importer/internal/export"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

func newExportCmd(c *cli) *cobra.Command {
	var tenant, sinceStr, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a tenant's imported properties to an XLSX file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var since time.Time
			if sinceStr != "" {
				t, err := time.Parse("2006-01-02", sinceStr)
				if err != nil {
					return fmt.Errorf("invalid --since date, use YYYY-MM-DD: %w", err)
				}
				since = t
			}
			db, err := c.openDB(cmd)
			if err != nil {
				return err
			}
			defer repository.Close(db, c.logger)

			props := repository.NewPropertyRepository(db, c.logger)
			b, err := export.NewService(props, c.logger).ExportPropertiesXLSX(cmd.Context(), tenant, since)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID (required)")
	cmd.Flags().StringVar(&sinceStr, "since", "", "only properties created on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&out, "out", "properties.xlsx", "output XLSX path")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
