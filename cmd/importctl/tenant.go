package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-importer/internal/entity"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

func newTenantCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	t := &entity.Tenant{}
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a tenant and its credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t.ID = strings.TrimSpace(t.ID)
			if t.ID == "" {
				return fmt.Errorf("--id is required")
			}
			db, err := c.openDB(cmd)
			if err != nil {
				return err
			}
			defer repository.Close(db, c.logger)
			if err := repository.NewTenantRepository(db, c.logger).Upsert(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s saved\n", t.ID)
			return nil
		},
	}
	fl := upsert.Flags()
	fl.StringVar(&t.ID, "id", "", "tenant ID (required)")
	fl.StringVar(&t.Name, "name", "", "agency name")
	fl.StringVar(&t.CreatorName, "creator", "", "name written into import notes")
	fl.StringVar(&t.AIAPIKey, "ai-key", "", "AI API key (empty = process default)")
	fl.StringVar(&t.AIModel, "model", "", "AI model (empty = process default)")
	fl.StringVar(&t.MediaAccountID, "media-account", "", "image store account ID")
	fl.StringVar(&t.MediaAPIToken, "media-token", "", "image store API token")
	fl.StringVar(&t.MediaDeliveryHash, "media-hash", "", "image store delivery hash")

	cmd.AddCommand(upsert)
	return cmd
}

func newRuleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage per-domain scrape rules",
	}

	var tenant, domain string
	add := &cobra.Command{
		Use:   "add <rule>",
		Short: "Save a rule that is added to the hints of every import from a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB(cmd)
			if err != nil {
				return err
			}
			defer repository.Close(db, c.logger)
			rule := &entity.ScrapeRule{TenantID: tenant, Domain: domain, Rule: args[0]}
			if err := repository.NewTenantRepository(db, c.logger).AddScrapeRule(cmd.Context(), rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rule %s saved for %s\n", rule.ID, rule.Domain)
			return nil
		},
	}
	add.Flags().StringVar(&tenant, "tenant", "", "tenant ID (required)")
	add.Flags().StringVar(&domain, "domain", "", "listing site domain, e.g. example.com (required)")
	_ = add.MarkFlagRequired("tenant")
	_ = add.MarkFlagRequired("domain")

	cmd.AddCommand(add)
	return cmd
}
