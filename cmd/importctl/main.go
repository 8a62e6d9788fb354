package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-importer/internal/common"
)

type cli struct {
	jsonLogs bool
	verbose  bool
	logger   *slog.Logger
}

// config loads and validates the process configuration.
func (c *cli) config() (*common.Config, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) setupLogger(stderr io.Writer) {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.jsonLogs {
		c.logger = slog.New(slog.NewJSONHandler(stderr, opts))
	} else {
		c.logger = slog.New(slog.NewTextHandler(stderr, opts))
	}
	slog.SetDefault(c.logger)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Import property listings and manage the importer database",
		Long:          `importctl runs imports locally, exports imported properties and manages tenants, scrape rules and the schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.setupLogger(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVar(&c.jsonLogs, "json-logs", false, "write logs as JSON to stderr")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newImportCmd(c),
		newExportCmd(c),
		newDBCmd(c),
		newTenantCmd(c),
		newRuleCmd(c),
		newVocabCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
