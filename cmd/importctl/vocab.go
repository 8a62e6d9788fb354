package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

func newVocabCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the vocabulary references used in prompts",
	}
	show := func(use, short string, render func(*vocab.Vocabulary) string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				// no DB needed, so no Validate
				cfg, err := common.LoadConfig()
				if err != nil {
					return err
				}
				v, err := vocab.LoadFile(cfg.Acquire.VocabularyFile)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), render(v))
				return nil
			},
		}
	}
	cmd.AddCommand(
		show("features", "Feature catalog", (*vocab.Vocabulary).FeatureReference),
		show("categories", "Category and subtype tree", (*vocab.Vocabulary).CategoryReference),
		show("locations", "Districts and areas", (*vocab.Vocabulary).LocationReference),
	)
	return cmd
}
