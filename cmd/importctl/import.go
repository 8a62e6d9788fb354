package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/app"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
)

type importFlags struct {
	tenant      string
	hints       string
	model       string
	maxImages   int
	mapURL      string
	screenshots []string
	gallery     []string
}

func newImportCmd(c *cli) *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run one import locally and print its events as NDJSON",
	}
	cmd.PersistentFlags().StringVar(&f.tenant, "tenant", "", "tenant ID (required)")
	cmd.PersistentFlags().StringVar(&f.hints, "hints", "", "free-form instructions for the extraction")
	cmd.PersistentFlags().StringVar(&f.model, "model", "", "AI model override")
	cmd.PersistentFlags().IntVar(&f.maxImages, "max-images", 0, "gallery cap (0 = configured default)")
	cmd.PersistentFlags().StringVar(&f.mapURL, "map-url", "", "map link for the listing")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	urlCmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Import a listing page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImport(cmd, f, acquire.Source{Kind: acquire.KindURL, URL: args[0]})
		},
	}

	textCmd := &cobra.Command{
		Use:   "text <file|->",
		Short: "Import pasted listing text, optionally with analysis screenshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return c.runImport(cmd, f, acquire.Source{Kind: acquire.KindText, Text: string(text)})
		},
	}
	textCmd.Flags().StringArrayVar(&f.screenshots, "screenshot", nil, "analysis screenshot file (repeatable)")
	textCmd.Flags().StringArrayVar(&f.gallery, "gallery", nil, "gallery image URL, listed first (repeatable)")

	shotCmd := &cobra.Command{
		Use:   "screenshot <file>",
		Short: "Import a listing screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			return c.runImport(cmd, f, acquire.Source{Kind: acquire.KindScreenshot, Image: img})
		},
	}

	cmd.AddCommand(urlCmd, textCmd, shotCmd)
	return cmd
}

func (c *cli) runImport(cmd *cobra.Command, f *importFlags, src acquire.Source) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	src.MapURL = f.mapURL
	req := pipeline.Request{
		TenantID:  f.tenant,
		Source:    src,
		Hints:     f.hints,
		Model:     f.model,
		MaxImages: f.maxImages,

		GalleryImages: f.gallery,
	}
	for _, path := range f.screenshots {
		img, err := readImage(path)
		if err != nil {
			return err
		}
		req.Screenshots = append(req.Screenshots, img)
	}
	return printEvents(cmd.OutOrStdout(), a.Orchestrator.Run(ctx, req))
}

// printEvents writes one JSON line per event and fails when the run did.
func printEvents(w io.Writer, events <-chan pipeline.Event) error {
	enc := json.NewEncoder(w)
	var last pipeline.Event
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		last = ev
	}
	switch {
	case last.Type == pipeline.EventError:
		if last.Code != "" {
			return fmt.Errorf("import failed (%s): %s", last.Code, last.Message)
		}
		return fmt.Errorf("import failed: %s", last.Message)
	case !last.Terminal():
		return fmt.Errorf("import interrupted")
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func readImage(path string) (acquire.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return acquire.Image{}, fmt.Errorf("read %s: %w", path, err)
	}
	return acquire.Image{Data: b, MIME: http.DetectContentType(b)}, nil
}
