package acquire

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/normalize"
)

const visionPrompt = `You are an OCR engine reading a screenshot of a real-estate listing.
Transcribe every label and value you can see (price, location, bedrooms, bathrooms, areas, features, contact details, description text).
Return a single flat JSON object of label -> value pairs. Use the visible label text as the key. Do not nest objects. Do not summarize or guess.
Wrap the JSON between ` + normalize.SentinelStart + ` and ` + normalize.SentinelEnd + `.`

// transcribe runs one OCR-style vision pass and returns the flat key/value
// transcription plus its text rendering.
func (a *Acquirer) transcribe(ctx context.Context, img Image) (map[string]any, string, error) {
	if a.vision == nil {
		return nil, "", errNoVision
	}
	if len(img.Data) == 0 {
		return nil, "", fmt.Errorf("empty image")
	}
	out, err := a.vision.Complete(ctx, llm.CompletionRequest{
		Task:      "vision",
		Prompt:    visionPrompt,
		Image:     img.Data,
		ImageMIME: llm.ImageMIME(img.Data, img.MIME),
	})
	if err != nil {
		return nil, "", err
	}
	data, _, err := normalize.ExtractJSON(out)
	if err != nil {
		// plain transcription is still useful prompt material
		text := strings.TrimSpace(out)
		if text == "" {
			return nil, "", err
		}
		return map[string]any{}, text, nil
	}
	data = normalize.FlattenObject(data)
	return data, RenderPairs(data), nil
}

// RenderPairs renders a flat object as sorted "key: value" lines.
func RenderPairs(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := data[k]
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return strings.TrimSpace(b.String())
}
