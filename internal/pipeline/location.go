package pipeline

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/normalize"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

const taskLocationLookup = "location_lookup"

// locationFields may be filled by the map lookup, never overwritten.
var locationFields = []string{
	"addressLine1", "addressLine2", "city", "postalCode", "country",
	normalize.FieldDistrict, normalize.FieldArea, "latitude", "longitude",
}

// needsLocation reports whether a map link is known but the street address
// is still incomplete.
func needsLocation(fields map[string]any) bool {
	if blank(fields["mapUrl"]) {
		return false
	}
	return blank(fields["addressLine1"]) || blank(fields["city"])
}

// resolveLocation makes one best-effort lookup from the map link. Whatever
// it finds only fills gaps.
func (o *Orchestrator) resolveLocation(ctx context.Context, c llm.Completer, model string, fields map[string]any) error {
	raw, _ := fields["mapUrl"].(string)
	search := acquire.SearchURL(raw)
	fields["mapUrl"] = search
	if lat, lng, ok := acquire.Coordinates(raw); ok {
		fillIfBlank(fields, "latitude", lat)
		fillIfBlank(fields, "longitude", lng)
	}

	tctx, cancel := context.WithTimeout(ctx, o.cfg.LocationTimeout)
	defer cancel()
	text, err := c.Complete(tctx, llm.CompletionRequest{
		Task:   taskLocationLookup,
		Prompt: o.locationPrompt(search, fields),
		Model:  model,
	})
	if err != nil {
		return common.NewAppError(common.CodeEnrichmentFailed, "map lookup failed", err)
	}
	found := normalize.Normalize(text, o.Vocab)
	if len(found) == 0 {
		return common.NewAppError(common.CodeEnrichmentFailed, "map lookup returned no address", nil)
	}
	keepDistrictPair(fields, found, o.Vocab)
	for _, k := range locationFields {
		fillIfBlank(fields, k, found[k])
	}
	if o.Vocab != nil {
		normalize.ApplyVocabulary(fields, o.Vocab)
	}
	return nil
}

func (o *Orchestrator) locationPrompt(mapURL string, fields map[string]any) string {
	var known strings.Builder
	for _, k := range locationFields {
		if v, ok := fields[k]; ok && !blank(v) {
			known.WriteString("- " + k + ": " + toString(v) + "\n")
		}
	}
	parts := []string{
		"ROLE: Real Estate Location Analyst.\nTASK: Infer the street address of the property from its map link.",
		llm.Section("MAP URL", mapURL),
		llm.Section("ALREADY KNOWN", strings.TrimSpace(known.String())),
	}
	if o.Vocab != nil {
		parts = append(parts, llm.Section("AVAILABLE DISTRICTS & AREAS", o.Vocab.LocationReference()))
	}
	parts = append(parts,
		llm.Section("RULES", `- Use the coordinates, place name or query in the link.
- Leave a field empty when the link does not tell you.
- propertyLocation and propertyArea must come from the list above.`),
		llm.Section("OUTPUT JSON", `{
  "addressLine1": "String",
  "city": "String",
  "postalCode": "String",
  "country": "String",
  "propertyLocation": "String",
  "propertyArea": "String",
  "latitude": "Number",
  "longitude": "Number"
}

Return ONLY this JSON object, wrapped between `+normalize.SentinelStart+` and `+normalize.SentinelEnd+`.`),
	)
	return llm.JoinPrompt(parts...)
}

// keepDistrictPair drops a looked-up area that belongs to another district
// than the one already extracted. District and area are one value; an area
// from elsewhere would move the property when the vocabulary is applied.
func keepDistrictPair(fields, found map[string]any, v *vocab.Vocabulary) {
	district, _ := fields[normalize.FieldDistrict].(string)
	area, _ := found[normalize.FieldArea].(string)
	if v == nil || blank(district) || area == "" || !blank(fields[normalize.FieldArea]) {
		return
	}
	if owner, ok := v.DistrictOfArea(area); !ok || owner != district {
		delete(found, normalize.FieldArea)
	}
}

func fillIfBlank(fields map[string]any, k string, v any) {
	if blank(v) || !blank(fields[k]) {
		return
	}
	fields[k] = v
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
