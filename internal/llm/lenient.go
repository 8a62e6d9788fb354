package llm

import (
	"errors"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SanitizeAgainstSchema drops the top-level fields a document fails on, so the
// rest of a model answer can still be used. It returns the cleaned document
// and the dropped field names. The input map is modified in place.
func SanitizeAgainstSchema(schema *jsonschema.Schema, doc map[string]any) (map[string]any, []string, error) {
	err := schema.Validate(toValidatable(doc))
	if err == nil {
		return doc, nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return doc, nil, err
	}

	offenders := map[string]struct{}{}
	collectOffenders(ve, offenders)
	if len(offenders) == 0 {
		// root-level failure (e.g. not an object); nothing field-shaped to drop
		return doc, nil, err
	}

	dropped := make([]string, 0, len(offenders))
	for k := range offenders {
		delete(doc, k)
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)

	if err := schema.Validate(toValidatable(doc)); err != nil {
		return doc, dropped, err
	}
	return doc, dropped, nil
}

func collectOffenders(ve *jsonschema.ValidationError, out map[string]struct{}) {
	if len(ve.Causes) == 0 {
		if field := topLevelField(ve.InstanceLocation); field != "" {
			out[field] = struct{}{}
		}
		return
	}
	for _, c := range ve.Causes {
		collectOffenders(c, out)
	}
}

// topLevelField returns the first JSON-pointer segment of loc.
func topLevelField(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return ""
	}
	seg, _, _ := strings.Cut(loc, "/")
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}

// toValidatable converts a decoded JSON map into the value shapes the
// validator expects (it wants []any and map[string]any, which json gives us,
// but callers may have put []string in after decoding).
func toValidatable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toValidatable(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toValidatable(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case int:
		return float64(t)
	default:
		return v
	}
}
