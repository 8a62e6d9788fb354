package extract

import (
	"strings"

	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/normalize"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

// overrideFields always come from the category pass when it answered them.
var overrideFields = map[string]string{
	normalize.FieldCategory: TaskCategory,
	normalize.FieldSubtype:  TaskCategory,
}

// Merge folds task answers together in MergeOrder. The first non-empty value
// for a key wins, except that category and type come from the category pass
// and features are unioned. Acquired images, map URL and coordinates fill in
// whatever the tasks left empty, and the vocabulary is applied once more to
// the merged record.
func Merge(parts map[string]map[string]any, content *acquire.Content, v *vocab.Vocabulary) map[string]any {
	merged := map[string]any{}
	var features []any
	seen := map[string]bool{}

	for _, name := range MergeOrder {
		part := parts[name]
		for k, val := range part {
			if k == normalize.FieldFeatures {
				for _, f := range toList(val) {
					if s, ok := f.(string); ok && !seen[s] {
						seen[s] = true
						features = append(features, s)
					}
				}
				continue
			}
			if owner, ok := overrideFields[k]; ok && owner == name && !isEmpty(val) {
				merged[k] = val
				continue
			}
			if isEmpty(val) {
				continue
			}
			if _, taken := merged[k]; !taken {
				merged[k] = val
			}
		}
	}
	if features == nil {
		features = []any{}
	}
	merged[normalize.FieldFeatures] = features

	if content != nil {
		if isEmpty(merged["images"]) && len(content.Images) > 0 {
			images := make([]any, 0, len(content.Images))
			for _, u := range content.Images {
				images = append(images, u)
			}
			merged["images"] = images
		}
		if h := content.MapHint; h != nil {
			if isEmpty(merged["mapUrl"]) && h.URL != "" {
				merged["mapUrl"] = h.URL
			}
			if isEmpty(merged["latitude"]) && h.Lat != nil {
				merged["latitude"] = *h.Lat
			}
			if isEmpty(merged["longitude"]) && h.Lng != nil {
				merged["longitude"] = *h.Lng
			}
		}
	}

	if v != nil {
		normalize.ApplyVocabulary(merged, v)
	}
	return merged
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}
