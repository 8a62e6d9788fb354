package normalize

import (
	"strings"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

// Controlled field names on an extracted record.
const (
	FieldFeatures     = "features"
	FieldCategory     = "category"
	FieldSubtype      = "type"
	FieldDistrict     = "propertyLocation"
	FieldArea         = "propertyArea"
	FieldRentalPeriod = "rentalPeriod"
	FieldGoal         = "goal"
	FieldCondition    = "condition"
)

// ApplyVocabulary rewrites the controlled fields of obj in place so they hold
// only vocabulary keys. Values that cannot be matched are removed; nothing is
// invented. It returns the names of the fields it dropped.
func ApplyVocabulary(obj map[string]any, v *vocab.Vocabulary) []string {
	var dropped []string
	drop := func(k string) {
		if _, ok := obj[k]; ok {
			delete(obj, k)
			dropped = append(dropped, k)
		}
	}

	if raw, ok := obj[FieldFeatures]; ok {
		obj[FieldFeatures] = mapFeatures(raw, v)
	}

	// A valid subtype decides the category.
	if s := stringField(obj, FieldSubtype); s != "" {
		if sub, cat, ok := v.Subtype(s); ok {
			obj[FieldSubtype] = sub
			obj[FieldCategory] = cat
		} else {
			drop(FieldSubtype)
		}
	} else {
		drop(FieldSubtype)
	}
	if s := stringField(obj, FieldCategory); s != "" {
		if cat, ok := v.Category(s); ok {
			obj[FieldCategory] = cat
		} else {
			drop(FieldCategory)
		}
	} else {
		drop(FieldCategory)
	}
	if sub, ok := obj[FieldSubtype].(string); ok {
		if parent, _ := v.CategoryOf(sub); parent != obj[FieldCategory] {
			drop(FieldSubtype)
		}
	}

	district, area := ResolveLocation(v, stringField(obj, FieldDistrict), stringField(obj, FieldArea))
	if district != "" {
		obj[FieldDistrict] = district
	} else {
		drop(FieldDistrict)
	}
	if area != "" {
		obj[FieldArea] = area
	} else {
		drop(FieldArea)
	}

	if s := stringField(obj, FieldRentalPeriod); s != "" {
		if p, ok := v.RentalPeriod(s); ok {
			obj[FieldRentalPeriod] = p
		} else {
			drop(FieldRentalPeriod)
		}
	} else {
		drop(FieldRentalPeriod)
	}

	if s := stringField(obj, FieldCondition); s != "" {
		if c, ok := v.Condition(s); ok {
			obj[FieldCondition] = c
		} else {
			drop(FieldCondition)
		}
	} else {
		drop(FieldCondition)
	}

	if s := stringField(obj, FieldGoal); s != "" {
		g, _ := constants.CanonicalGoal(s)
		obj[FieldGoal] = string(g)
	} else {
		drop(FieldGoal)
	}

	return dropped
}

// ResolveLocation maps free-text district and area onto keys. An area is
// searched across every district first, and a hit also fixes the district.
// Otherwise the district alone is matched. Unknown values come back empty.
func ResolveLocation(v *vocab.Vocabulary, district, area string) (string, string) {
	if area != "" {
		if d, a, ok := v.Area(area); ok {
			return d, a
		}
	}
	if district != "" {
		if d, ok := v.District(district); ok {
			return d, ""
		}
		// models often put the village in the district slot
		if d, a, ok := v.Area(district); ok {
			return d, a
		}
	}
	return "", ""
}

func mapFeatures(raw any, v *vocab.Vocabulary) []any {
	var in []string
	switch t := raw.(type) {
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				in = append(in, s)
			}
		}
	case []string:
		in = t
	case string:
		for _, s := range strings.Split(t, ",") {
			in = append(in, s)
		}
	}
	seen := map[string]bool{}
	out := make([]any, 0, len(in))
	for _, s := range in {
		key, ok := v.FeatureKey(s)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func stringField(obj map[string]any, k string) string {
	s, _ := obj[k].(string)
	return strings.TrimSpace(s)
}
