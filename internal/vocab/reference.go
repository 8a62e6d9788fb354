package vocab

import (
	"fmt"
	"strings"
)

// FeatureReference renders the feature catalog for a prompt, one key per line
// grouped by category.
func (v *Vocabulary) FeatureReference() string {
	blocks := make([]string, 0, len(v.FeatureCategories))
	for _, fc := range v.FeatureCategories {
		var b strings.Builder
		b.WriteString("CATEGORY: ")
		b.WriteString(fc.Label)
		for _, it := range fc.Items {
			fmt.Fprintf(&b, "\n   - %q -> Key: %q", it.Label, it.Key)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// CategoryReference renders the category/subtype tree.
func (v *Vocabulary) CategoryReference() string {
	blocks := make([]string, 0, len(v.Categories))
	for _, c := range v.Categories {
		subs := make([]string, 0, len(c.Subtypes))
		for _, s := range c.Subtypes {
			subs = append(subs, fmt.Sprintf("%q (%s)", s.Key, s.Label))
		}
		blocks = append(blocks, fmt.Sprintf("CATEGORY: %q (%s)\n   SUBTYPES: %s", c.Key, c.Label, strings.Join(subs, ", ")))
	}
	return strings.Join(blocks, "\n")
}

// LocationReference renders districts with their area labels.
func (v *Vocabulary) LocationReference() string {
	lines := make([]string, 0, len(v.Districts))
	for _, d := range v.Districts {
		areas := make([]string, 0, len(d.Areas))
		for _, a := range d.Areas {
			areas = append(areas, a.Label)
		}
		lines = append(lines, fmt.Sprintf("DISTRICT: %q -> Areas: %s", d.Label, strings.Join(areas, ", ")))
	}
	return strings.Join(lines, "\n")
}

// RentalPeriodList renders the rental period enum as a quoted list.
func (v *Vocabulary) RentalPeriodList() string {
	quoted := make([]string, 0, len(v.RentalPeriods))
	for _, p := range v.RentalPeriods {
		quoted = append(quoted, fmt.Sprintf("%q", p))
	}
	return strings.Join(quoted, ", ")
}
