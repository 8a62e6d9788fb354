// Package vocab holds the controlled vocabularies that extracted values are
// mapped onto: the category/subtype tree, the feature catalog, the
// district/area tree, rental periods and property conditions.
//
// A Vocabulary is immutable once loaded and safe for concurrent use.
package vocab

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var embedded []byte

type Item struct {
	Key     string   `yaml:"key"`
	Label   string   `yaml:"label"`
	Aliases []string `yaml:"aliases,omitempty"`
}

type Category struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Subtypes []Item `yaml:"subtypes"`
}

type FeatureCategory struct {
	Label string `yaml:"label"`
	Items []Item `yaml:"items"`
}

type District struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Areas []Item `yaml:"areas"`
}

type areaRef struct {
	district string
	area     string
}

type Vocabulary struct {
	Version           int               `yaml:"version"`
	Categories        []Category        `yaml:"categories"`
	FeatureCategories []FeatureCategory `yaml:"feature_categories"`
	Districts         []District        `yaml:"districts"`
	RentalPeriods     []string          `yaml:"rental_periods"`
	Conditions        []Item            `yaml:"conditions"`

	categories    map[string]string // folded key/label -> category key
	subtypes      map[string]string // folded key/label -> subtype key
	subtypeParent map[string]string // subtype key -> category key
	features      map[string]string // folded key/label/alias -> feature key
	featureKeys   map[string]struct{}
	districts     map[string]string // folded key/label -> district key
	areas         map[string]areaRef
	areaKeys      map[string]string // area key -> district key
	periods       map[string]string
	conditions    map[string]string
}

// Default parses the vocabulary compiled into the binary.
func Default() (*Vocabulary, error) {
	return Parse(embedded)
}

// LoadFile parses a vocabulary file. An empty path means the embedded default.
func LoadFile(path string) (*Vocabulary, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return Parse(b)
}

// Load reads a YAML vocabulary from r.
func Load(r io.Reader) (*Vocabulary, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML and builds the lookup indices.
func Parse(b []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := v.index(); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *Vocabulary) index() error {
	v.categories = map[string]string{}
	v.subtypes = map[string]string{}
	v.subtypeParent = map[string]string{}
	v.features = map[string]string{}
	v.featureKeys = map[string]struct{}{}
	v.districts = map[string]string{}
	v.areas = map[string]areaRef{}
	v.areaKeys = map[string]string{}
	v.periods = map[string]string{}
	v.conditions = map[string]string{}

	if len(v.Categories) == 0 {
		return fmt.Errorf("vocabulary: no categories")
	}
	for _, c := range v.Categories {
		if c.Key == "" {
			return fmt.Errorf("vocabulary: category with empty key")
		}
		setFirst(v.categories, c.Key, c.Key)
		setFirst(v.categories, c.Label, c.Key)
		for _, s := range c.Subtypes {
			if _, dup := v.subtypeParent[s.Key]; dup {
				return fmt.Errorf("vocabulary: duplicate subtype %q", s.Key)
			}
			v.subtypeParent[s.Key] = c.Key
			setFirst(v.subtypes, s.Key, s.Key)
			setFirst(v.subtypes, s.Label, s.Key)
		}
	}

	for _, fc := range v.FeatureCategories {
		for _, it := range fc.Items {
			if _, dup := v.featureKeys[it.Key]; dup {
				return fmt.Errorf("vocabulary: duplicate feature %q", it.Key)
			}
			v.featureKeys[it.Key] = struct{}{}
			setFirst(v.features, it.Key, it.Key)
			setFirst(v.features, it.Label, it.Key)
		}
	}
	// aliases after keys and labels so they never shadow a real label
	for _, fc := range v.FeatureCategories {
		for _, it := range fc.Items {
			for _, a := range it.Aliases {
				setFirst(v.features, a, it.Key)
			}
		}
	}

	for _, d := range v.Districts {
		setFirst(v.districts, d.Key, d.Key)
		setFirst(v.districts, d.Label, d.Key)
		for _, a := range d.Areas {
			if _, ok := v.areaKeys[a.Key]; !ok {
				v.areaKeys[a.Key] = d.Key
			}
			ref := areaRef{district: d.Key, area: a.Key}
			if _, ok := v.areas[Fold(a.Label)]; !ok {
				v.areas[Fold(a.Label)] = ref
			}
			if _, ok := v.areas[Fold(a.Key)]; !ok {
				v.areas[Fold(a.Key)] = ref
			}
		}
	}

	for _, p := range v.RentalPeriods {
		setFirst(v.periods, p, p)
		bare := strings.TrimPrefix(p, "/")
		setFirst(v.periods, bare, p)
		setFirst(v.periods, "per "+bare, p)
		setFirst(v.periods, bare+"ly", p)
	}
	setFirst(v.periods, "daily", "/day")
	setFirst(v.periods, "annually", "/year")

	for _, c := range v.Conditions {
		setFirst(v.conditions, c.Key, c.Key)
		setFirst(v.conditions, c.Label, c.Key)
	}
	return nil
}

// setFirst keeps the first mapping for a folded name, so catalog order decides ties.
func setFirst(m map[string]string, name, key string) {
	f := Fold(name)
	if f == "" {
		return
	}
	if _, ok := m[f]; !ok {
		m[f] = key
	}
}

// Fold normalizes a label for comparison: trimmed, single-spaced,
// diacritics removed, case folded.
func Fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return cases.Fold().String(s)
}

// FeatureKey maps a key, label or alias onto a feature key.
func (v *Vocabulary) FeatureKey(s string) (string, bool) {
	k, ok := v.features[Fold(s)]
	return k, ok
}

// HasFeature reports whether key is an exact feature key.
func (v *Vocabulary) HasFeature(key string) bool {
	_, ok := v.featureKeys[key]
	return ok
}

// Category maps a key or label onto a category key.
func (v *Vocabulary) Category(s string) (string, bool) {
	k, ok := v.categories[Fold(s)]
	return k, ok
}

// Subtype maps a key or label onto a subtype key and returns its parent category.
func (v *Vocabulary) Subtype(s string) (subtype, category string, ok bool) {
	k, ok := v.subtypes[Fold(s)]
	if !ok {
		return "", "", false
	}
	return k, v.subtypeParent[k], true
}

// CategoryOf returns the parent category of an exact subtype key.
func (v *Vocabulary) CategoryOf(subtype string) (string, bool) {
	c, ok := v.subtypeParent[subtype]
	return c, ok
}

// HasCategory reports whether key is an exact category key.
func (v *Vocabulary) HasCategory(key string) bool {
	for _, c := range v.Categories {
		if c.Key == key {
			return true
		}
	}
	return false
}

// HasSubtype reports whether key is an exact subtype key.
func (v *Vocabulary) HasSubtype(key string) bool {
	_, ok := v.subtypeParent[key]
	return ok
}

// Area searches every district for an area by key or label. A hit also
// pins the district the area belongs to.
func (v *Vocabulary) Area(s string) (district, area string, ok bool) {
	ref, ok := v.areas[Fold(s)]
	if !ok {
		return "", "", false
	}
	return ref.district, ref.area, true
}

// District maps a key or label onto a district key.
func (v *Vocabulary) District(s string) (string, bool) {
	k, ok := v.districts[Fold(s)]
	return k, ok
}

// HasDistrict reports whether key is an exact district key.
func (v *Vocabulary) HasDistrict(key string) bool {
	for _, d := range v.Districts {
		if d.Key == key {
			return true
		}
	}
	return false
}

// DistrictOfArea returns the district owning an exact area key.
func (v *Vocabulary) DistrictOfArea(area string) (string, bool) {
	d, ok := v.areaKeys[area]
	return d, ok
}

// RentalPeriod maps "/month", "month", "monthly" or "per month" onto the enum.
func (v *Vocabulary) RentalPeriod(s string) (string, bool) {
	k, ok := v.periods[Fold(s)]
	return k, ok
}

// DefaultRentalPeriod is the first configured period.
func (v *Vocabulary) DefaultRentalPeriod() string {
	if len(v.RentalPeriods) == 0 {
		return ""
	}
	return v.RentalPeriods[0]
}

func (v *Vocabulary) Condition(s string) (string, bool) {
	k, ok := v.conditions[Fold(s)]
	return k, ok
}

// FeatureKeys lists every feature key in catalog order.
func (v *Vocabulary) FeatureKeys() []string {
	out := make([]string, 0, len(v.featureKeys))
	for _, fc := range v.FeatureCategories {
		for _, it := range fc.Items {
			out = append(out, it.Key)
		}
	}
	return out
}

func (v *Vocabulary) CategoryKeys() []string {
	out := make([]string, 0, len(v.Categories))
	for _, c := range v.Categories {
		out = append(out, c.Key)
	}
	return out
}

func (v *Vocabulary) SubtypeKeys() []string {
	var out []string
	for _, c := range v.Categories {
		for _, s := range c.Subtypes {
			out = append(out, s.Key)
		}
	}
	return out
}
