package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/entity"
	"github.com/joseph-ayodele/property-importer/internal/media"
	"github.com/joseph-ayodele/property-importer/internal/normalize"
	"github.com/joseph-ayodele/property-importer/internal/tenants"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

const (
	fallbackSlug = "imported-property"
	maxSlugBase  = 80
)

type draftInput struct {
	Fields    map[string]any
	Tenant    *tenants.Tenant
	Content   *acquire.Content
	Gallery   []media.MediaItem
	RunID     string
	Extracted json.RawMessage
	Now       time.Time
}

// buildDraft turns the merged record into the draft property that gets
// persisted, filling in the defaults an unreviewed import needs.
func buildDraft(in draftInput, v *vocab.Vocabulary) *entity.Property {
	f := in.Fields
	title := str(f, "title")
	if title == "" {
		title = constants.DefaultTitle
	}
	goal, _ := constants.CanonicalGoal(str(f, normalize.FieldGoal))

	p := &entity.Property{
		TenantID:          in.Tenant.ID,
		Slug:              Slugify(title) + "-" + strconv.FormatInt(in.Now.UnixMilli(), 10),
		Title:             title,
		Description:       str(f, "description"),
		Category:          orDefault(str(f, normalize.FieldCategory), constants.DefaultCategory),
		Type:              orDefault(str(f, normalize.FieldSubtype), constants.DefaultSubtype),
		Goal:              string(goal),
		Status:            constants.PropertyStatusActive,
		PublicationStatus: constants.PublicationStatusDraft,
		Condition:         str(f, normalize.FieldCondition),

		Price:                     num(f, "price"),
		Currency:                  orDefault(strings.ToUpper(str(f, "currency")), constants.DefaultCurrency),
		CommunalFees:              num(f, "communalFees"),
		PriceIncludesCommunalFees: normalize.ToBool(f["priceIncludesCommunalFees"]),
		Deposit:                   str(f, "deposit"),
		DepositValue:              num(f, "depositValue"),
		Commission:                str(f, "commission"),
		PetsAllowed:               str(f, "petsAllowed"),
		BillsTransferable:         normalize.ToBool(f["billsTransferable"]),
		AgreementNotes:            str(f, "agreementNotes"),
		ViewingContact:            str(f, "viewingContact"),
		ViewingNotes:              str(f, "viewingNotes"),

		Bedrooms:            integer(f, "bedrooms"),
		Bathrooms:           num(f, "bathrooms"),
		AreaSqm:             num(f, "areaSqm"),
		CoveredAreaSqm:      num(f, "coveredAreaSqm"),
		CoveredVerandaSqm:   num(f, "coveredVerandaSqm"),
		UncoveredVerandaSqm: num(f, "uncoveredVerandaSqm"),
		PlotAreaSqm:         num(f, "plotAreaSqm"),
		BasementSqm:         num(f, "basementSqm"),
		BuildYear:           integer(f, "buildYear"),
		Features:            stringList(f[normalize.FieldFeatures]),

		AddressLine1: str(f, "addressLine1"),
		AddressLine2: str(f, "addressLine2"),
		City:         str(f, "city"),
		PostalCode:   str(f, "postalCode"),
		Country:      orDefault(str(f, "country"), constants.DefaultCountry),
		District:     str(f, normalize.FieldDistrict),
		Area:         str(f, normalize.FieldArea),
		Latitude:     normalize.ToSignedNumber(f["latitude"]),
		Longitude:    normalize.ToSignedNumber(f["longitude"]),
		MapURL:       str(f, "mapUrl"),

		MetaTitle:       str(f, "metaTitle"),
		MetaDescription: str(f, "metaDescription"),
		MetaKeywords:    str(f, "metaKeywords"),

		ImportRunID: in.RunID,
		Extracted:   in.Extracted,
	}
	if p.AreaSqm == nil && p.CoveredAreaSqm != nil {
		a := *p.CoveredAreaSqm
		p.AreaSqm = &a
	}
	if goal == constants.GoalRent {
		p.RentalPeriod = str(f, normalize.FieldRentalPeriod)
		if p.RentalPeriod == "" && v != nil {
			p.RentalPeriod = v.DefaultRentalPeriod()
		}
	}
	if c := in.Content; c != nil {
		p.SourceURL = c.SourceURL
		p.SourceRef = c.SourceRef
	}
	for i, item := range in.Gallery {
		p.Media = append(p.Media, entity.Media{
			Kind:      constants.MediaKindImage,
			URL:       item.URL,
			SourceURL: item.SourceURL,
			StoreID:   item.StoreID,
			SortOrder: i,
		})
	}
	p.InternalNotes = internalNote(p, in.Tenant, in.Now, v)
	return p
}

// internalNote is the agent-facing summary stored with the draft.
func internalNote(p *entity.Property, t *tenants.Tenant, now time.Time, v *vocab.Vocabulary) string {
	var lines []string
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, label+": "+value)
		}
	}

	creator := t.CreatorName
	if creator == "" {
		creator = t.Name
	}
	if creator == "" {
		creator = "AI import"
	}
	lines = append(lines, fmt.Sprintf("Imported by %s on %s", creator, now.UTC().Format("2006-01-02 15:04 MST")))

	var loc []string
	for _, s := range []string{p.AddressLine1, p.City, areaLabel(v, p.District, p.Area), districtLabel(v, p.District)} {
		if s != "" && !slices.Contains(loc, s) {
			loc = append(loc, s)
		}
	}
	add("Location", strings.Join(loc, ", "))
	if p.Latitude != nil && p.Longitude != nil {
		add("Coordinates", fmt.Sprintf("%.6f, %.6f", *p.Latitude, *p.Longitude))
	}
	add("Map", p.MapURL)
	add("Source", orDefault(p.SourceURL, p.SourceRef))
	add("Keys / viewing contact", p.ViewingContact)
	add("Pets", p.PetsAllowed)
	add("Viewing notes", p.ViewingNotes)
	add("Agreement", p.AgreementNotes)
	add("Deposit", p.Deposit)
	return strings.Join(lines, "\n")
}

func districtLabel(v *vocab.Vocabulary, key string) string {
	if v == nil || key == "" {
		return key
	}
	for _, d := range v.Districts {
		if d.Key == key {
			return d.Label
		}
	}
	return key
}

func areaLabel(v *vocab.Vocabulary, district, key string) string {
	if v == nil || key == "" {
		return key
	}
	for _, d := range v.Districts {
		if d.Key != district {
			continue
		}
		for _, a := range d.Areas {
			if a.Key == key {
				return a.Label
			}
		}
	}
	return key
}

// Slugify lowercases title, strips diacritics and joins the ASCII words with
// dashes. An empty result becomes "imported-property".
func Slugify(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(fold, title)
	if err != nil {
		s = title
	}
	s = cases.Lower(language.Und).String(s)

	var b strings.Builder
	dash := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxSlugBase {
		out = strings.TrimRight(out[:maxSlugBase], "-")
	}
	if out == "" {
		return fallbackSlug
	}
	return out
}

func str(f map[string]any, k string) string {
	return strings.TrimSpace(toString(f[k]))
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func num(f map[string]any, k string) *float64 {
	return normalize.ToNumber(f[k])
}

func integer(f map[string]any, k string) *int {
	n := normalize.ToNumber(f[k])
	if n == nil {
		return nil
	}
	i := int(math.Round(*n))
	return &i
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
