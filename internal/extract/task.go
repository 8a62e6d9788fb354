// Package extract runs the independent AI extraction passes over acquired
// content and merges their answers into one draft record.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/normalize"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

// Task names, also used as log tags.
const (
	TaskDetails  = "details"
	TaskPricing  = "pricing"
	TaskLocation = "location"
	TaskSpecs    = "specs"
	TaskPublish  = "publish"
	TaskCategory = "category"
)

// MergeOrder is the fixed precedence used when task answers overlap.
var MergeOrder = []string{TaskDetails, TaskPricing, TaskLocation, TaskSpecs, TaskPublish, TaskCategory}

// ExcerptChars bounds the content excerpt embedded in each prompt.
const ExcerptChars = 2000

// Task is one extraction pass.
type Task struct {
	Name    string
	Prompt  string
	Schema  map[string]any
	Image   []byte
	Default map[string]any
}

// DefaultFor returns a fresh copy of the fallback answer for a task.
func DefaultFor(name string) map[string]any {
	switch name {
	case TaskSpecs:
		return map[string]any{"features": []any{}}
	case TaskPublish:
		return map[string]any{"goal": string(constants.GoalSale)}
	case TaskCategory:
		return map[string]any{"category": constants.DefaultCategory, "type": constants.DefaultSubtype}
	default:
		return map[string]any{}
	}
}

// Input is everything the prompts are built from.
type Input struct {
	Content *acquire.Content
	Hints   string
	Model   string
	// Image is the primary screenshot, if any. It is attached to the details pass.
	Image []byte
}

// FormatHints puts saved per-domain rules ahead of the user's own notes.
func FormatHints(user string, savedRules []string) string {
	lines := make([]string, 0, len(savedRules)+1)
	for _, r := range savedRules {
		if r = strings.TrimSpace(r); r != "" {
			lines = append(lines, "[SAVED RULE] "+r)
		}
	}
	if u := strings.TrimSpace(user); u != "" {
		lines = append(lines, u)
	}
	return strings.Join(lines, "\n")
}

// PromptContext is the material every prompt embeds.
type PromptContext struct {
	title   string
	vision  string
	excerpt string
	hints   string
	mapURL  string
	image   []byte
}

// NewPromptContext prepares the shared prompt inputs.
func NewPromptContext(in Input) PromptContext {
	pc := PromptContext{vision: "{}", hints: strings.TrimSpace(in.Hints), image: in.Image}
	c := in.Content
	if c == nil {
		return pc
	}
	pc.title = c.Title
	pc.excerpt = llm.Truncate(c.PromptText(), ExcerptChars)
	if len(c.VisionData) > 0 {
		if b, err := json.Marshal(c.VisionData); err == nil {
			pc.vision = string(b)
		}
	}
	if c.MapHint != nil {
		pc.mapURL = c.MapHint.URL
	}
	return pc
}

// priority renders user hints as the first block so they outrank every rule.
func (pc PromptContext) priority() string {
	return llm.Section("PRIORITY INSTRUCTIONS (override any rule below)", pc.hints)
}

func (pc PromptContext) input(withTitle, withMap bool) string {
	var b strings.Builder
	if withTitle {
		fmt.Fprintf(&b, "- Page Title: %s\n", orNA(pc.title))
	}
	if withMap {
		fmt.Fprintf(&b, "- Map URL: %s\n", orNA(pc.mapURL))
	}
	fmt.Fprintf(&b, "- Vision Data: %s\n", pc.vision)
	fmt.Fprintf(&b, "- Text Content (Snippet): %s", pc.excerpt)
	return llm.Section("INPUT CONTEXT", b.String())
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func outputBlock(example string) string {
	return llm.Section("OUTPUT JSON", example+"\n\nReturn ONLY this JSON object, wrapped between "+
		normalize.SentinelStart+" and "+normalize.SentinelEnd+". No commentary.")
}

// Tasks builds the six extraction passes for one input.
func Tasks(in Input, v *vocab.Vocabulary) []Task {
	pc := NewPromptContext(in)
	return []Task{
		DetailsTask(pc),
		PricingTask(pc),
		LocationTask(pc, v),
		SpecsTask(pc, v),
		PublishTask(pc, v),
		CategoryTask(pc, v),
	}
}

func DetailsTask(pc PromptContext) Task {
	prompt := llm.JoinPrompt(
		pc.priority(),
		"ROLE: Senior Real Estate Copywriter & Data Analyst.\nTASK: Extract structured details AND write a marketing description.",
		pc.input(true, false),
		llm.Section("EXTRACTION RULES", `- 'areaSqm' is the TOTAL covered area.
- 'coveredAreaSqm' is the internal/indoor area.
- 'coveredVerandaSqm' and 'uncoveredVerandaSqm' are often listed separately.
- 'buildYear': the year near "Year Built" or "Construction Year".`),
		llm.Section("DESCRIPTION (HTML fragment only)", `- Use <p>, <ul>, <li>, <strong>, <br>. No Markdown. No <html> or <body>.
- Open with type, location and the main selling point. Then 2-3 sentences on lifestyle.
- List the top 5-7 features, then location, terms and a call to book a viewing.
- No internal codes or phone numbers. NEVER invent features.`),
		llm.Section("TITLE", `- Ignore generic page titles ("WhatsApp Image", "Import", "Pasted Confirmation").
- Build the title from type + location + key feature, e.g. "Modern 3-Bedroom Villa in Paphos with Sea Views".
- Keep it under 60 characters.`),
		outputBlock(`{
  "title": "String",
  "description": "String (HTML)",
  "type": "String",
  "bedrooms": "Number",
  "bathrooms": "Number",
  "areaSqm": "Number",
  "coveredAreaSqm": "Number",
  "coveredVerandaSqm": "Number",
  "uncoveredVerandaSqm": "Number",
  "plotAreaSqm": "Number",
  "basementSqm": "Number",
  "buildYear": "Number"
}`),
	)
	return Task{Name: TaskDetails, Prompt: prompt, Schema: detailsSchema(), Image: pc.image, Default: DefaultFor(TaskDetails)}
}

func PricingTask(pc PromptContext) Task {
	prompt := llm.JoinPrompt(
		pc.priority(),
		`ROLE: Real Estate Data Entry Clerk - "Pricing" tab.
TASK: Extract pricing, deposit and viewing information.`,
		pc.input(false, false),
		llm.Section("RULES", `1. 'price' is the main asking price. 'currency' defaults to "EUR".
2. Communal fees: for patterns like "€1,500+ €50" the second number (50) is 'communalFees'. Also look for "plus common expenses".
3. 'priceIncludesCommunalFees' is true ONLY if the text says the price includes common expenses.
4. 'deposit' is the text ("1 rent + 1 deposit"); 'depositValue' is its numeric total. 'agreementNotes' holds contract terms only.
5. 'viewingContact' holds phone numbers; 'viewingNotes' holds viewing arrangements (keys, tenant notice).
6. 'petsAllowed' is "Yes", "No" or "Negotiable". 'billsTransferable' is true if utilities can be transferred.`),
		outputBlock(`{
  "price": "Number",
  "currency": "EUR",
  "communalFees": "Number",
  "priceIncludesCommunalFees": "Boolean",
  "deposit": "String",
  "depositValue": "Number",
  "commission": "String",
  "petsAllowed": "String",
  "agreementNotes": "String",
  "billsTransferable": "Boolean",
  "viewingContact": "String",
  "viewingNotes": "String"
}`),
	)
	return Task{Name: TaskPricing, Prompt: prompt, Schema: pricingSchema(), Default: DefaultFor(TaskPricing)}
}

func LocationTask(pc PromptContext, v *vocab.Vocabulary) Task {
	prompt := llm.JoinPrompt(
		pc.priority(),
		`ROLE: Real Estate Data Entry Clerk - "Location" tab.
TASK: Extract the address and location hierarchy.`,
		pc.input(true, true),
		llm.Section("AVAILABLE DISTRICTS & AREAS", v.LocationReference()),
		llm.Section("RULES", `- city: the major town or district.
- propertyLocation: the district from the list above.
- propertyArea: the village or suburb from the list above (e.g. Peyia, Chloraka, Kato Paphos).
- addressLine1: street name and number, or building name, if visible.
- Coordinates: look for "GPS", "Coordinates" or "Lat/Lon" strings such as "34.123, 32.123".`),
		outputBlock(`{
  "addressLine1": "String",
  "addressLine2": "String",
  "city": "String",
  "postalCode": "String",
  "country": "String (default Cyprus)",
  "propertyLocation": "String",
  "propertyArea": "String",
  "latitude": "Number",
  "longitude": "Number"
}`),
	)
	return Task{Name: TaskLocation, Prompt: prompt, Schema: locationSchema(v), Default: DefaultFor(TaskLocation)}
}

func SpecsTask(pc PromptContext, v *vocab.Vocabulary) Task {
	prompt := llm.JoinPrompt(
		pc.priority(),
		`ROLE: Real Estate Data Entry Clerk - "Specs" tab.
TASK: Extract features and amenities and map them to system keys.`,
		pc.input(false, false),
		llm.Section("AVAILABLE FEATURES REFERENCE", "Use ONLY the 'Key' values below. Never invent keys.\n\n"+v.FeatureReference()),
		llm.Section("RULES", `1. "A/C" or "Air Con" -> "air_conditioning".
2. "Sea View" -> "sea_views".
3. "Pool" or "Swimming Pool": decide private or communal. If unspecified use "swimming_pool_private".
4. The 'features' array holds key strings only, never labels.`),
		outputBlock(`{
  "features": ["key1", "key2"]
}`),
	)
	return Task{Name: TaskSpecs, Prompt: prompt, Schema: specsSchema(v), Default: DefaultFor(TaskSpecs)}
}

func PublishTask(pc PromptContext, v *vocab.Vocabulary) Task {
	prompt := llm.JoinPrompt(
		pc.priority(),
		`ROLE: Marketing Manager - "Publish" tab.
TASK: Determine the listing goal and SEO metadata.`,
		pc.input(true, false),
		llm.Section("RULES", fmt.Sprintf(`1. goal is "RENT" if the text mentions "per month", "long term", "deposit" or "monthly". Otherwise "SALE".
2. If goal is RENT, rentalPeriod is one of: %s. Default to %q if unclear.
3. metaTitle: under 60 characters, type + location.
4. metaDescription: under 160 characters, key highlights.
5. metaKeywords: specific search terms such as "Paphos Villa", "Pool".`, v.RentalPeriodList(), v.DefaultRentalPeriod())),
		outputBlock(`{
  "goal": "SALE | RENT",
  "rentalPeriod": "String",
  "metaTitle": "String",
  "metaDescription": "String",
  "metaKeywords": "String"
}`),
	)
	return Task{Name: TaskPublish, Prompt: prompt, Schema: publishSchema(v), Default: DefaultFor(TaskPublish)}
}

func CategoryTask(pc PromptContext, v *vocab.Vocabulary) Task {
	prompt := llm.JoinPrompt(
		pc.priority(),
		"ROLE: Real Estate Classifier.\nTASK: Classify the property into exactly ONE category and ONE subtype.",
		pc.input(true, false),
		llm.Section("AVAILABLE CATEGORIES & SUBTYPES", "Use ONLY the keys below.\n\n"+v.CategoryReference()),
		llm.Section("RULES", `1. Villa, bungalow or house -> "house".
2. Studio, penthouse or flat -> "apartment".
3. Office, shop or other business premises -> "commercial".
4. Plot or field -> "land".
5. Pick the most specific subtype key (e.g. "detached_villa", "penthouse", "residential_land").`),
		outputBlock(`{
  "category": "category key",
  "type": "subtype key"
}`),
	)
	return Task{Name: TaskCategory, Prompt: prompt, Schema: categorySchema(v), Default: DefaultFor(TaskCategory)}
}
