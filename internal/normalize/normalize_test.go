package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

func testVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.Default()
	require.NoError(t, err)
	return v
}

func TestExtractJSON_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		strategy string
		key      string
	}{
		{"sentinel", "noise " + SentinelStart + `{"a":1}` + SentinelEnd + " tail", "sentinel", "a"},
		{"fence", "Here you go:\n```json\n{\"b\":2}\n```\nthanks", "fence", "b"},
		{"bare fence", "```\n{\"c\":3}\n```", "fence", "c"},
		{"brace", `The answer is {"d": 4} I think.`, "brace", "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, strategy, err := ExtractJSON(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, strategy)
			assert.Contains(t, obj, tt.key)
		})
	}
}

func TestExtractJSON_SentinelBeatsFence(t *testing.T) {
	text := "```json\n{\"from\":\"fence\"}\n```\n" + SentinelStart + `{"from":"sentinel"}` + SentinelEnd
	obj, strategy, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", strategy)
	assert.Equal(t, "sentinel", obj["from"])
}

func TestExtractJSON_BrokenCandidateFallsThrough(t *testing.T) {
	text := SentinelStart + `{"broken": ` + SentinelEnd + "\n```json\n{\"ok\":true}\n```"
	obj, strategy, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "fence", strategy)
	assert.Equal(t, true, obj["ok"])
}

func TestExtractJSON_NoObject(t *testing.T) {
	for _, text := range []string{"", "I could not find anything.", "[1,2,3]", "{not json}"} {
		_, _, err := ExtractJSON(text)
		assert.ErrorIs(t, err, ErrNoJSON, text)
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in   any
		want *float64
	}{
		{"€1,500", ptr(1500)},
		{"€450,000", ptr(450000)},
		{"1500.50 EUR", ptr(1500.5)},
		{"€1.500.000", ptr(1500000)},
		{"1.500", ptr(1.5)},
		{"n/a", nil},
		{"", nil},
		{0.0, ptr(0)},
		{"0", ptr(0)},
		{-3.0, ptr(3)},
		{true, nil},
	}
	for _, tt := range tests {
		got := ToNumber(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, "%v", tt.in)
			continue
		}
		require.NotNil(t, got, "%v", tt.in)
		assert.InDelta(t, *tt.want, *got, 1e-9, "%v", tt.in)
	}
}

func TestToSignedNumber(t *testing.T) {
	got := ToSignedNumber("-32.4167")
	require.NotNil(t, got)
	assert.InDelta(t, -32.4167, *got, 1e-9)

	got = ToNumber("-32.4167")
	require.NotNil(t, got)
	assert.InDelta(t, 32.4167, *got, 1e-9)
}

func TestCoerceNumbers(t *testing.T) {
	obj := map[string]any{
		"price":                     "€450,000",
		"communalFees":              "n/a",
		"bedrooms":                  "3.6",
		"bathrooms":                 "2.5",
		"buildYear":                 "2019.4",
		"latitude":                  "34.7768",
		"longitude":                 "-32.4245",
		"billsTransferable":         "Yes",
		"priceIncludesCommunalFees": "maybe",
		"title":                     "Villa",
	}
	CoerceNumbers(obj)

	assert.Equal(t, 450000.0, obj["price"])
	assert.NotContains(t, obj, "communalFees")
	assert.Equal(t, 4.0, obj["bedrooms"])
	assert.Equal(t, 2.5, obj["bathrooms"])
	assert.Equal(t, 2019.0, obj["buildYear"])
	assert.Equal(t, 34.7768, obj["latitude"])
	assert.Equal(t, -32.4245, obj["longitude"])
	assert.Equal(t, true, obj["billsTransferable"])
	assert.NotContains(t, obj, "priceIncludesCommunalFees")
	assert.Equal(t, "Villa", obj["title"])
}

func TestFlatten(t *testing.T) {
	in := map[string]any{
		"type": "RENT",
		"properties": map[string]any{
			"price": 1200.0,
			"pricing": map[string]any{
				"type":       "object",
				"properties": map[string]any{"currency": "EUR", "type": "monthly"},
			},
		},
		"animation": "fade",
	}
	out := FlattenObject(in)

	assert.Equal(t, "RENT", out["type"])
	assert.Equal(t, 1200.0, out["price"])
	assert.Equal(t, "fade", out["animation"])
	assert.NotContains(t, out, "properties")

	pricing, ok := out["pricing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EUR", pricing["currency"])
	assert.Equal(t, "monthly", pricing["type"])
}

func TestApplyVocabulary(t *testing.T) {
	v := testVocab(t)
	obj := map[string]any{
		"features":         []any{"Private Pool", "A/C", "helipad", "pool"},
		"category":         "apartment",
		"type":             "Detached Villa",
		"propertyLocation": "Paphos",
		"propertyArea":     "Kato Paphos",
		"rentalPeriod":     "monthly",
		"goal":             "for rent",
		"condition":        "brand new-ish",
	}
	dropped := ApplyVocabulary(obj, v)

	assert.Equal(t, []any{"swimming_pool_private", "air_conditioning"}, obj["features"])
	assert.Equal(t, "detached_villa", obj["type"])
	assert.Equal(t, "house", obj["category"])
	assert.Equal(t, "paphos", obj["propertyLocation"])
	assert.Equal(t, "kato_paphos", obj["propertyArea"])
	assert.Equal(t, "/month", obj["rentalPeriod"])
	assert.Equal(t, "RENT", obj["goal"])
	assert.NotContains(t, obj, "condition")
	assert.Contains(t, dropped, "condition")
}

func TestApplyVocabulary_UnknownLocationDropped(t *testing.T) {
	v := testVocab(t)
	obj := map[string]any{"propertyLocation": "Atlantis", "propertyArea": "Old Town"}
	ApplyVocabulary(obj, v)
	assert.NotContains(t, obj, "propertyLocation")
	assert.NotContains(t, obj, "propertyArea")
}

func TestApplyVocabulary_AreaPinsDistrict(t *testing.T) {
	v := testVocab(t)
	obj := map[string]any{"propertyLocation": "Limassol", "propertyArea": "Tala"}
	ApplyVocabulary(obj, v)
	assert.Equal(t, "paphos", obj["propertyLocation"])
	assert.Equal(t, "tala", obj["propertyArea"])
}

func TestNormalize(t *testing.T) {
	v := testVocab(t)
	text := "Sure!\n```json\n{\"price\": \"€450,000\", \"features\": [\"Swimming Pool\"], \"goal\": \"sale\"}\n```"
	res := NormalizeDetailed(text, v)

	require.NoError(t, res.Err)
	assert.Equal(t, "fence", res.Strategy)
	assert.Equal(t, 450000.0, res.Data["price"])
	assert.Equal(t, []any{"swimming_pool_private"}, res.Data["features"])
	assert.Equal(t, "SALE", res.Data["goal"])
}

func TestNormalize_ProseBecomesEmpty(t *testing.T) {
	out := Normalize("I'm sorry, I can't help with that listing.", testVocab(t))
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func ptr(f float64) *float64 { return &f }
