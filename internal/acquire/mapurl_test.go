package acquire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinates(t *testing.T) {
	tests := []struct {
		url      string
		lat, lng float64
		ok       bool
	}{
		{"https://www.google.com/maps/place/Villa/@34.8732,32.3847,15z", 34.8732, 32.3847, true},
		{"https://maps.google.com/?q=34.6841,33.0379", 34.6841, 33.0379, true},
		{"https://www.google.com/maps/embed/v1/view?center=35.1%2C33.3&zoom=12", 35.1, 33.3, true},
		{"https://www.google.com/maps?ll=-33.86+151.2", -33.86, 151.2, true},
		{"https://www.google.com/maps/search/?api=1&query=Main+St+Paphos", 0, 0, false},
	}
	for _, tt := range tests {
		lat, lng, ok := Coordinates(tt.url)
		require.Equal(t, tt.ok, ok, tt.url)
		if ok {
			assert.InDelta(t, tt.lat, lat, 1e-9, tt.url)
			assert.InDelta(t, tt.lng, lng, 1e-9, tt.url)
		}
	}
}

func TestParseMapURL_RejectsOtherHosts(t *testing.T) {
	_, ok := ParseMapURL("https://example.com/@34.1,32.1")
	assert.False(t, ok)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/maps/search/?api=1&query=Kato+Paphos",
		SearchURL("https://www.google.com/maps/embed?pb=x&q=Kato%20Paphos"))
	assert.Equal(t,
		"https://www.google.com/maps/search/?api=1&query=34.7%2C32.4",
		SearchURL("https://www.google.com/maps/embed/v1/view?center=34.7,32.4"))

	plain := "https://www.google.com/maps/place/Villa/@34.8,32.3,15z"
	assert.Equal(t, plain, SearchURL(plain))
}

func TestFindMapHint_PrefersCoordinates(t *testing.T) {
	h := FindMapHint([]string{
		"https://example.com/contact",
		"https://maps.app.goo.gl/abc123",
		"https://www.google.com/maps/@34.7,32.4,14z",
	})
	require.NotNil(t, h)
	assert.True(t, h.HasCoordinates())

	h = FindMapHint([]string{"https://maps.app.goo.gl/abc123"})
	require.NotNil(t, h)
	assert.False(t, h.HasCoordinates())

	assert.Nil(t, FindMapHint(nil))
}
