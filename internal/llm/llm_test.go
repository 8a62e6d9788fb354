package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "€€", Truncate("€€€€", 2))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestJoinPromptSkipsEmpty(t *testing.T) {
	got := JoinPrompt("ROLE: x", "", Section("HINTS", "  "), Section("CONTEXT", "body"))
	assert.Equal(t, "ROLE: x\n\n### CONTEXT\nbody", got)
}

func TestDataURLSniffsPNG(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgowMDAw", DataURL(png, ""))
}

func TestSanitizeAgainstSchemaDropsOffenders(t *testing.T) {
	schema, err := CompileSchema(ObjectSchema(map[string]any{
		"price":    NumericProp(),
		"currency": StringProp(),
		"features": StringArrayProp(),
	}))
	require.NoError(t, err)

	doc := map[string]any{
		"price":    450000.0,
		"currency": map[string]any{"code": "EUR"},
		"features": "pool",
	}
	cleaned, dropped, err := SanitizeAgainstSchema(schema, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"currency", "features"}, dropped)
	assert.Equal(t, map[string]any{"price": 450000.0}, cleaned)
}

func TestSanitizeAgainstSchemaKeepsValid(t *testing.T) {
	schema, err := CompileSchema(ObjectSchema(map[string]any{"goal": EnumProp([]string{"SALE", "RENT"})}))
	require.NoError(t, err)

	cleaned, dropped, err := SanitizeAgainstSchema(schema, map[string]any{"goal": "RENT", "extra": 1})
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, "RENT", cleaned["goal"])
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	s := ObjectSchema(map[string]any{"title": StringProp()}, "title")
	require.NoError(t, ValidateJSONAgainstSchema(s, []byte(`{"title":"Villa"}`)))
	require.Error(t, ValidateJSONAgainstSchema(s, []byte(`{}`)))
}

func TestSendJSON_ReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	raw, err := SendJSON(context.Background(), srv.Client(), Exchange{
		URL:     srv.URL,
		Body:    map[string]string{"q": "x"},
		Headers: map[string]string{"X-Key": "secret"},
	}, nil)
	require.Error(t, err)
	assert.JSONEq(t, `{"error":"slow down"}`, string(raw))

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusTooManyRequests, he.StatusCode)
	assert.True(t, he.Retryable())
	assert.Equal(t, 2*time.Second, he.RetryAfter)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryAfter(" 5 "))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, retryAfter("-1"))
}
