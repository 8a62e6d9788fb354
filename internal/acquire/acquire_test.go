package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/llm"
)

const listingPage = `<!doctype html>
<html>
<head>
  <title>Fallback title</title>
  <meta property="og:title" content="Sea view villa in Tala">
  <meta property="og:image" content="https://images.example.org/villa/main-photo.jpg">
  <script>tracking()</script>
</head>
<body>
  <nav><a href="/">Home</a></nav>
  <div class="cookie-banner">Accept cookies</div>
  <div class="listing-details">
    <h1>3 bedroom villa</h1>
    <p>Price: €450,000. Private pool.</p>
    <img class="logo" src="/static/logo.png">
    <img src="/photos/villa-1.jpg" srcset="/photos/villa-1.jpg 1x, /photos/villa-2.webp 2x">
    <a href="https://www.google.com/maps/place/Villa/@34.7768,32.4245,15z">Map</a>
  </div>
  <footer>Copyright agency</footer>
</body>
</html>`

func newTestAcquirer(vision llm.Completer) *Acquirer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAcquirer(Config{ContentBudget: 100000, CDNHost: "cdn.example.net"}, vision, logger)
}

func TestAcquireURL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, listingPage)
	}))
	defer srv.Close()

	c, err := newTestAcquirer(nil).Acquire(context.Background(), Source{Kind: KindURL, URL: srv.URL + "/listing/42"})
	require.NoError(t, err)

	assert.NotEmpty(t, gotUA)
	assert.Equal(t, KindURL, c.Kind)
	assert.Equal(t, "Sea view villa in Tala", c.Title)
	assert.Contains(t, c.Cleaned, "3 bedroom villa")
	assert.NotContains(t, c.Cleaned, "tracking()")
	assert.NotContains(t, c.Cleaned, "Accept cookies")
	assert.NotContains(t, c.Cleaned, "Copyright agency")
	assert.Contains(t, c.Markdown, "3 bedroom villa")

	assert.Contains(t, c.Images, "https://images.example.org/villa/main-photo.jpg")
	assert.Contains(t, c.Images, srv.URL+"/photos/villa-1.jpg")
	assert.Contains(t, c.Images, srv.URL+"/photos/villa-2.webp")
	for _, img := range c.Images {
		assert.NotContains(t, img, "logo")
	}

	require.NotNil(t, c.MapHint)
	require.True(t, c.MapHint.HasCoordinates())
	assert.InDelta(t, 34.7768, *c.MapHint.Lat, 1e-9)
	assert.InDelta(t, 32.4245, *c.MapHint.Lng, 1e-9)
}

func TestAcquireURL_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestAcquirer(nil).Acquire(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, common.CodeAcquisitionFailed, common.CodeOf(err))
}

func TestAcquireURL_Charset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body><p>Caf\xe9 by the sea</p></body></html>"))
	}))
	defer srv.Close()

	c, err := newTestAcquirer(nil).Acquire(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, c.Cleaned, "Café by the sea")
}

func TestAcquireURL_EmptyBodyFallsBackToDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><head><title>Only a title</title></head><body></body></html>")
	}))
	defer srv.Close()

	c, err := newTestAcquirer(nil).Acquire(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, c.Cleaned, "Only a title")
}

func TestAcquireURL_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body><p>"+strings.Repeat("a", 5000)+"</p></body></html>")
	}))
	defer srv.Close()

	a := NewAcquirer(Config{ContentBudget: 1000}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := a.Acquire(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(c.Cleaned)), 1000)
	assert.LessOrEqual(t, len([]rune(c.Markdown)), 1000)
}

func TestAcquireText(t *testing.T) {
	text := "Lovely apartment, 2 beds.\nPhotos: https://images.example.org/apt/living-room.jpg\n" +
		"Location: https://maps.google.com/?q=34.6841,33.0379"
	c, err := newTestAcquirer(nil).Acquire(context.Background(), Source{Kind: KindText, Text: text})
	require.NoError(t, err)

	assert.Equal(t, text, c.Cleaned)
	assert.Equal(t, []string{"https://images.example.org/apt/living-room.jpg"}, c.Images)
	require.NotNil(t, c.MapHint)
	assert.True(t, c.MapHint.HasCoordinates())
	assert.True(t, strings.HasPrefix(c.SourceRef, "text:"))
}

func TestAcquireScreenshot(t *testing.T) {
	vision := llm.CompleterFunc(func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		assert.Equal(t, "vision", req.Task)
		assert.NotEmpty(t, req.Image)
		return "___JSON_START___{\"Price\":\"€1,200\",\"Bedrooms\":\"2\"}___JSON_END___", nil
	})
	c, err := newTestAcquirer(vision).Acquire(context.Background(), Source{
		Kind:  KindScreenshot,
		Image: Image{Data: []byte("\x89PNG\r\n\x1a\nfake")},
	})
	require.NoError(t, err)
	assert.Equal(t, "€1,200", c.VisionData["Price"])
	assert.Equal(t, "Bedrooms: 2\nPrice: €1,200", c.VisionText)
	assert.Equal(t, c.VisionText, c.Cleaned)
}

func TestAcquireScreenshot_VisionFailure(t *testing.T) {
	vision := llm.CompleterFunc(func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", errors.New("model unavailable")
	})
	_, err := newTestAcquirer(vision).Acquire(context.Background(), Source{
		Kind:  KindScreenshot,
		Image: Image{Data: []byte("img")},
	})
	require.Error(t, err)
	assert.Equal(t, common.CodeAcquisitionFailed, common.CodeOf(err))
}

func TestAcquire_ExtraScreenshotFailureIsNotFatal(t *testing.T) {
	vision := llm.CompleterFunc(func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", errors.New("model unavailable")
	})
	c, err := newTestAcquirer(vision).Acquire(context.Background(), Source{
		Kind:  KindText,
		Text:  "Villa for sale in Peyia",
		Extra: []Image{{Data: []byte("img")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Villa for sale in Peyia", c.Cleaned)
	assert.Empty(t, c.VisionText)
}

func TestSourceValidate(t *testing.T) {
	assert.Error(t, Source{Kind: KindURL}.Validate())
	assert.Error(t, Source{Kind: KindURL, URL: "ftp://example.com/x"}.Validate())
	assert.Error(t, Source{Kind: KindText, Text: "   "}.Validate())
	assert.Error(t, Source{Kind: "fax"}.Validate())
	assert.NoError(t, Source{Kind: KindURL, URL: "https://example.com/listing"}.Validate())
}

func TestSourceRef(t *testing.T) {
	s := Source{Kind: KindURL, URL: "https://WWW.Example.com/Listing/42/?utm_source=x"}
	assert.Equal(t, "www.example.com/listing/42", s.Ref())
	assert.Equal(t, "example.com", s.Domain())

	a := Source{Kind: KindText, Text: "same"}
	b := Source{Kind: KindText, Text: " same "}
	assert.Equal(t, a.Ref(), b.Ref())
}
