// Package acquire turns a source reference (a listing URL, pasted text or a
// screenshot) into raw content the extraction stage can prompt with.
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/llm"
)

type Kind string

const (
	KindURL        Kind = "url"
	KindText       Kind = "text"
	KindScreenshot Kind = "screenshot"
)

// Image is an uploaded picture, e.g. a screenshot of a listing.
type Image struct {
	Data []byte
	MIME string
}

// Source is what the caller asked to import.
type Source struct {
	Kind   Kind
	URL    string
	Text   string
	Image  Image
	MapURL string
	// Extra screenshots are analysed on a best-effort basis.
	Extra []Image
}

// Validate checks that the field matching Kind is populated.
func (s Source) Validate() error {
	v := common.NewValidator()
	switch s.Kind {
	case KindURL:
		v.Field("url", s.URL, common.Required, common.HTTPURL)
	case KindText:
		v.Check(strings.TrimSpace(s.Text) != "", "text", "is required")
	case KindScreenshot:
		v.Check(len(s.Image.Data) > 0, "screenshot", "is required")
	default:
		v.Check(false, "kind", fmt.Sprintf("unknown source kind %q", s.Kind))
	}
	if s.MapURL != "" {
		v.Field("mapUrl", s.MapURL, common.HTTPURL)
	}
	return v.Err()
}

// Ref is the canonical identity of the source: lowercased host and path for
// URLs, a content hash otherwise.
func (s Source) Ref() string {
	switch s.Kind {
	case KindURL:
		u, err := url.Parse(strings.TrimSpace(s.URL))
		if err != nil || u.Host == "" {
			return strings.ToLower(strings.TrimSpace(s.URL))
		}
		return strings.ToLower(u.Host + strings.TrimSuffix(u.Path, "/"))
	case KindText:
		return "text:" + digest([]byte(strings.TrimSpace(s.Text)))
	default:
		return "screenshot:" + digest(s.Image.Data)
	}
}

// Domain is the lowercased host of a URL source without a leading "www.".
func (s Source) Domain() string {
	if s.Kind != KindURL {
		return ""
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Content is the acquired material for one source.
type Content struct {
	Kind       Kind
	SourceRef  string
	SourceURL  string
	Title      string
	Cleaned    string
	Markdown   string
	Images     []string
	VisionText string
	VisionData map[string]any
	MapHint    *MapHint
}

// PromptText is the best textual rendering of the content for prompts.
func (c *Content) PromptText() string {
	if c.Markdown != "" {
		return c.Markdown
	}
	return c.Cleaned
}

// Empty reports whether nothing usable was acquired.
func (c *Content) Empty() bool {
	return strings.TrimSpace(c.Cleaned) == "" && strings.TrimSpace(c.Markdown) == "" &&
		strings.TrimSpace(c.VisionText) == "" && len(c.Images) == 0
}

// Config tunes the acquirer.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	ContentBudget int
	CDNHost       string
	HTTPClient    *http.Client
}

type Acquirer struct {
	cfg    Config
	http   *http.Client
	vision llm.Completer
	logger *slog.Logger
}

// NewAcquirer builds an Acquirer. vision may be nil when screenshots are not used.
func NewAcquirer(cfg Config, vision llm.Completer, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.ContentBudget <= 0 {
		cfg.ContentBudget = 100000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; property-importer/1.0)"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Acquirer{cfg: cfg, http: hc, vision: vision, logger: logger}
}

// WithVision returns a copy that uses c for screenshot transcription.
func (a *Acquirer) WithVision(c llm.Completer) *Acquirer {
	cp := *a
	cp.vision = c
	return &cp
}

// Acquire fetches and cleans the source. Only a failure of the primary
// fetch (or of the primary screenshot transcription) is returned as an
// error; secondary lookups are logged and skipped.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (*Content, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		content *Content
		err     error
	)
	switch src.Kind {
	case KindURL:
		content, err = a.acquireURL(ctx, src.URL)
	case KindText:
		content = a.acquireText(src.Text)
	case KindScreenshot:
		content, err = a.acquireScreenshot(ctx, src.Image)
	}
	if err != nil {
		a.logger.Error("acquire.failed", "kind", src.Kind, "error", err)
		return nil, err
	}
	content.Kind = src.Kind
	content.SourceRef = src.Ref()

	for i, img := range src.Extra {
		data, text, verr := a.transcribe(ctx, img)
		if verr != nil {
			a.logger.Warn("acquire.vision.extra_failed", "index", i, "error", verr)
			continue
		}
		content.VisionText = joinNonEmpty(content.VisionText, text)
		if content.VisionData == nil {
			content.VisionData = map[string]any{}
		}
		for k, v := range data {
			if _, ok := content.VisionData[k]; !ok {
				content.VisionData[k] = v
			}
		}
	}

	if src.MapURL != "" {
		if hint, ok := ParseMapURL(src.MapURL); ok {
			content.MapHint = hint
		} else {
			content.MapHint = &MapHint{URL: src.MapURL}
		}
	}

	a.logger.Info("acquire.ok",
		"kind", src.Kind,
		"ref", content.SourceRef,
		"chars", len(content.Cleaned),
		"images", len(content.Images),
		"has_map", content.MapHint != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (a *Acquirer) acquireText(text string) *Content {
	text = truncate(strings.TrimSpace(text), a.cfg.ContentBudget)
	c := &Content{Cleaned: text, Markdown: text}
	c.Images = DedupeGallery(ScanImageURLs(text), a.cfg.CDNHost)
	c.MapHint = FindMapHint(ScanURLs(text))
	return c
}

func (a *Acquirer) acquireScreenshot(ctx context.Context, img Image) (*Content, error) {
	data, text, err := a.transcribe(ctx, img)
	if err != nil {
		return nil, common.AcquisitionError("screenshot transcription failed", err)
	}
	return &Content{Cleaned: text, VisionText: text, VisionData: data}, nil
}

var errNoVision = errors.New("no vision completer configured")

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}

func truncate(s string, n int) string {
	return llm.Truncate(s, n)
}
