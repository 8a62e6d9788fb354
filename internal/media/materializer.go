package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxImageBytes = 20 << 20

// imageKeys hold a single image URL.
var imageKeys = map[string]bool{
	"image":           true,
	"avatarUrl":       true,
	"backgroundImage": true,
	"icon":            true,
}

// listKey holds a list of image URLs.
const listKey = "images"

// Stats counts what one pass did.
type Stats struct {
	Uploaded int `json:"uploaded"`
	Reused   int `json:"reused"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type Config struct {
	UserAgent    string
	Variant      string
	FetchTimeout time.Duration
	Concurrency  int
	HTTPClient   *http.Client
}

// Materializer copies remote images into a Store. Its URL cache lives as
// long as the Materializer, so one instance is meant to serve one import run.
type Materializer struct {
	store  Store
	cfg    Config
	http   *http.Client
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu       sync.Mutex
	cache    map[string]string
	stats    Stats
	progress func(done, total int)
}

func NewMaterializer(store Store, cfg Config, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Variant == "" {
		cfg.Variant = "public"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Materializer{
		store:  store,
		cfg:    cfg,
		http:   hc,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger: logger,
		cache:  map[string]string{},
	}
}

// OnProgress registers fn to be told after each gallery image settles. Calls
// are serialized and done counts up from 1; fn must not block.
func (m *Materializer) OnProgress(fn func(done, total int)) {
	m.mu.Lock()
	m.progress = fn
	m.mu.Unlock()
}

// Stats returns the totals across every call so far.
func (m *Materializer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Materialize rewrites every remote image reference inside s to a durable
// URL, in place. References that fail keep their original URL.
func (m *Materializer) Materialize(ctx context.Context, s *structpb.Struct) Stats {
	refs := map[string][]*structpb.Value{}
	var order []string
	collect := func(v *structpb.Value) {
		u := v.GetStringValue()
		if !isRemote(u) {
			return
		}
		if _, ok := refs[u]; !ok {
			order = append(order, u)
		}
		refs[u] = append(refs[u], v)
	}
	visitStruct(s, collect)

	resolved := m.resolveAll(ctx, order, nil)
	var st Stats
	for _, u := range order {
		r := resolved[u]
		st.add(r.outcome)
		if r.url == "" || r.url == u {
			continue
		}
		for _, v := range refs[u] {
			v.Kind = &structpb.Value_StringValue{StringValue: r.url}
		}
	}
	return st
}

// MaterializeGallery uploads up to max URLs in order. Failed images keep
// their source URL so the gallery never loses an entry.
func (m *Materializer) MaterializeGallery(ctx context.Context, urls []string, max int) ([]MediaItem, Stats) {
	if max > 0 && len(urls) > max {
		urls = urls[:max]
	}
	var unique []string
	seen := map[string]bool{}
	for _, u := range urls {
		if !seen[u] && isRemote(u) {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	m.mu.Lock()
	progress := m.progress
	m.mu.Unlock()
	resolved := m.resolveAll(ctx, unique, progress)
	items := make([]MediaItem, 0, len(unique))
	var st Stats
	for i, u := range unique {
		r := resolved[u]
		st.add(r.outcome)
		item := MediaItem{URL: u, SourceURL: u, SortOrder: i}
		if r.url != "" {
			item.URL = r.url
			item.StoreID = r.id
		}
		items = append(items, item)
	}
	return items, st
}

type outcome int

const (
	outcomeUploaded outcome = iota
	outcomeReused
	outcomeSkipped
	outcomeFailed
)

func (s *Stats) add(o outcome) {
	switch o {
	case outcomeUploaded:
		s.Uploaded++
	case outcomeReused:
		s.Reused++
	case outcomeSkipped:
		s.Skipped++
	case outcomeFailed:
		s.Failed++
	}
}

type resolution struct {
	url     string
	id      string
	outcome outcome
}

func (m *Materializer) resolveAll(ctx context.Context, urls []string, progress func(done, total int)) map[string]resolution {
	out := make(map[string]resolution, len(urls))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range urls {
		g.Go(func() error {
			r := m.resolve(gctx, u)
			mu.Lock()
			out[u] = r
			if progress != nil {
				progress(len(out), len(urls))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	for _, r := range out {
		m.stats.add(r.outcome)
	}
	m.mu.Unlock()
	return out
}

func (m *Materializer) resolve(ctx context.Context, u string) resolution {
	if m.store.IsDurable(u) {
		return resolution{url: u, id: storeIDFromURL(u), outcome: outcomeSkipped}
	}
	m.mu.Lock()
	if cached, ok := m.cache[u]; ok {
		m.mu.Unlock()
		return resolution{url: cached, id: storeIDFromURL(cached), outcome: outcomeReused}
	}
	m.mu.Unlock()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return resolution{outcome: outcomeFailed}
	}
	defer m.sem.Release(1)

	start := time.Now()
	id, err := m.copy(ctx, u)
	if err != nil {
		m.logger.Warn("media.materialize.failed", "url", u, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return resolution{outcome: outcomeFailed}
	}
	durable := m.store.DeliveryURL(id, m.cfg.Variant)

	m.mu.Lock()
	m.cache[u] = durable
	m.mu.Unlock()

	m.logger.Debug("media.materialize.ok", "url", u, "durable", durable,
		"elapsed_ms", time.Since(start).Milliseconds())
	return resolution{url: durable, id: id, outcome: outcomeUploaded}
}

func (m *Materializer) copy(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("fetch: empty body")
	}
	return m.store.Upload(ctx, data, filenameFor(u))
}

func visitStruct(s *structpb.Struct, fn func(*structpb.Value)) {
	if s == nil {
		return
	}
	for k, v := range s.GetFields() {
		switch {
		case imageKeys[k] && isRemote(v.GetStringValue()):
			fn(v)
		case k == listKey && v.GetListValue() != nil:
			for _, e := range v.GetListValue().GetValues() {
				if isRemote(e.GetStringValue()) {
					fn(e)
				} else {
					visitValue(e, fn)
				}
			}
		default:
			visitValue(v, fn)
		}
	}
}

func visitValue(v *structpb.Value, fn func(*structpb.Value)) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		visitStruct(kind.StructValue, fn)
	case *structpb.Value_ListValue:
		for _, e := range kind.ListValue.GetValues() {
			visitValue(e, fn)
		}
	}
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func filenameFor(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "image.jpg"
	}
	base := path.Base(parsed.Path)
	if base == "" || base == "/" || base == "." || !strings.Contains(base, ".") || len(base) > 100 {
		return "image.jpg"
	}
	return base
}

// storeIDFromURL reads the image ID out of an imagedelivery.net URL.
func storeIDFromURL(u string) string {
	if !strings.HasPrefix(u, deliveryHost) {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(u, deliveryHost), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
