package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type memStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (s *memStore) Upload(_ context.Context, data []byte, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = map[string][]byte{}
	}
	id := fmt.Sprintf("img-%d-%s", len(s.uploads)+1, filename)
	s.uploads[id] = data
	return id, nil
}

func (s *memStore) DeliveryURL(id, variant string) string {
	return "https://imagedelivery.net/hash/" + id + "/" + variant
}

func (s *memStore) IsDurable(u string) bool {
	return strings.HasPrefix(u, "https://imagedelivery.net/hash/")
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = io.WriteString(w, "jpeg-bytes:"+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMaterialize_RewritesNestedReferences(t *testing.T) {
	srv := imageServer(t)
	store := &memStore{}
	m := NewMaterializer(store, Config{Concurrency: 2}, quietLogger())

	durable := "https://imagedelivery.net/hash/existing/public"
	doc, err := structpb.NewStruct(map[string]any{
		"title": "Villa",
		"image": srv.URL + "/front.jpg",
		"blocks": []any{
			map[string]any{"type": "hero", "backgroundImage": srv.URL + "/front.jpg"},
			map[string]any{"type": "team", "members": []any{
				map[string]any{"avatarUrl": srv.URL + "/agent.png"},
			}},
		},
		"images": []any{srv.URL + "/pool.jpg", srv.URL + "/missing.jpg", durable, srv.URL + "/pool.jpg"},
		"icon":   "star",
	})
	require.NoError(t, err)

	st := m.Materialize(context.Background(), doc)
	assert.Equal(t, Stats{Uploaded: 3, Skipped: 1, Failed: 1}, st)
	assert.Equal(t, 3, store.count())

	out := doc.AsMap()
	front := out["image"].(string)
	assert.True(t, store.IsDurable(front))
	blocks := out["blocks"].([]any)
	assert.Equal(t, front, blocks[0].(map[string]any)["backgroundImage"])
	member := blocks[1].(map[string]any)["members"].([]any)[0].(map[string]any)
	assert.True(t, store.IsDurable(member["avatarUrl"].(string)))

	images := out["images"].([]any)
	assert.True(t, store.IsDurable(images[0].(string)))
	assert.Equal(t, srv.URL+"/missing.jpg", images[1])
	assert.Equal(t, durable, images[2])
	assert.Equal(t, images[0], images[3])
	assert.Equal(t, "star", out["icon"])
	assert.Equal(t, "Villa", out["title"])
}

func TestMaterialize_Idempotent(t *testing.T) {
	srv := imageServer(t)
	store := &memStore{}
	m := NewMaterializer(store, Config{}, quietLogger())

	doc, err := structpb.NewStruct(map[string]any{"image": srv.URL + "/front.jpg"})
	require.NoError(t, err)

	m.Materialize(context.Background(), doc)
	first := doc.AsMap()["image"]

	st := m.Materialize(context.Background(), doc)
	assert.Equal(t, Stats{Skipped: 1}, st)
	assert.Equal(t, first, doc.AsMap()["image"])
	assert.Equal(t, 1, store.count())
}

func TestMaterializeGallery(t *testing.T) {
	srv := imageServer(t)
	store := &memStore{}
	m := NewMaterializer(store, Config{Concurrency: 3}, quietLogger())

	urls := []string{
		srv.URL + "/1.jpg",
		srv.URL + "/missing.jpg",
		srv.URL + "/2.jpg",
		srv.URL + "/3.jpg",
	}
	items, st := m.MaterializeGallery(context.Background(), urls, 3)

	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, i, it.SortOrder)
		assert.Equal(t, urls[i], it.SourceURL)
	}
	assert.True(t, items[0].Durable())
	assert.False(t, items[1].Durable())
	assert.Equal(t, urls[1], items[1].URL)
	assert.True(t, items[2].Durable())
	assert.Equal(t, Stats{Uploaded: 2, Failed: 1}, st)

	// the cache serves repeats within the same run
	again, st := m.MaterializeGallery(context.Background(), urls[:1], 10)
	assert.Equal(t, items[0].URL, again[0].URL)
	assert.Equal(t, Stats{Reused: 1}, st)
	assert.Equal(t, 2, store.count())
}

func TestCloudflareStore_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts/acct-1/images/v1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "villa.jpg", hdr.Filename)
		assert.Equal(t, "bytes", string(b))

		_, _ = io.WriteString(w, `{"success":true,"result":{"id":"cf-123"},"errors":[]}`)
	}))
	defer srv.Close()

	s := NewCloudflareStore(CloudflareConfig{
		BaseURL: srv.URL, AccountID: "acct-1", APIToken: "tok", AccountHash: "h4sh",
	}, quietLogger())

	id, err := s.Upload(context.Background(), []byte("bytes"), "villa.jpg")
	require.NoError(t, err)
	assert.Equal(t, "cf-123", id)
	assert.Equal(t, "https://imagedelivery.net/h4sh/cf-123/public", s.DeliveryURL(id, "public"))
	assert.True(t, s.IsDurable("https://imagedelivery.net/h4sh/cf-123/public"))
	assert.False(t, s.IsDurable("https://imagedelivery.net/other/cf-123/public"))
}

func TestCloudflareStore_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"result":null,"errors":[{"code":5400,"message":"Bad image"}]}`)
	}))
	defer srv.Close()

	s := NewCloudflareStore(CloudflareConfig{BaseURL: srv.URL, AccountID: "a", APIToken: "t", AccountHash: "h"}, quietLogger())
	_, err := s.Upload(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5400: Bad image")
}

func TestCloudflareStore_NotConfigured(t *testing.T) {
	s := NewCloudflareStore(CloudflareConfig{}, quietLogger())
	_, err := s.Upload(context.Background(), []byte("x"), "a.jpg")
	assert.Error(t, err)
}

func TestMaterializeGallery_ReportsProgressInOrder(t *testing.T) {
	srv := imageServer(t)
	m := NewMaterializer(&memStore{}, Config{Concurrency: 3}, quietLogger())

	var done []int
	var totals []int
	m.OnProgress(func(n, total int) {
		done = append(done, n)
		totals = append(totals, total)
	})
	urls := []string{
		srv.URL + "/a.jpg",
		"https://imagedelivery.net/hash/kept/public",
		srv.URL + "/missing.jpg",
		srv.URL + "/b.jpg",
	}
	items, st := m.MaterializeGallery(context.Background(), urls, 10)

	require.Len(t, items, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, done)
	assert.Equal(t, []int{4, 4, 4, 4}, totals)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 1, st.Failed)
}
