package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
)

const (
	contentTypeNDJSON   = "application/x-ndjson"
	internalStreamError = "Internal Stream Error"
	maxImagesLimit      = 200
)

// importBody is the JSON body of both import endpoints. Exactly one of url,
// text or screenshot is expected; screenshot wins over text, text over url.
// Screenshots are read for analysis only; galleryImages are the photos the
// caller picked for the listing.
type importBody struct {
	TenantID      string   `json:"tenantId"`
	URL           string   `json:"url"`
	Text          string   `json:"text"`
	Screenshot    string   `json:"screenshot"`
	Screenshots   []string `json:"screenshots"`
	GalleryImages []string `json:"galleryImages"`
	Hints         string   `json:"hints"`
	Model         string   `json:"model"`
	MaxImages     int      `json:"maxImages"`
	MapURL        string   `json:"mapUrl"`
}

func (b importBody) request() (pipeline.Request, error) {
	v := common.NewValidator().Field("maxImages", b.MaxImages, common.IntRange(0, maxImagesLimit))
	for i, u := range b.GalleryImages {
		v.Field("galleryImages["+strconv.Itoa(i)+"]", strings.TrimSpace(u), common.Required, common.HTTPURL)
	}
	if err := v.Err(); err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		TenantID:  strings.TrimSpace(b.TenantID),
		Hints:     b.Hints,
		Model:     strings.TrimSpace(b.Model),
		MaxImages: b.MaxImages,
	}
	src := acquire.Source{MapURL: strings.TrimSpace(b.MapURL)}
	switch {
	case b.Screenshot != "":
		img, err := decodeImage(b.Screenshot)
		if err != nil {
			return pipeline.Request{}, common.InvalidInputError("screenshot must be base64 image data")
		}
		src.Kind, src.Image = acquire.KindScreenshot, img
	case strings.TrimSpace(b.Text) != "":
		src.Kind, src.Text = acquire.KindText, b.Text
	default:
		src.Kind, src.URL = acquire.KindURL, strings.TrimSpace(b.URL)
	}
	for i, s := range b.Screenshots {
		img, err := decodeImage(s)
		if err != nil {
			return pipeline.Request{}, common.InvalidInputError("screenshots[" + strconv.Itoa(i) + "] must be base64 image data")
		}
		req.Screenshots = append(req.Screenshots, img)
	}
	for _, u := range b.GalleryImages {
		req.GalleryImages = append(req.GalleryImages, strings.TrimSpace(u))
	}
	req.Source = src
	return req, nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) (acquire.Image, error) {
	s = strings.TrimSpace(s)
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return acquire.Image{}, errors.New("malformed data URL")
		}
		mime, _, _ = strings.Cut(meta, ";")
		s = data
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return acquire.Image{}, err
	}
	if len(b) == 0 {
		return acquire.Image{}, errors.New("empty image")
	}
	if mime == "" {
		mime = http.DetectContentType(b)
	}
	return acquire.Image{Data: b, MIME: mime}, nil
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (pipeline.Request, error) {
	var body importBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return pipeline.Request{}, common.InvalidInputError("invalid request body")
	}
	return body.request()
}

// streamImport handles POST /api/import-stream.
func (s *Server) streamImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.stream(w, r, req)
}

// streamImportQuery handles GET /api/import-stream for URL sources.
func (s *Server) streamImportQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := importBody{
		TenantID: q.Get("tenantId"),
		URL:      q.Get("url"),
		Hints:    q.Get("hints"),
		Model:    q.Get("model"),
		MapURL:   q.Get("mapUrl"),
	}
	if raw := q.Get("maxImages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, r, common.InvalidInputError("maxImages must be a number"))
			return
		}
		body.MaxImages = n
	}
	req, err := body.request()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.stream(w, r, req)
}

// stream writes every pipeline event as one flushed NDJSON line. It ends
// after the terminal event, or when the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	reqID := middleware.GetReqID(r.Context())
	ctx, cancel := context.WithTimeout(common.WithRequestID(r.Context(), reqID), s.cfg.StreamTimeout)
	defer cancel()

	w.Header().Set("Content-Type", contentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	write := func(ev pipeline.Event) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	var events <-chan pipeline.Event
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("stream.panic", "req_id", reqID, "panic", p)
			_ = write(pipeline.Event{Type: pipeline.EventError, Step: constants.StepError, Message: internalStreamError})
			cancel()
			drain(events)
		}
	}()

	events = s.deps.Importer.Run(ctx, req)
	terminal := false
	for ev := range events {
		if err := write(ev); err != nil {
			s.logger.Warn("stream.client_gone", "req_id", reqID, "run_id", ev.RunID, "error", err)
			cancel()
			drain(events)
			return
		}
		terminal = ev.Terminal()
	}
	if terminal || r.Context().Err() != nil {
		return
	}
	msg := internalStreamError
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = "Import timed out"
	}
	s.logger.Error("stream.incomplete", "req_id", reqID, "reason", msg)
	_ = write(pipeline.Event{Type: pipeline.EventError, Step: constants.StepError, Message: msg})
}

func drain(ch <-chan pipeline.Event) {
	if ch == nil {
		return
	}
	for range ch {
	}
}
