// Package pipeline drives one property import from source to persisted draft
// and reports its progress as an ordered stream of events.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
	"github.com/joseph-ayodele/property-importer/internal/extract"
	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/media"
	"github.com/joseph-ayodele/property-importer/internal/repository"
	"github.com/joseph-ayodele/property-importer/internal/tenants"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

var errCancelled = errors.New("import abandoned by the caller")

// terminalGrace bounds how long a saved run waits for its consumer to take
// the terminal event after ctx is done.
const terminalGrace = 5 * time.Second

// TenantResolver is the slice of tenants.Service the orchestrator needs.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (*tenants.Tenant, error)
	ScrapeRules(ctx context.Context, tenantID, domain string) []string
}

// CompleterFactory returns the AI client to use with a tenant's credentials.
type CompleterFactory func(creds tenants.Credentials) llm.Completer

// StoreFactory returns the media store to use with a tenant's credentials.
type StoreFactory func(creds tenants.Credentials) media.Store

type Config struct {
	MaxImages       int
	PersistTimeout  time.Duration
	LocationTimeout time.Duration
	Media           media.Config
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Tenants    TenantResolver
	Runs       repository.ImportRunRepository
	Properties repository.PropertyRepository
	Acquirer   *acquire.Acquirer
	Dispatcher *extract.Dispatcher
	Vocab      *vocab.Vocabulary
	Completers CompleterFactory
	Stores     StoreFactory
}

type Orchestrator struct {
	Deps
	cfg    Config
	locks  *KeyedLock
	logger *slog.Logger
}

func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = constants.DefaultMaxImage
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 30 * time.Second
	}
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = 60 * time.Second
	}
	return &Orchestrator{Deps: deps, cfg: cfg, locks: NewKeyedLock(), logger: logger}
}

// Request is one import.
type Request struct {
	// RunID is generated when empty.
	RunID    string
	TenantID string
	Source   acquire.Source
	Hints    string
	Model    string
	// MaxImages caps the gallery; zero means the configured default.
	MaxImages int
	// Screenshots are extra analysis images for text imports.
	Screenshots []acquire.Image
	// GalleryImages are image URLs chosen by the caller. They lead the
	// gallery, ahead of any found in the source.
	GalleryImages []string
}

// NewRunID returns a sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// Run starts the import and returns its event stream. The channel delivers
// events in order and is closed after the terminal event. A consumer that
// stops reading must cancel ctx; the run then stops at the next step. Once
// PERSISTING has started the write completes regardless, and the terminal
// event is still offered for up to terminalGrace.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	if req.RunID == "" {
		req.RunID = NewRunID()
	}
	ctx = common.WithRunID(common.WithTenantID(ctx, req.TenantID), req.RunID)
	logger := o.logger.With("run_id", req.RunID, "tenant_id", req.TenantID)
	if id := common.RequestIDFromContext(ctx); id != "" {
		logger = logger.With("req_id", id)
	}
	out := make(chan Event)
	r := &run{
		o:          o,
		ctx:        ctx,
		req:        req,
		out:        out,
		provenance: map[string]any{},
		logger:     logger,
	}
	go func() {
		defer close(out)
		r.execute()
	}()
	return out
}

// Collect runs an import to completion and returns its terminal event.
func (o *Orchestrator) Collect(ctx context.Context, req Request) Event {
	var last Event
	for ev := range o.Run(ctx, req) {
		last = ev
	}
	return last
}

// run is the state of one execution.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	req    Request
	out    chan<- Event
	logger *slog.Logger

	step       constants.Step
	recorded   bool
	persisting bool
	gone       bool
	provenance map[string]any
}

func (r *run) execute() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("pipeline.panic", "step", r.step, "panic", p)
			r.fail(fmt.Errorf("internal error: %v", p))
		}
	}()
	prop, err := r.steps()
	if err != nil {
		r.fail(err)
		return
	}
	r.succeed(prop)
}

func (r *run) steps() (*entity.Property, error) {
	req := r.req
	src := req.Source
	src.Extra = append(append([]acquire.Image(nil), src.Extra...), req.Screenshots...)

	if err := r.transition(constants.StepInit, "Starting import"); err != nil {
		return nil, err
	}
	r.start(src)
	if err := src.Validate(); err != nil {
		return nil, err
	}
	tenant, err := r.o.Tenants.Resolve(r.ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	creds := tenant.Credentials
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	key := lockKey(tenant.ID, src.Ref())
	if !r.o.locks.TryLock(key) {
		return nil, common.NewAppError(common.CodeImportInProgress, "An import of this source is already running", nil)
	}
	defer r.o.locks.Unlock(key)

	rules := r.o.Tenants.ScrapeRules(r.ctx, tenant.ID, src.Domain())
	completer := r.o.Completers(creds)
	model := req.Model
	if model == "" {
		model = creds.Model
	}

	if err := r.transition(constants.StepSourceAcquisition, sourceMessage(src)); err != nil {
		return nil, err
	}
	content, err := r.o.Acquirer.WithVision(completer).Acquire(r.ctx, src)
	if err != nil {
		if common.CodeOf(err) == "" {
			err = common.AcquisitionError("Failed to read the source", err)
		}
		return nil, err
	}
	if content.Empty() {
		return nil, common.NewAppError(common.CodeEmptyContent, "No content could be read from the source", nil)
	}

	if err := r.transition(constants.StepAIExtraction, "Extracting property details"); err != nil {
		return nil, err
	}
	var image []byte
	if src.Kind == acquire.KindScreenshot {
		image = src.Image.Data
	}
	res := r.o.Dispatcher.WithCompleter(completer).Dispatch(r.ctx, extract.Input{
		Content: content,
		Hints:   extract.FormatHints(req.Hints, rules),
		Model:   model,
		Image:   image,
	})
	fields := res.Fields
	r.provenance["tasks"] = res.Provenance
	if failed := res.Failed(); len(failed) > 0 {
		r.logger.Warn("pipeline.extract.partial", "code", common.CodeExtractionTask, "failed_tasks", failed)
	}

	if needsLocation(fields) {
		if err := r.transition(constants.StepLocationResolution, "Resolving address from map link"); err != nil {
			return nil, err
		}
		if err := r.o.resolveLocation(r.ctx, completer, model, fields); err != nil {
			r.logger.Warn("pipeline.location.failed", "code", common.CodeOf(err), "error", err)
			r.provenance["location"] = err.Error()
		}
	}

	gallery := galleryURLs(req.GalleryImages, stringList(fields["images"]))
	if err := r.transition(constants.StepMediaProcessing, fmt.Sprintf("Processing %d images", min(len(gallery), r.maxImages()))); err != nil {
		return nil, err
	}
	items := r.processMedia(fields, gallery, r.o.Stores(creds))

	if err := r.transition(constants.StepPersisting, "Saving draft property"); err != nil {
		return nil, err
	}
	r.persisting = true
	extracted, err := json.Marshal(map[string]any{
		"fields":     fields,
		"tasks":      res.Raw,
		"provenance": r.provenance,
	})
	if err != nil {
		extracted = []byte("{}")
	}
	prop := buildDraft(draftInput{
		Fields:    fields,
		Tenant:    tenant,
		Content:   content,
		Gallery:   items,
		RunID:     req.RunID,
		Extracted: extracted,
		Now:       time.Now(),
	}, r.o.Vocab)

	// the write outlives the caller so a record is never half saved
	pctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.o.cfg.PersistTimeout)
	defer cancel()
	if _, err := r.o.Properties.CreateProperty(pctx, prop); err != nil {
		if common.CodeOf(err) == "" {
			err = common.PersistenceError("Failed to save the property", err)
		}
		return nil, err
	}
	return prop, nil
}

func (r *run) maxImages() int {
	if r.req.MaxImages > 0 {
		return r.req.MaxImages
	}
	return r.o.cfg.MaxImages
}

// processMedia materializes the gallery, then any other image fields in the
// record. Failures keep the source URL.
func (r *run) processMedia(fields map[string]any, gallery []string, store media.Store) []media.MediaItem {
	m := media.NewMaterializer(store, r.o.cfg.Media, r.logger)

	// only this goroutine writes to out; uploads report through progress
	progress := make(chan [2]int, len(gallery))
	m.OnProgress(func(done, total int) { progress <- [2]int{done, total} })
	var items []media.MediaItem
	go func() {
		defer close(progress)
		items, _ = m.MaterializeGallery(r.ctx, gallery, r.maxImages())
	}()
	for p := range progress {
		r.emit(Event{
			Type:    EventStatus,
			Step:    constants.StepMediaProcessing,
			Message: fmt.Sprintf("Uploading image %d/%d", p[0], p[1]),
		})
	}
	urls := make([]any, 0, len(items))
	for _, it := range items {
		urls = append(urls, it.URL)
	}

	// the gallery is done; the record pass covers every other image field
	delete(fields, "images")
	rec, err := structpb.NewStruct(fields)
	if err != nil {
		r.logger.Warn("pipeline.media.record_skipped", "error", err)
	} else {
		m.Materialize(r.ctx, rec)
		for k, v := range rec.AsMap() {
			fields[k] = v
		}
	}
	fields["images"] = urls

	st := m.Stats()
	r.provenance["media"] = st
	if st.Failed > 0 {
		r.logger.Warn("pipeline.media.partial", "code", common.CodeMediaFailed, "failed", st.Failed, "uploaded", st.Uploaded)
	}
	return items
}

// transition moves to step, records it and tells the caller before the step
// does any work.
func (r *run) transition(step constants.Step, message string) error {
	if err := canTransition(r.step, step); err != nil {
		return err
	}
	r.step = step
	r.logger.Info("pipeline.step", "step", step)
	if r.recorded {
		if err := r.o.Runs.Advance(context.WithoutCancel(r.ctx), r.req.RunID, string(step)); err != nil {
			r.logger.Warn("pipeline.run.advance_failed", "step", step, "error", err)
		}
	}
	if !r.emit(Event{Type: EventStatus, Step: step, Message: message}) {
		return errCancelled
	}
	return nil
}

// emit delivers ev unless the caller has gone away.
func (r *run) emit(ev Event) bool {
	if r.gone {
		return false
	}
	ev.RunID = r.req.RunID
	select {
	case <-r.ctx.Done():
		r.gone = true
		return false
	default:
	}
	select {
	case r.out <- ev:
		return true
	case <-r.ctx.Done():
		r.gone = true
		return false
	}
}

func (r *run) start(src acquire.Source) {
	err := r.o.Runs.Start(context.WithoutCancel(r.ctx), &entity.ImportRun{
		ID:         r.req.RunID,
		TenantID:   r.req.TenantID,
		SourceKind: string(src.Kind),
		SourceRef:  src.Ref(),
		Status:     string(constants.RunStatusRunning),
		Step:       string(r.step),
	})
	if err != nil {
		r.logger.Warn("pipeline.run.start_failed", "error", err)
		return
	}
	r.recorded = true
}

func (r *run) finish(out entity.RunOutcome) {
	if !r.recorded {
		return
	}
	if b, err := json.Marshal(r.provenance); err == nil {
		out.Provenance = b
	}
	if err := r.o.Runs.Finish(context.WithoutCancel(r.ctx), r.req.RunID, out); err != nil {
		r.logger.Warn("pipeline.run.finish_failed", "status", out.Status, "error", err)
	}
}

func (r *run) succeed(p *entity.Property) {
	r.step = constants.StepDone
	r.finish(entity.RunOutcome{
		Status:     string(constants.RunStatusSucceeded),
		Step:       string(constants.StepDone),
		PropertyID: &p.ID,
	})
	r.logger.Info("pipeline.done", "property_id", p.ID, "media", len(p.Media))
	r.deliver(Event{
		Type:       EventResult,
		Step:       constants.StepDone,
		Message:    "Import complete",
		Data:       p,
		PropertyID: p.ID.String(),
	})
}

func (r *run) fail(err error) {
	status := constants.RunStatusFailed
	if errors.Is(err, errCancelled) || (r.ctx.Err() != nil && !r.persisting) {
		status = constants.RunStatusAbandoned
	}
	code := common.CodeOf(err)
	msg := common.MessageOf(err)
	failedAt := r.step
	if canTransition(r.step, constants.StepError) == nil {
		r.step = constants.StepError
	}

	r.finish(entity.RunOutcome{
		Status:       string(status),
		Step:         string(failedAt),
		ErrorCode:    code,
		ErrorMessage: msg,
	})
	r.logger.Error("pipeline.failed", "step", failedAt, "status", status, "code", code, "error", err)
	r.deliver(Event{Type: EventError, Step: constants.StepError, Message: msg, Code: code})
}

// deliver sends a terminal event. Before PERSISTING it is a plain emit. After
// that the record exists, so a done ctx (a stream deadline, say) must not hide
// the outcome: the event waits up to terminalGrace for a reader.
func (r *run) deliver(ev Event) {
	if !r.persisting {
		r.emit(ev)
		return
	}
	if r.gone {
		return
	}
	ev.RunID = r.req.RunID
	t := time.NewTimer(terminalGrace)
	defer t.Stop()
	select {
	case r.out <- ev:
	case <-t.C:
		r.gone = true
		r.logger.Warn("pipeline.terminal_dropped", "type", ev.Type, "step", ev.Step)
	}
}

func sourceMessage(src acquire.Source) string {
	switch src.Kind {
	case acquire.KindURL:
		return "Fetching " + src.URL
	case acquire.KindScreenshot:
		return "Reading screenshot"
	default:
		return "Reading pasted text"
	}
}

// galleryURLs joins the caller's gallery and the found images, first
// occurrence wins.
func galleryURLs(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range lists {
		for _, u := range l {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, t...)
	}
	return out
}
