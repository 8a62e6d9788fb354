package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/normalize"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

// DefaultTaskTimeout bounds a single extraction pass.
const DefaultTaskTimeout = 60 * time.Second

var errEmptyAnswer = errors.New("model returned no usable fields")

// TaskOutcome records how one pass went.
type TaskOutcome struct {
	Task      string   `json:"task"`
	OK        bool     `json:"ok"`
	Strategy  string   `json:"strategy,omitempty"`
	Dropped   []string `json:"dropped,omitempty"`
	Error     string   `json:"error,omitempty"`
	ElapsedMS int64    `json:"elapsedMs"`
}

// Result is the merged record plus per-task bookkeeping.
type Result struct {
	Fields     map[string]any
	Raw        map[string]map[string]any
	Provenance map[string]TaskOutcome
}

// Failed lists the tasks that fell back to their defaults.
func (r *Result) Failed() []string {
	var out []string
	for _, name := range MergeOrder {
		if o, ok := r.Provenance[name]; ok && !o.OK {
			out = append(out, name)
		}
	}
	return out
}

type Dispatcher struct {
	completer llm.Completer
	vocab     *vocab.Vocabulary
	timeout   time.Duration
	logger    *slog.Logger
	schemas   map[string]*jsonschema.Schema
}

// NewDispatcher compiles the per-task schemas once.
func NewDispatcher(completer llm.Completer, v *vocab.Vocabulary, timeout time.Duration, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	d := &Dispatcher{
		completer: completer,
		vocab:     v,
		timeout:   timeout,
		logger:    logger,
		schemas:   map[string]*jsonschema.Schema{},
	}
	for _, t := range Tasks(Input{}, v) {
		s, err := llm.CompileSchema(t.Schema)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t.Name, err)
		}
		d.schemas[t.Name] = s
	}
	return d, nil
}

// WithCompleter returns a copy that sends prompts to c, e.g. with a
// tenant's own API key.
func (d *Dispatcher) WithCompleter(c llm.Completer) *Dispatcher {
	cp := *d
	cp.completer = c
	return &cp
}

// Dispatch runs every task concurrently and merges the answers. It never
// fails: a task that errors, times out or answers with prose contributes its
// default instead.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) *Result {
	tasks := Tasks(in, d.vocab)
	outputs := make([]map[string]any, len(tasks))
	outcomes := make([]TaskOutcome, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		g.Go(func() error {
			outputs[i], outcomes[i] = d.run(gctx, t, in.Model)
			return nil // a task failure must not cancel its siblings
		})
	}
	_ = g.Wait()

	res := &Result{
		Raw:        make(map[string]map[string]any, len(tasks)),
		Provenance: make(map[string]TaskOutcome, len(tasks)),
	}
	for i, t := range tasks {
		res.Raw[t.Name] = outputs[i]
		res.Provenance[t.Name] = outcomes[i]
	}
	res.Fields = Merge(res.Raw, in.Content, d.vocab)
	return res
}

func (d *Dispatcher) run(ctx context.Context, t Task, model string) (map[string]any, TaskOutcome) {
	start := time.Now()
	out := TaskOutcome{Task: t.Name}

	fields, err := d.attempt(ctx, t, model, &out)
	out.ElapsedMS = time.Since(start).Milliseconds()
	if err != nil {
		out.Error = err.Error()
		d.logger.Warn("extract.task.failed", "task", t.Name, "error", err, "elapsed_ms", out.ElapsedMS)
		return t.Default, out
	}
	out.OK = true
	d.logger.Info("extract.task.ok", "task", t.Name, "strategy", out.Strategy, "fields", len(fields),
		"dropped", out.Dropped, "elapsed_ms", out.ElapsedMS)
	return fields, out
}

func (d *Dispatcher) attempt(ctx context.Context, t Task, model string, out *TaskOutcome) (map[string]any, error) {
	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	text, err := d.completer.Complete(tctx, llm.CompletionRequest{
		Task:   t.Name,
		Prompt: t.Prompt,
		Image:  t.Image,
		Model:  model,
	})
	if err != nil {
		return nil, err
	}

	norm := normalize.NormalizeDetailed(text, d.vocab)
	if norm.Err != nil {
		return nil, norm.Err
	}
	out.Strategy = norm.Strategy
	out.Dropped = append(out.Dropped, norm.Dropped...)

	fields := norm.Data
	if schema := d.schemas[t.Name]; schema != nil {
		var dropped []string
		fields, dropped, err = llm.SanitizeAgainstSchema(schema, fields)
		out.Dropped = append(out.Dropped, dropped...)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	if len(fields) == 0 {
		return nil, errEmptyAnswer
	}
	return fields, nil
}
