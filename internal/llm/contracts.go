package llm

import (
	"context"
	"fmt"
	"time"
)

// CompletionRequest is one prompt-in/text-out call. Image is optional and is
// sent alongside the prompt for vision-capable models.
type CompletionRequest struct {
	Task      string // tag used in logs and failure attribution
	Prompt    string
	Image     []byte
	ImageMIME string
	Model     string // overrides the client default when set
}

// Completer is the AI completion collaborator.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// HTTPError is returned for non-2xx provider responses.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
	// RetryAfter is the provider's requested delay, zero when not given.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "…"
	}
	return fmt.Sprintf("non-2xx status: %d from %s: %s", e.StatusCode, e.URL, body)
}

// Retryable reports whether the provider signalled rate limiting or a server fault.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
