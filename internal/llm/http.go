package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/property-importer/internal/common"
)

// maxResponseBytes caps how much of a provider answer is read.
const maxResponseBytes = 8 << 20

// Exchange is one JSON POST to a provider.
type Exchange struct {
	URL     string
	Body    any
	Headers map[string]string
	// RequestID ties the HTTP log lines to the caller's own.
	RequestID string
	Attempt   int
}

// SendJSON posts ex.Body to ex.URL and returns the raw response body. It
// assumes no provider; the caller picks the URL and headers. Non-2xx
// responses come back as *HTTPError together with the body.
func SendJSON(ctx context.Context, client *http.Client, ex Exchange, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	log := logger.With("req_id", ex.RequestID, "run_id", common.RunIDFromContext(ctx), "attempt", ex.Attempt+1)
	start := time.Now()

	bs, err := json.Marshal(ex.Body)
	if err != nil {
		log.Error("llm.http.encode_error", "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ex.URL, bytes.NewReader(bs))
	if err != nil {
		log.Error("llm.http.build_request_error", "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range ex.Headers {
		req.Header.Set(k, v)
	}

	log.Debug("llm.http.request", "url", ex.URL, "content_length", len(bs))
	resp, err := client.Do(req)
	if err != nil {
		log.Error("llm.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn("llm.http.response_body_close_error", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	log.Info("llm.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        ex.URL,
			Body:       string(raw),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return raw, nil
}

// retryAfter reads a Retry-After header given in seconds. Dates are ignored.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
