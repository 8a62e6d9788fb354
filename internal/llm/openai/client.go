package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/llm"
)

var _ llm.Completer = (*Client)(nil)

// Complete implements llm.Completer against an OpenAI-compatible
// chat/completions endpoint. Rate limiting (429) and 5xx answers are retried
// with exponential backoff and jitter; other failures are returned as is.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := c.cfg.Model
	if len(req.Image) > 0 {
		model = c.cfg.VisionModel
	}
	if req.Model != "" {
		model = req.Model
	}

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"run_id", common.RunIDFromContext(ctx),
		"task", req.Task,
		"model", model,
		"prompt_len", len(req.Prompt),
		"has_image", len(req.Image) > 0,
	)

	body := map[string]any{
		"model":       model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": userContent(req)},
		},
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var raw []byte
	var err error
	for attempt := 0; ; attempt++ {
		raw, err = llm.SendJSON(ctx, c.http, llm.Exchange{
			URL:       endpoint,
			Body:      body,
			Headers:   headers,
			RequestID: rid,
			Attempt:   attempt,
		}, c.logger)
		if err == nil {
			break
		}
		var he *llm.HTTPError
		if !errors.As(err, &he) || !he.Retryable() || attempt >= c.cfg.MaxRetries {
			c.logger.Error("llm.complete.http_error",
				"req_id", rid, "task", req.Task, "error", err, "attempts", attempt+1,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return "", fmt.Errorf("%s completion: %w", req.Task, err)
		}
		wait := max(c.backoff(attempt), he.RetryAfter)
		c.logger.Warn("llm.complete.retry",
			"req_id", rid, "task", req.Task, "status", he.StatusCode, "attempt", attempt+1, "wait_ms", wait.Milliseconds(),
		)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%s completion: %w", req.Task, ctx.Err())
		case <-time.After(wait):
		}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error",
			"req_id", rid, "task", req.Task, "error", err, "raw_bytes", len(raw),
		)
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if cc.Error != nil && cc.Error.Message != "" {
		return "", fmt.Errorf("%s completion: provider error: %s", req.Task, cc.Error.Message)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices", "req_id", rid, "task", req.Task)
		return "", fmt.Errorf("%s completion: no choices in response", req.Task)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s completion: empty content", req.Task)
	}

	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"task", req.Task,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// backoff is base * 2^attempt plus up to half of that again as jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBackoff << uint(attempt)
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

func userContent(req llm.CompletionRequest) any {
	if len(req.Image) == 0 {
		return req.Prompt
	}
	return []map[string]any{
		{"type": "text", "text": req.Prompt},
		{"type": "image_url", "image_url": map[string]any{"url": llm.DataURL(req.Image, req.ImageMIME)}},
	}
}
