package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/llm"
)

const deliveryHost = "https://imagedelivery.net/"

// CloudflareConfig holds Cloudflare Images credentials.
type CloudflareConfig struct {
	BaseURL     string // e.g. https://api.cloudflare.com/client/v4
	AccountID   string
	APIToken    string
	AccountHash string // delivery hash used in imagedelivery.net URLs
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Configured reports whether uploads can be attempted.
func (c CloudflareConfig) Configured() bool {
	return c.AccountID != "" && c.APIToken != "" && c.AccountHash != ""
}

type CloudflareStore struct {
	cfg    CloudflareConfig
	http   *http.Client
	logger *slog.Logger
}

var _ Store = (*CloudflareStore)(nil)

func NewCloudflareStore(cfg CloudflareConfig, logger *slog.Logger) *CloudflareStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudflare.com/client/v4"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &CloudflareStore{cfg: cfg, http: hc, logger: logger}
}

type cfResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID string `json:"id"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *CloudflareStore) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if !s.cfg.Configured() {
		return "", errors.New("cloudflare images: missing account id, token or delivery hash")
	}
	if filename == "" {
		filename = "image.jpg"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/images/v1", s.cfg.BaseURL, s.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)

	reqID := uuid.New().String()
	start := time.Now()
	s.logger.Debug("media.upload.start", "req_id", reqID, "run_id", common.RunIDFromContext(ctx), "filename", filename, "bytes", len(data))

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("media.upload.http_error", "req_id", reqID, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", &llm.HTTPError{StatusCode: resp.StatusCode, URL: endpoint, Body: string(raw)}
	}

	var out cfResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !out.Success || out.Result.ID == "" {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, fmt.Sprintf("%d: %s", e.Code, e.Message))
		}
		return "", fmt.Errorf("cloudflare images rejected upload: %s", strings.Join(msgs, "; "))
	}

	s.logger.Debug("media.upload.ok", "req_id", reqID, "id", out.Result.ID,
		"elapsed_ms", time.Since(start).Milliseconds())
	return out.Result.ID, nil
}

func (s *CloudflareStore) DeliveryURL(id, variant string) string {
	if variant == "" {
		variant = "public"
	}
	return deliveryHost + s.cfg.AccountHash + "/" + id + "/" + variant
}

func (s *CloudflareStore) IsDurable(u string) bool {
	if s.cfg.AccountHash == "" {
		return strings.HasPrefix(u, deliveryHost)
	}
	return strings.HasPrefix(u, deliveryHost+s.cfg.AccountHash+"/")
}
