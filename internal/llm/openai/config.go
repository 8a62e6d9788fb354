package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the OpenAI client.
type Config struct {
	APIKey       string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL      string        // default https://api.openai.com/v1
	Model        string        // e.g., "gpt-4o-mini"
	VisionModel  string        // used when a request carries an image; defaults to Model
	Temperature  float32       // 0..2
	Timeout      time.Duration // per call, retries included
	MaxRetries   int           // retries on 429/5xx
	RetryBackoff time.Duration // base delay, doubled per attempt
	JSONMode     bool          // ask for response_format json_object
	HTTPClient   *http.Client
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		logger: logger,
	}
}

// WithAPIKey returns a copy of the client that authenticates with key.
// Used for tenants that bring their own credentials.
func (c *Client) WithAPIKey(key string) *Client {
	if key == "" || key == c.cfg.APIKey {
		return c
	}
	cp := *c
	cp.cfg.APIKey = key
	return &cp
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.cfg.APIKey != ""
}
