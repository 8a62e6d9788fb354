package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Media    MediaConfig    `yaml:"media"`
	Acquire  AcquireConfig  `yaml:"acquire"`
	Queue    QueueConfig    `yaml:"queue"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr      string        `yaml:"http_addr"`
	GRPCAddr      string        `yaml:"grpc_addr"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	VisionModel string        `yaml:"vision_model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// MediaConfig holds the durable media store settings.
type MediaConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AccountID      string        `yaml:"account_id"`
	APIToken       string        `yaml:"api_token"`
	DeliveryHash   string        `yaml:"delivery_hash"`
	Variant        string        `yaml:"variant"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxImages      int           `yaml:"max_images"`
	Concurrency    int           `yaml:"concurrency"`
	GalleryCDNHost string        `yaml:"gallery_cdn_host"`
}

// AcquireConfig holds source fetching settings.
type AcquireConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ContentBudget  int           `yaml:"content_budget"`
	VocabularyFile string        `yaml:"vocabulary_file"`
}

// QueueConfig sizes the background import queue.
type QueueConfig struct {
	Workers        int           `yaml:"workers"`
	Size           int           `yaml:"size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr:      ":8080",
			GRPCAddr:      ":9090",
			StreamTimeout: 5 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    90 * time.Second,
			MaxRetries: 3,
		},
		Media: MediaConfig{
			BaseURL:        "https://api.cloudflare.com/client/v4",
			Variant:        "public",
			FetchTimeout:   30 * time.Second,
			MaxImages:      50,
			Concurrency:    4,
			GalleryCDNHost: "d1n097d7cl303k.cloudfront.net",
		},
		Acquire: AcquireConfig{
			UserAgent:     defaultUserAgent,
			FetchTimeout:  45 * time.Second,
			ContentBudget: 100000,
		},
		Queue: QueueConfig{
			Workers:        4,
			Size:           256,
			ProcessTimeout: 5 * time.Minute,
		},
	}
}

// LoadConfig builds the configuration: defaults, then the optional YAML file
// named by IMPORTER_CONFIG, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("IMPORTER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError(CodeConfig, fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.StreamTimeout = getEnvAsDuration("STREAM_TIMEOUT", c.Server.StreamTimeout)

	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.VisionModel = getEnv("OPENAI_VISION_MODEL", c.LLM.VisionModel)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getEnvAsInt("OPENAI_MAX_RETRIES", c.LLM.MaxRetries)

	c.Media.BaseURL = getEnv("CLOUDFLARE_API_BASE", c.Media.BaseURL)
	c.Media.AccountID = getEnv("CLOUDFLARE_ACCOUNT_ID", c.Media.AccountID)
	c.Media.APIToken = getEnv("CLOUDFLARE_IMAGES_API_TOKEN", c.Media.APIToken)
	c.Media.DeliveryHash = getEnv("CLOUDFLARE_IMAGES_ACCOUNT_HASH", c.Media.DeliveryHash)
	c.Media.Variant = getEnv("CLOUDFLARE_IMAGES_VARIANT", c.Media.Variant)
	c.Media.FetchTimeout = getEnvAsDuration("MEDIA_FETCH_TIMEOUT", c.Media.FetchTimeout)
	c.Media.MaxImages = getEnvAsInt("MEDIA_MAX_IMAGES", c.Media.MaxImages)
	c.Media.Concurrency = getEnvAsInt("MEDIA_CONCURRENCY", c.Media.Concurrency)
	c.Media.GalleryCDNHost = getEnv("GALLERY_CDN_HOST", c.Media.GalleryCDNHost)

	c.Acquire.UserAgent = getEnv("FETCH_USER_AGENT", c.Acquire.UserAgent)
	c.Acquire.FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", c.Acquire.FetchTimeout)
	c.Acquire.ContentBudget = getEnvAsInt("CONTENT_BUDGET", c.Acquire.ContentBudget)
	c.Acquire.VocabularyFile = getEnv("VOCABULARY_FILE", c.Acquire.VocabularyFile)

	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.Size = getEnvAsInt("QUEUE_SIZE", c.Queue.Size)
	c.Queue.ProcessTimeout = getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", c.Queue.ProcessTimeout)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the settings every binary needs. Credentials are validated
// per run, since tenants may carry their own.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Media.MaxImages <= 0 {
		return NewAppError(CodeConfig, "MEDIA_MAX_IMAGES must be positive", ErrInvalidInput)
	}
	if c.Acquire.ContentBudget <= 0 {
		return NewAppError(CodeConfig, "CONTENT_BUDGET must be positive", ErrInvalidInput)
	}
	return nil
}
