// Package app wires the importer's components from a Config. Both binaries
// build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/export"
	"github.com/joseph-ayodele/property-importer/internal/extract"
	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/llm/openai"
	"github.com/joseph-ayodele/property-importer/internal/media"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
	"github.com/joseph-ayodele/property-importer/internal/repository"
	"github.com/joseph-ayodele/property-importer/internal/tenants"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

type App struct {
	Config       *common.Config
	DB           *repository.DB
	Vocab        *vocab.Vocabulary
	Tenants      *tenants.Service
	TenantRepo   repository.TenantRepository
	Runs         repository.ImportRunRepository
	Properties   repository.PropertyRepository
	Orchestrator *pipeline.Orchestrator
	Export       *export.Service

	logger *slog.Logger
}

// OpenDB connects to the configured database.
func OpenDB(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repository.DB, error) {
	return repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
}

// Build opens and migrates the database and assembles the pipeline.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	db, err := OpenDB(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		repository.Close(db, logger)
		return nil, fmt.Errorf("database health: %w", err)
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		repository.Close(db, logger)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a, err := Assemble(db, cfg, logger)
	if err != nil {
		repository.Close(db, logger)
		return nil, err
	}
	return a, nil
}

// Assemble builds every component on top of an open, migrated database.
func Assemble(db *repository.DB, cfg *common.Config, logger *slog.Logger) (*App, error) {
	v, err := vocab.LoadFile(cfg.Acquire.VocabularyFile)
	if err != nil {
		return nil, err
	}
	logger.Info("vocabulary loaded",
		"version", v.Version,
		"categories", len(v.CategoryKeys()),
		"features", len(v.FeatureKeys()),
		"districts", len(v.Districts),
	)

	tenantRepo := repository.NewTenantRepository(db, logger)
	runs := repository.NewImportRunRepository(db, logger)
	props := repository.NewPropertyRepository(db, logger)
	tenantSvc := tenants.NewService(tenantRepo, cfg, logger)

	ai := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
	}, logger)

	acquirer := acquire.NewAcquirer(acquire.Config{
		UserAgent:     cfg.Acquire.UserAgent,
		Timeout:       cfg.Acquire.FetchTimeout,
		ContentBudget: cfg.Acquire.ContentBudget,
		CDNHost:       cfg.Media.GalleryCDNHost,
	}, nil, logger)

	dispatcher, err := extract.NewDispatcher(nil, v, cfg.LLM.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Tenants:    tenantSvc,
		Runs:       runs,
		Properties: props,
		Acquirer:   acquirer,
		Dispatcher: dispatcher,
		Vocab:      v,
		Completers: func(creds tenants.Credentials) llm.Completer {
			return ai.WithAPIKey(creds.AIKey)
		},
		Stores: func(creds tenants.Credentials) media.Store {
			return media.NewCloudflareStore(media.CloudflareConfig{
				BaseURL:     cfg.Media.BaseURL,
				AccountID:   creds.MediaAccountID,
				APIToken:    creds.MediaToken,
				AccountHash: creds.MediaHash,
				Timeout:     cfg.Media.FetchTimeout,
			}, logger)
		},
	}, pipeline.Config{
		MaxImages: cfg.Media.MaxImages,
		Media: media.Config{
			UserAgent:    cfg.Acquire.UserAgent,
			Variant:      cfg.Media.Variant,
			FetchTimeout: cfg.Media.FetchTimeout,
			Concurrency:  cfg.Media.Concurrency,
		},
	}, logger)

	return &App{
		Config:       cfg,
		DB:           db,
		Vocab:        v,
		Tenants:      tenantSvc,
		TenantRepo:   tenantRepo,
		Runs:         runs,
		Properties:   props,
		Orchestrator: orch,
		Export:       export.NewService(props, logger),
		logger:       logger,
	}, nil
}

// Health pings the database.
func (a *App) Health(ctx context.Context) error {
	return repository.HealthCheck(ctx, a.DB, 3*time.Second, a.logger)
}

func (a *App) Close() {
	repository.Close(a.DB, a.logger)
}
