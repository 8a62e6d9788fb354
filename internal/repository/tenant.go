package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
)

const (
	tableTenants     = "tenants"
	tableScrapeRules = "scrape_rules"
)

var tenantColumns = []string{
	"id", "name", "creator_name", "ai_api_key", "ai_model",
	"media_account_id", "media_api_token", "media_delivery_hash", "created_at", "updated_at",
}

type TenantRepository interface {
	Get(ctx context.Context, id string) (*entity.Tenant, error)
	Upsert(ctx context.Context, t *entity.Tenant) error
	// ScrapeRules returns the saved rules for a domain, oldest first.
	ScrapeRules(ctx context.Context, tenantID, domain string) ([]entity.ScrapeRule, error)
	AddScrapeRule(ctx context.Context, rule *entity.ScrapeRule) error
}

type tenantRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewTenantRepository(db *DB, logger *slog.Logger) TenantRepository {
	return &tenantRepository{db: db, logger: logger}
}

func (r *tenantRepository) Get(ctx context.Context, id string) (*entity.Tenant, error) {
	b := r.db.builder()
	q, args := b.Select(tenantColumns...).
		From(b.Table(tableTenants)).
		Where(entsql.EQ("id", id)).
		Query()
	rows, err := query(ctx, r.db.drv, q, args)
	if err != nil {
		r.logger.Error("failed to get tenant", "tenant_id", id, "error", err)
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.NewAppError(common.CodeNotFound, fmt.Sprintf("tenant %s not found", id), common.ErrNotFound)
	}
	var t entity.Tenant
	if err := rows.Scan(&t.ID, &t.Name, &t.CreatorName, &t.AIAPIKey, &t.AIModel,
		&t.MediaAccountID, &t.MediaAPIToken, &t.MediaDeliveryHash, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

func (r *tenantRepository) Upsert(ctx context.Context, t *entity.Tenant) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	q, args := r.db.builder().Insert(tableTenants).
		Columns(tenantColumns...).
		Values(t.ID, t.Name, t.CreatorName, t.AIAPIKey, t.AIModel,
			t.MediaAccountID, t.MediaAPIToken, t.MediaDeliveryHash, t.CreatedAt, t.UpdatedAt).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range tenantColumns[1:] {
					if c != "created_at" {
						u.SetExcluded(c)
					}
				}
			}),
		).
		Query()
	if err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to upsert tenant", "tenant_id", t.ID, "error", err)
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

func (r *tenantRepository) ScrapeRules(ctx context.Context, tenantID, domain string) ([]entity.ScrapeRule, error) {
	b := r.db.builder()
	sel := b.Select("id", "tenant_id", "domain", "rule", "created_at").From(b.Table(tableScrapeRules))
	q, args := sel.Where(entsql.And(
		entsql.EQ("tenant_id", tenantID),
		entsql.EQ("domain", strings.ToLower(domain)),
	)).OrderBy(sel.C("created_at")).Query()
	rows, err := query(ctx, r.db.drv, q, args)
	if err != nil {
		r.logger.Error("failed to load scrape rules", "tenant_id", tenantID, "domain", domain, "error", err)
		return nil, fmt.Errorf("query scrape rules: %w", err)
	}
	defer rows.Close()

	var out []entity.ScrapeRule
	for rows.Next() {
		var sr entity.ScrapeRule
		if err := rows.Scan(&sr.ID, &sr.TenantID, &sr.Domain, &sr.Rule, &sr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scrape rule: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (r *tenantRepository) AddScrapeRule(ctx context.Context, rule *entity.ScrapeRule) error {
	rule.Rule = strings.TrimSpace(rule.Rule)
	if rule.Rule == "" {
		return common.InvalidInputError("rule must not be empty")
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.Domain = strings.TrimPrefix(strings.ToLower(rule.Domain), "www.")
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	q, args := r.db.builder().Insert(tableScrapeRules).
		Columns("id", "tenant_id", "domain", "rule", "created_at").
		Values(rule.ID, rule.TenantID, rule.Domain, rule.Rule, rule.CreatedAt).
		Query()
	if err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to add scrape rule", "tenant_id", rule.TenantID, "domain", rule.Domain, "error", err)
		return fmt.Errorf("add scrape rule: %w", err)
	}
	return nil
}
