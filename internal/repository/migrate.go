package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"entgo.io/ent/dialect"
)

// column types per dialect
var ddlTypes = map[string]map[string]string{
	dialect.Postgres: {"TS": "TIMESTAMPTZ", "FLOAT": "DOUBLE PRECISION", "BOOL": "BOOLEAN"},
	dialect.SQLite:   {"TS": "DATETIME", "FLOAT": "REAL", "BOOL": "BOOLEAN"},
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		creator_name TEXT NOT NULL DEFAULT '',
		ai_api_key TEXT NOT NULL DEFAULT '',
		ai_model TEXT NOT NULL DEFAULT '',
		media_account_id TEXT NOT NULL DEFAULT '',
		media_api_token TEXT NOT NULL DEFAULT '',
		media_delivery_hash TEXT NOT NULL DEFAULT '',
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_rules (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		domain TEXT NOT NULL,
		rule TEXT NOT NULL,
		created_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS scrape_rules_tenant_domain ON scrape_rules (tenant_id, domain)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		type TEXT NOT NULL,
		goal TEXT NOT NULL,
		status TEXT NOT NULL,
		publication_status TEXT NOT NULL,
		property_condition TEXT NOT NULL DEFAULT '',
		price {{FLOAT}},
		currency TEXT NOT NULL DEFAULT 'EUR',
		communal_fees {{FLOAT}},
		price_includes_communal_fees {{BOOL}},
		deposit TEXT NOT NULL DEFAULT '',
		deposit_value {{FLOAT}},
		commission TEXT NOT NULL DEFAULT '',
		rental_period TEXT NOT NULL DEFAULT '',
		pets_allowed TEXT NOT NULL DEFAULT '',
		bills_transferable {{BOOL}},
		agreement_notes TEXT NOT NULL DEFAULT '',
		viewing_contact TEXT NOT NULL DEFAULT '',
		viewing_notes TEXT NOT NULL DEFAULT '',
		bedrooms INTEGER,
		bathrooms {{FLOAT}},
		area_sqm {{FLOAT}},
		covered_area_sqm {{FLOAT}},
		covered_veranda_sqm {{FLOAT}},
		uncovered_veranda_sqm {{FLOAT}},
		plot_area_sqm {{FLOAT}},
		basement_sqm {{FLOAT}},
		build_year INTEGER,
		features TEXT NOT NULL DEFAULT '[]',
		address_line1 TEXT NOT NULL DEFAULT '',
		address_line2 TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		district TEXT NOT NULL DEFAULT '',
		area TEXT NOT NULL DEFAULT '',
		latitude {{FLOAT}},
		longitude {{FLOAT}},
		map_url TEXT NOT NULL DEFAULT '',
		meta_title TEXT NOT NULL DEFAULT '',
		meta_description TEXT NOT NULL DEFAULT '',
		meta_keywords TEXT NOT NULL DEFAULT '',
		internal_notes TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		source_ref TEXT NOT NULL DEFAULT '',
		import_run_id TEXT NOT NULL DEFAULT '',
		extracted TEXT NOT NULL DEFAULT '{}',
		created_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS properties_tenant_created ON properties (tenant_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS property_media (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		store_id TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL,
		created_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS property_media_property ON property_media (property_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		step TEXT NOT NULL,
		property_id TEXT,
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		provenance TEXT NOT NULL DEFAULT '{}',
		started_at {{TS}} NOT NULL,
		updated_at {{TS}} NOT NULL,
		finished_at {{TS}}
	)`,
	`CREATE INDEX IF NOT EXISTS import_runs_tenant_started ON import_runs (tenant_id, started_at)`,
}

// Migrate creates the tables if they do not exist. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	types, ok := ddlTypes[db.Dialect()]
	if !ok {
		return fmt.Errorf("migrate: unsupported dialect %q", db.Dialect())
	}
	for _, stmt := range schema {
		for k, v := range types {
			stmt = strings.ReplaceAll(stmt, "{{"+k+"}}", v)
		}
		if err := exec(ctx, db.drv, stmt, nil); err != nil {
			logger.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("database schema up to date", "statements", len(schema))
	return nil
}
