package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
)

const (
	tableProperties = "properties"
	tableMedia      = "property_media"
)

var propertyColumns = []string{
	"id", "tenant_id", "slug", "title", "description", "category", "type", "goal",
	"status", "publication_status", "property_condition",
	"price", "currency", "communal_fees", "price_includes_communal_fees", "deposit",
	"deposit_value", "commission", "rental_period", "pets_allowed", "bills_transferable",
	"agreement_notes", "viewing_contact", "viewing_notes",
	"bedrooms", "bathrooms", "area_sqm", "covered_area_sqm", "covered_veranda_sqm",
	"uncovered_veranda_sqm", "plot_area_sqm", "basement_sqm", "build_year", "features",
	"address_line1", "address_line2", "city", "postal_code", "country", "district", "area",
	"latitude", "longitude", "map_url",
	"meta_title", "meta_description", "meta_keywords", "internal_notes",
	"source_url", "source_ref", "import_run_id", "extracted", "created_at", "updated_at",
}

var mediaColumns = []string{"id", "property_id", "kind", "url", "source_url", "store_id", "sort_order", "created_at"}

type PropertyRepository interface {
	// CreateProperty inserts the property and its media in one transaction.
	CreateProperty(ctx context.Context, p *entity.Property) (uuid.UUID, error)
	GetProperty(ctx context.Context, id uuid.UUID) (*entity.Property, error)
	// ListProperties returns a tenant's properties created at or after since, newest first.
	ListProperties(ctx context.Context, tenantID string, since time.Time) ([]*entity.Property, error)
}

type propertyRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewPropertyRepository(db *DB, logger *slog.Logger) PropertyRepository {
	return &propertyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *propertyRepository) CreateProperty(ctx context.Context, p *entity.Property) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	features, err := json.Marshal(nonNil(p.Features))
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal features: %w", err)
	}
	extracted := string(p.Extracted)
	if extracted == "" {
		extracted = "{}"
	}

	b := r.db.builder()
	insert := b.Insert(tableProperties).Columns(propertyColumns...).Values(
		p.ID, p.TenantID, p.Slug, p.Title, p.Description, p.Category, p.Type, p.Goal,
		p.Status, p.PublicationStatus, p.Condition,
		p.Price, p.Currency, p.CommunalFees, p.PriceIncludesCommunalFees, p.Deposit,
		p.DepositValue, p.Commission, p.RentalPeriod, p.PetsAllowed, p.BillsTransferable,
		p.AgreementNotes, p.ViewingContact, p.ViewingNotes,
		p.Bedrooms, p.Bathrooms, p.AreaSqm, p.CoveredAreaSqm, p.CoveredVerandaSqm,
		p.UncoveredVerandaSqm, p.PlotAreaSqm, p.BasementSqm, p.BuildYear, string(features),
		p.AddressLine1, p.AddressLine2, p.City, p.PostalCode, p.Country, p.District, p.Area,
		p.Latitude, p.Longitude, p.MapURL,
		p.MetaTitle, p.MetaDescription, p.MetaKeywords, p.InternalNotes,
		p.SourceURL, p.SourceRef, p.ImportRunID, extracted, p.CreatedAt, p.UpdatedAt,
	)

	err = r.db.withTx(ctx, func(tx dialect.Tx) error {
		q, args := insert.Query()
		if err := exec(ctx, tx, q, args); err != nil {
			return fmt.Errorf("insert property: %w", err)
		}
		if len(p.Media) == 0 {
			return nil
		}
		mi := b.Insert(tableMedia).Columns(mediaColumns...)
		for i := range p.Media {
			m := &p.Media[i]
			if m.ID == uuid.Nil {
				m.ID = uuid.New()
			}
			m.PropertyID = p.ID
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			mi.Values(m.ID, m.PropertyID, m.Kind, m.URL, m.SourceURL, m.StoreID, m.SortOrder, m.CreatedAt)
		}
		q, args = mi.Query()
		if err := exec(ctx, tx, q, args); err != nil {
			return fmt.Errorf("insert media: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to create property", "tenant_id", p.TenantID, "slug", p.Slug, "error", err)
		return uuid.Nil, common.PersistenceError("failed to save property", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Info("property created", "property_id", p.ID, "tenant_id", p.TenantID, "media", len(p.Media))
	return p.ID, nil
}

func (r *propertyRepository) GetProperty(ctx context.Context, id uuid.UUID) (*entity.Property, error) {
	b := r.db.builder()
	q, args := b.Select(propertyColumns...).
		From(b.Table(tableProperties)).
		Where(entsql.EQ("id", id)).
		Query()
	props, err := r.scanProperties(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to get property", "property_id", id, "error", err)
		return nil, err
	}
	if len(props) == 0 {
		return nil, common.NewAppError(common.CodeNotFound, fmt.Sprintf("property %s not found", id), common.ErrNotFound)
	}
	p := props[0]

	sel := b.Select(mediaColumns...).From(b.Table(tableMedia))
	q, args = sel.Where(entsql.EQ("property_id", id)).OrderBy(sel.C("sort_order")).Query()
	rows, err := query(ctx, r.db.drv, q, args)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m entity.Media
		if err := rows.Scan(&m.ID, &m.PropertyID, &m.Kind, &m.URL, &m.SourceURL, &m.StoreID, &m.SortOrder, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		p.Media = append(p.Media, m)
	}
	return p, rows.Err()
}

func (r *propertyRepository) ListProperties(ctx context.Context, tenantID string, since time.Time) ([]*entity.Property, error) {
	b := r.db.builder()
	sel := b.Select(propertyColumns...).From(b.Table(tableProperties))
	q, args := sel.
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.GTE("created_at", since.UTC()),
		)).
		OrderBy(entsql.Desc(sel.C("created_at"))).
		Query()
	props, err := r.scanProperties(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to list properties", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	return props, nil
}

func (r *propertyRepository) scanProperties(ctx context.Context, q string, args []any) ([]*entity.Property, error) {
	rows, err := query(ctx, r.db.drv, q, args)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	var out []*entity.Property
	for rows.Next() {
		var (
			p         entity.Property
			features  string
			extracted string
		)
		err := rows.Scan(
			&p.ID, &p.TenantID, &p.Slug, &p.Title, &p.Description, &p.Category, &p.Type, &p.Goal,
			&p.Status, &p.PublicationStatus, &p.Condition,
			&p.Price, &p.Currency, &p.CommunalFees, &p.PriceIncludesCommunalFees, &p.Deposit,
			&p.DepositValue, &p.Commission, &p.RentalPeriod, &p.PetsAllowed, &p.BillsTransferable,
			&p.AgreementNotes, &p.ViewingContact, &p.ViewingNotes,
			&p.Bedrooms, &p.Bathrooms, &p.AreaSqm, &p.CoveredAreaSqm, &p.CoveredVerandaSqm,
			&p.UncoveredVerandaSqm, &p.PlotAreaSqm, &p.BasementSqm, &p.BuildYear, &features,
			&p.AddressLine1, &p.AddressLine2, &p.City, &p.PostalCode, &p.Country, &p.District, &p.Area,
			&p.Latitude, &p.Longitude, &p.MapURL,
			&p.MetaTitle, &p.MetaDescription, &p.MetaKeywords, &p.InternalNotes,
			&p.SourceURL, &p.SourceRef, &p.ImportRunID, &extracted, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		p.Extracted = json.RawMessage(extracted)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
