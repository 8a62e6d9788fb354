package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
)

const tableImportRuns = "import_runs"

var importRunColumns = []string{
	"id", "tenant_id", "source_kind", "source_ref", "status", "step", "property_id",
	"error_code", "error_message", "provenance", "started_at", "updated_at", "finished_at",
}

// ImportRunRepository records the lifecycle of pipeline runs.
type ImportRunRepository interface {
	Start(ctx context.Context, run *entity.ImportRun) error
	Advance(ctx context.Context, id, step string) error
	Finish(ctx context.Context, id string, out entity.RunOutcome) error
	Get(ctx context.Context, id string) (*entity.ImportRun, error)
	List(ctx context.Context, tenantID string, limit int) ([]*entity.ImportRun, error)
}

type importRunRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewImportRunRepository(db *DB, logger *slog.Logger) ImportRunRepository {
	return &importRunRepository{db: db, logger: logger}
}

func (r *importRunRepository) Start(ctx context.Context, run *entity.ImportRun) error {
	now := time.Now().UTC()
	run.StartedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = string(constants.RunStatusRunning)
	}
	if run.Step == "" {
		run.Step = string(constants.StepInit)
	}
	q, args := r.db.builder().Insert(tableImportRuns).
		Columns("id", "tenant_id", "source_kind", "source_ref", "status", "step", "provenance", "started_at", "updated_at").
		Values(run.ID, run.TenantID, run.SourceKind, run.SourceRef, run.Status, run.Step, "{}", now, now).
		Query()
	if err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to start import run", "run_id", run.ID, "error", err)
		return fmt.Errorf("start import run: %w", err)
	}
	return nil
}

func (r *importRunRepository) Advance(ctx context.Context, id, step string) error {
	q, args := r.db.builder().Update(tableImportRuns).
		Set("step", step).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	if err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Warn("failed to advance import run", "run_id", id, "step", step, "error", err)
		return fmt.Errorf("advance import run: %w", err)
	}
	return nil
}

func (r *importRunRepository) Finish(ctx context.Context, id string, out entity.RunOutcome) error {
	now := time.Now().UTC()
	provenance := string(out.Provenance)
	if provenance == "" {
		provenance = "{}"
	}
	u := r.db.builder().Update(tableImportRuns).
		Set("status", out.Status).
		Set("error_code", out.ErrorCode).
		Set("error_message", out.ErrorMessage).
		Set("provenance", provenance).
		Set("updated_at", now).
		Set("finished_at", now)
	if out.Step != "" {
		u.Set("step", out.Step)
	}
	if out.PropertyID != nil {
		u.Set("property_id", out.PropertyID.String())
	}
	q, args := u.Where(entsql.EQ("id", id)).Query()
	if err := exec(ctx, r.db.drv, q, args); err != nil {
		r.logger.Error("failed to finish import run", "run_id", id, "status", out.Status, "error", err)
		return fmt.Errorf("finish import run: %w", err)
	}
	return nil
}

func (r *importRunRepository) Get(ctx context.Context, id string) (*entity.ImportRun, error) {
	b := r.db.builder()
	q, args := b.Select(importRunColumns...).
		From(b.Table(tableImportRuns)).
		Where(entsql.EQ("id", id)).
		Query()
	runs, err := r.scan(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, common.NewAppError(common.CodeNotFound, fmt.Sprintf("import run %s not found", id), common.ErrNotFound)
	}
	return runs[0], nil
}

func (r *importRunRepository) List(ctx context.Context, tenantID string, limit int) ([]*entity.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	b := r.db.builder()
	sel := b.Select(importRunColumns...).From(b.Table(tableImportRuns))
	q, args := sel.Where(entsql.EQ("tenant_id", tenantID)).
		OrderBy(entsql.Desc(sel.C("started_at"))).
		Limit(limit).
		Query()
	return r.scan(ctx, q, args)
}

func (r *importRunRepository) scan(ctx context.Context, q string, args []any) ([]*entity.ImportRun, error) {
	rows, err := query(ctx, r.db.drv, q, args)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var out []*entity.ImportRun
	for rows.Next() {
		var (
			run        entity.ImportRun
			propertyID sql.NullString
			provenance string
			finishedAt sql.NullTime
		)
		err := rows.Scan(&run.ID, &run.TenantID, &run.SourceKind, &run.SourceRef, &run.Status, &run.Step,
			&propertyID, &run.ErrorCode, &run.ErrorMessage, &provenance, &run.StartedAt, &run.UpdatedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		if propertyID.Valid && propertyID.String != "" {
			id, err := uuid.Parse(propertyID.String)
			if err != nil {
				return nil, fmt.Errorf("import run %s: bad property id: %w", run.ID, err)
			}
			run.PropertyID = &id
		}
		run.Provenance = []byte(provenance)
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
