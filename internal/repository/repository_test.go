package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: ":memory:"}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { Close(db, testLogger()) })
	require.NoError(t, Migrate(ctx, db, testLogger()))
	// a second run must be a no-op
	require.NoError(t, Migrate(ctx, db, testLogger()))
	return db
}

func seedTenant(t *testing.T, db *DB, id string) {
	t.Helper()
	require.NoError(t, NewTenantRepository(db, testLogger()).Upsert(context.Background(), &entity.Tenant{
		ID:          id,
		Name:        "Agency " + id,
		CreatorName: "Maria",
	}))
}

func ptr[T any](v T) *T { return &v }

func sampleProperty(tenantID, slug string) *entity.Property {
	return &entity.Property{
		TenantID:          tenantID,
		Slug:              slug,
		Title:             "Sea view apartment",
		Description:       "Two bedroom flat near the marina.",
		Category:          "residential",
		Type:              "apartment",
		Goal:              "RENT",
		Status:            constants.PropertyStatusActive,
		PublicationStatus: constants.PublicationStatusDraft,
		Price:             ptr(1500.0),
		Currency:          "EUR",
		RentalPeriod:      "/month",
		Bedrooms:          ptr(2),
		PetsAllowed:       "BY_AGREEMENT",
		BillsTransferable: ptr(true),
		Features:          []string{"pool", "parking"},
		Country:           "Cyprus",
		District:          "limassol",
		Area:              "germasogeia",
		Latitude:          ptr(34.7),
		Longitude:         ptr(33.1),
		SourceRef:         "example.com/listing/1",
		Extracted:         json.RawMessage(`{"title":"Sea view apartment"}`),
		Media: []entity.Media{
			{Kind: constants.MediaKindImage, URL: "https://imagedelivery.net/h/a/public", SortOrder: 0},
			{Kind: constants.MediaKindImage, URL: "https://imagedelivery.net/h/b/public", SortOrder: 1},
		},
	}
}

func TestPropertyRepository_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "t1")
	repo := NewPropertyRepository(db, testLogger())
	ctx := context.Background()

	id, err := repo.CreateProperty(ctx, sampleProperty("t1", "sea-view-apartment-1"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := repo.GetProperty(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Sea view apartment", got.Title)
	assert.Equal(t, constants.PublicationStatusDraft, got.PublicationStatus)
	require.NotNil(t, got.Price)
	assert.InDelta(t, 1500.0, *got.Price, 0.001)
	require.NotNil(t, got.Bedrooms)
	assert.Equal(t, 2, *got.Bedrooms)
	require.NotNil(t, got.BillsTransferable)
	assert.True(t, *got.BillsTransferable)
	assert.Nil(t, got.Bathrooms)
	assert.Nil(t, got.CommunalFees)
	assert.Equal(t, []string{"pool", "parking"}, got.Features)
	assert.JSONEq(t, `{"title":"Sea view apartment"}`, string(got.Extracted))

	require.Len(t, got.Media, 2)
	assert.Equal(t, "https://imagedelivery.net/h/a/public", got.Media[0].URL)
	assert.Equal(t, 1, got.Media[1].SortOrder)
	assert.Equal(t, id, got.Media[1].PropertyID)
}

func TestPropertyRepository_GetMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := NewPropertyRepository(db, testLogger()).GetProperty(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestPropertyRepository_MediaFailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "t1")
	repo := NewPropertyRepository(db, testLogger())
	ctx := context.Background()

	p := sampleProperty("t1", "dup-media")
	dup := uuid.New()
	p.Media[0].ID = dup
	p.Media[1].ID = dup

	_, err := repo.CreateProperty(ctx, p)
	require.Error(t, err)
	assert.Equal(t, common.CodePersistenceFailed, common.CodeOf(err))

	_, err = repo.GetProperty(ctx, p.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound), "property row must not survive a failed media insert")
}

func TestPropertyRepository_ListSince(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "t1")
	seedTenant(t, db, "t2")
	repo := NewPropertyRepository(db, testLogger())
	ctx := context.Background()

	old := sampleProperty("t1", "old")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	old.Media = nil
	_, err := repo.CreateProperty(ctx, old)
	require.NoError(t, err)

	_, err = repo.CreateProperty(ctx, sampleProperty("t1", "fresh"))
	require.NoError(t, err)
	_, err = repo.CreateProperty(ctx, sampleProperty("t2", "other-tenant"))
	require.NoError(t, err)

	list, err := repo.ListProperties(ctx, "t1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].Slug)

	all, err := repo.ListProperties(ctx, "t1", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "fresh", all[0].Slug)
}

func TestImportRunRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewImportRunRepository(db, testLogger())
	ctx := context.Background()

	run := &entity.ImportRun{ID: "01JABCDEF", TenantID: "t1", SourceKind: "url", SourceRef: "example.com/a"}
	require.NoError(t, repo.Start(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusRunning), got.Status)
	assert.Equal(t, string(constants.StepInit), got.Step)
	assert.Nil(t, got.PropertyID)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, repo.Advance(ctx, run.ID, string(constants.StepAIExtraction)))
	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.StepAIExtraction), got.Step)

	pid := uuid.New()
	require.NoError(t, repo.Finish(ctx, run.ID, entity.RunOutcome{
		Status:     string(constants.RunStatusSucceeded),
		Step:       string(constants.StepDone),
		PropertyID: &pid,
		Provenance: json.RawMessage(`{"details":{"ok":true}}`),
	}))
	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusSucceeded), got.Status)
	assert.Equal(t, string(constants.StepDone), got.Step)
	require.NotNil(t, got.PropertyID)
	assert.Equal(t, pid, *got.PropertyID)
	require.NotNil(t, got.FinishedAt)
	assert.JSONEq(t, `{"details":{"ok":true}}`, string(got.Provenance))

	runs, err := repo.List(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestTenantRepository_UpsertAndRules(t *testing.T) {
	db := openTestDB(t)
	repo := NewTenantRepository(db, testLogger())
	ctx := context.Background()

	_, err := repo.Get(ctx, "t1")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, repo.Upsert(ctx, &entity.Tenant{ID: "t1", Name: "First", AIModel: "gpt-4o-mini"}))
	require.NoError(t, repo.Upsert(ctx, &entity.Tenant{ID: "t1", Name: "Renamed", AIAPIKey: "sk-test"}))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "sk-test", got.AIAPIKey)
	assert.Equal(t, "", got.AIModel)

	require.NoError(t, repo.AddScrapeRule(ctx, &entity.ScrapeRule{TenantID: "t1", Domain: "WWW.Bazaraki.com", Rule: "Price excludes VAT"}))
	require.NoError(t, repo.AddScrapeRule(ctx, &entity.ScrapeRule{TenantID: "t1", Domain: "other.com", Rule: "ignore"}))
	err = repo.AddScrapeRule(ctx, &entity.ScrapeRule{TenantID: "t1", Domain: "other.com", Rule: "   "})
	assert.Equal(t, common.CodeInvalidInput, common.CodeOf(err))

	rules, err := repo.ScrapeRules(ctx, "t1", "bazaraki.com")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Price excludes VAT", rules[0].Rule)
	assert.Equal(t, "bazaraki.com", rules[0].Domain)
}
