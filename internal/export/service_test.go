package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
)

type fakeProps struct {
	props    []*entity.Property
	err      error
	tenantID string
	since    time.Time
}

func (f *fakeProps) CreateProperty(context.Context, *entity.Property) (uuid.UUID, error) {
	return uuid.Nil, errors.New("not implemented")
}

func (f *fakeProps) GetProperty(context.Context, uuid.UUID) (*entity.Property, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProps) ListProperties(_ context.Context, tenantID string, since time.Time) ([]*entity.Property, error) {
	f.tenantID, f.since = tenantID, since
	return f.props, f.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestExportPropertiesXLSX(t *testing.T) {
	price := 450000.0
	beds := 3
	created := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	repo := &fakeProps{props: []*entity.Property{
		{
			Title: "Villa in Tala", Category: "house", Type: "detached_villa", Goal: "SALE",
			Price: &price, Currency: "EUR", Bedrooms: &beds, District: "paphos", Area: "tala",
			SourceURL: "https://example.com/42", Slug: "villa-in-tala-1", CreatedAt: created,
		},
		{Title: "Untitled Import", Currency: "EUR", Slug: "untitled-import-2", CreatedAt: created},
	}}
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	b, err := NewService(repo, quiet()).ExportPropertiesXLSX(context.Background(), " t1 ", since)
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.tenantID)
	assert.Equal(t, since, repo.since)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{
		"2025-03-04", "Villa in Tala", "house", "detached_villa", "SALE", "450000", "EUR", "3",
		"paphos", "tala", "https://example.com/42", "villa-in-tala-1",
	}, rows[1])
	assert.Equal(t, "Untitled Import", rows[2][1])
	assert.Equal(t, "", rows[2][5])
}

func TestExportPropertiesXLSX_RequiresTenant(t *testing.T) {
	_, err := NewService(&fakeProps{}, quiet()).ExportPropertiesXLSX(context.Background(), "", time.Time{})
	require.Error(t, err)
	assert.Equal(t, common.CodeInvalidInput, common.CodeOf(err))
}

func TestExportPropertiesXLSX_RepositoryError(t *testing.T) {
	_, err := NewService(&fakeProps{err: errors.New("db down")}, quiet()).ExportPropertiesXLSX(context.Background(), "t1", time.Time{})
	assert.ErrorContains(t, err, "db down")
}
