package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

const sheet = "Properties"

var headers = []string{
	"Created",
	"Title",
	"Category",
	"Type",
	"Goal",
	"Price",
	"Currency",
	"Bedrooms",
	"District",
	"Area",
	"Source URL",
	"Slug",
}

// Service produces XLSX bytes for the imported-property export.
type Service struct {
	props  repository.PropertyRepository
	logger *slog.Logger
}

func NewService(props repository.PropertyRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{props: props, logger: logger}
}

// ExportPropertiesXLSX returns a workbook with one row per property the tenant
// imported at or after since. A zero since exports everything.
func (s *Service) ExportPropertiesXLSX(ctx context.Context, tenantID string, since time.Time) ([]byte, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, common.InvalidInputError("tenantId is required")
	}
	start := time.Now()

	props, err := s.props.ListProperties(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i, p := range props {
		if err := writeRow(f, i+2, p); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 12) // created
	_ = f.SetColWidth(sheet, "B", "B", 42) // title
	_ = f.SetColWidth(sheet, "C", "E", 16)
	_ = f.SetColWidth(sheet, "F", "H", 12)
	_ = f.SetColWidth(sheet, "I", "J", 18)
	_ = f.SetColWidth(sheet, "K", "K", 60) // source
	_ = f.SetColWidth(sheet, "L", "L", 48) // slug

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"tenant_id", tenantID,
		"rows", len(props),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, row int, p *entity.Property) error {
	values := []any{
		p.CreatedAt.UTC().Format("2006-01-02"),
		p.Title,
		p.Category,
		p.Type,
		p.Goal,
		nil,
		p.Currency,
		nil,
		p.District,
		p.Area,
		p.SourceURL,
		p.Slug,
	}
	if p.Price != nil {
		values[5] = *p.Price
	}
	if p.Bedrooms != nil {
		values[7] = *p.Bedrooms
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return f.SetSheetRow(sheet, cell, &values)
}
