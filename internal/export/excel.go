// Package export writes collected schedules to an Excel workbook.
package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"ipowatch/internal/clock"
	"ipowatch/internal/schedule"
)

// ErrNoRecords is returned when the store holds nothing to export.
var ErrNoRecords = errors.New("no records to export")

const sheetName = "IPO Schedules"

var headerRow = []any{
	"Stock Name", "Status", "Lead Manager", "Brokers", "Offer Price",
	"Sub Start", "Sub End", "Listing Date", "Demand Start", "Demand End",
	"Refund Date", "Source",
}

// Records is the read surface the exporter needs from the store.
type Records interface {
	AllRecords(ctx context.Context) ([]schedule.Record, error)
}

// Exporter renders the full ipo_schedules table as a workbook.
type Exporter struct {
	records Records
	clock   clock.Clock
	dir     string
}

// New builds an Exporter writing into dir.
func New(records Records, clk clock.Clock, dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{records: records, clock: clk, dir: dir}
}

// Write saves a timestamped workbook into the configured directory and
// returns its path and the number of data rows written.
func (e *Exporter) Write(ctx context.Context) (string, int, error) {
	name := fmt.Sprintf("ipo_schedules_%s.xlsx", e.clock.Now().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)
	rows, err := e.WriteFile(ctx, path)
	if err != nil {
		return "", 0, err
	}
	return path, rows, nil
}

// WriteFile saves the workbook to an explicit path.
func (e *Exporter) WriteFile(ctx context.Context, path string) (int, error) {
	recs, err := e.records.AllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	if len(recs) == 0 {
		return 0, ErrNoRecords
	}

	f, err := buildWorkbook(recs)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	return len(recs), nil
}

func buildWorkbook(recs []schedule.Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, rec := range recs {
		cell := fmt.Sprintf("A%d", i+2)
		row := []any{
			rec.StockName,
			string(rec.Status),
			strVal(rec.LeadManager),
			strVal(rec.Brokers),
			priceVal(rec),
			strVal(rec.SubStart),
			strVal(rec.SubEnd),
			strVal(rec.ListingDate),
			strVal(rec.DemandStart),
			strVal(rec.DemandEnd),
			strVal(rec.RefundDate),
			displaySource(rec.Source),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := applyStyles(f, len(recs)); err != nil {
		return nil, err
	}
	return f, nil
}

func applyStyles(f *excelize.File, dataRows int) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("build header style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "L1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	wonFmt := "₩#,##0"
	priceStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &wonFmt})
	if err != nil {
		return fmt.Errorf("build price style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "E2", fmt.Sprintf("E%d", dataRows+1), priceStyle); err != nil {
		return fmt.Errorf("style price column: %w", err)
	}

	widths := []struct {
		start, end string
		width      float64
	}{
		{"A", "A", 30},
		{"C", "D", 30},
		{"E", "E", 13},
		{"F", "L", 15},
	}
	for _, w := range widths {
		if err := f.SetColWidth(sheetName, w.start, w.end, w.width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.AutoFilter(sheetName, "A1:L1", []excelize.AutoFilterOptions{}); err != nil {
		return fmt.Errorf("set auto filter: %w", err)
	}
	return nil
}

// displaySource drops the site prefix ahead of the first underscore;
// sources without one pass through unchanged.
func displaySource(source string) string {
	if _, after, ok := strings.Cut(source, "_"); ok {
		return after
	}
	return source
}

func strVal(s *string) any {
	if s == nil {
		return ""
	}
	return *s
}

func priceVal(rec schedule.Record) any {
	if !rec.OfferPrice.Valid {
		return ""
	}
	v, _ := rec.OfferPrice.Decimal.Float64()
	return v
}
