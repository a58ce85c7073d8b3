package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements Writer by saving the report as an Excel workbook at Path. An existing
// file is replaced.
type XLSXWriter struct {
	Path string
}

func (w *XLSXWriter) Write(_ context.Context, report Report) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("export: closing workbook", "path", w.Path, "error", err)
		}
	}()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9EAD3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	tables := report.Tables
	if report.Run != nil {
		header, data := buildSyncLogRows(report)
		tables = append(tables[:len(tables):len(tables)], Table{
			Name:   SheetSyncLog,
			Header: anyStrings(header),
			Rows:   [][]any{data},
		})
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return fmt.Errorf("naming sheet %s: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("adding sheet %s: %w", t.Name, err)
		}
		if err := writeTable(f, t, headerStyle); err != nil {
			return fmt.Errorf("writing sheet %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(w.Path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", w.Path, err)
	}
	slog.Info("export: workbook saved", "path", w.Path, "sheets", len(tables))
	return nil
}

func writeTable(f *excelize.File, t Table, headerStyle int) error {
	for i, row := range tableValues(t) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &row); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(max(len(t.Header), 1), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.Name, "A1", last, headerStyle); err != nil {
		return err
	}
	return f.SetPanes(t.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func anyStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}
