package export

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetSyncLog keeps one appended row per sync run.
const SheetSyncLog = "SYNC_LOG"

// syncLogCol describes one column of the SYNC_LOG sheet after the leading date column.
type syncLogCol struct {
	header  string
	integer bool
	value   func(Report) any
}

var syncLogColumns = []syncLogCol{
	{header: "Run", value: func(r Report) any { return r.Run.RunID.String() }},
	{header: "Source", value: func(r Report) any { return string(r.Run.Source) }},
	{header: "State", value: func(r Report) any { return string(r.Run.State) }},
	{header: "Rows", integer: true, value: func(r Report) any { return r.Run.Total.Rows }},
	{header: "Created", integer: true, value: func(r Report) any { return r.Run.Total.Created }},
	{header: "Updated", integer: true, value: func(r Report) any { return r.Run.Total.Updated }},
	{header: "Skipped", integer: true, value: func(r Report) any { return r.Run.Total.Skipped }},
	{header: "Failed", integer: true, value: func(r Report) any { return r.Run.Total.Failed }},
	{header: "Companies created", integer: true, value: func(r Report) any { return r.Run.Total.CompaniesCreated }},
	{header: "Funds created", integer: true, value: func(r Report) any { return r.Run.Total.FundsCreated }},
	{header: "Deactivated", integer: true, value: func(r Report) any { return r.Run.Deactivated }},
	{header: "Duration (s)", value: func(r Report) any { return r.Run.Duration.Seconds() }},
	{header: "Companies", integer: true, value: func(r Report) any { return r.Stats.Companies }},
	{header: "Funds", integer: true, value: func(r Report) any { return r.Stats.Funds }},
	{header: "Active funds", integer: true, value: func(r Report) any { return r.Stats.ActiveFunds }},
	{header: "Snapshots", integer: true, value: func(r Report) any { return r.Stats.Snapshots }},
	{header: "Latest period", value: func(r Report) any {
		if r.Stats.LatestReportPeriod == 0 {
			return nil
		}
		return r.Stats.LatestReportPeriod.String()
	}},
}

// buildSyncLogRows returns the header row and the data row for report. The report must carry
// a run.
func buildSyncLogRows(report Report) (header []any, data []any) {
	header = append([]any{"Date"}, lo.Map(syncLogColumns, func(c syncLogCol, _ int) any { return c.header })...)
	data = append([]any{report.GeneratedAt.Format("02.01.2006 15:04")},
		lo.Map(syncLogColumns, func(c syncLogCol, _ int) any { return c.value(report) })...)
	return header, data
}

// syncLogIntegerCols lists the 0-based sheet columns formatted as #,##0.
func syncLogIntegerCols() []int64 {
	return lo.FilterMap(syncLogColumns, func(c syncLogCol, i int) (int64, bool) {
		return int64(i + 1), c.integer
	})
}

// AppendSyncLog ensures the SYNC_LOG sheet exists, writes the header if the sheet is empty,
// then appends one row for the run in report.
func (w *SheetsWriter) AppendSyncLog(ctx context.Context, report Report) error {
	if report.Run == nil {
		return nil
	}
	meta, err := w.ensureSheets(ctx, SheetSyncLog)
	if err != nil {
		return fmt.Errorf("ensuring %s sheet: %w", SheetSyncLog, err)
	}

	header, data := buildSyncLogRows(report)

	existing, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, SheetSyncLog+"!A1:A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", SheetSyncLog, err)
	}
	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			SheetSyncLog+"!A1",
			&sheets.ValueRange{Values: [][]any{header}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", SheetSyncLog, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		SheetSyncLog+"!A:"+columnLetter(len(header)),
		&sheets.ValueRange{Values: [][]any{data}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", SheetSyncLog, err)
	}

	if err := w.formatSyncLog(ctx, meta[SheetSyncLog], int64(len(header))); err != nil {
		return fmt.Errorf("formatting %s sheet: %w", SheetSyncLog, err)
	}
	return nil
}

// formatSyncLog gives the log a light-green bold header, frozen date column and header row, and
// integer number formats.
func (w *SheetsWriter) formatSyncLog(ctx context.Context, sheetID, totalCols int64) error {
	reqs := []*sheets.Request{
		cellFormatReq(sheetID, 0, 1, 0, totalCols,
			&sheets.CellFormat{
				BackgroundColor:     headerColor,
				TextFormat:          &sheets.TextFormat{Bold: true},
				HorizontalAlignment: "CENTER",
			},
			"userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)"),
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount:    1,
						FrozenColumnCount: 1,
					},
				},
				Fields: "gridProperties.frozenRowCount,gridProperties.frozenColumnCount",
			},
		},
	}
	for _, col := range syncLogIntegerCols() {
		reqs = append(reqs, cellFormatReq(sheetID, 1, 10000, col, col+1,
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "#,##0"}},
			"userEnteredFormat.numberFormat"))
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}
