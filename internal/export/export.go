// Package export builds the post-sync statistics report and writes it to an XLSX workbook,
// a Google Sheet or the terminal.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/jetpo/fundsync/internal/domain"
	"github.com/jetpo/fundsync/internal/ingest"
)

// Sheet names used by every writer.
const (
	SheetSummary   = "SUMMARY"
	SheetCompanies = "COMPANIES"
	SheetFunds     = "FUNDS"
	SheetPeriods   = "PERIODS"
)

// StatsSource provides the aggregated view of the stored fund data.
type StatsSource interface {
	Stats(ctx context.Context, top int) (*domain.SyncStats, error)
}

// Writer delivers a report to one destination.
type Writer interface {
	Write(ctx context.Context, report Report) error
}

// Table is one sheet of the report. Cells hold string, int, float64 or nil.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Report is the rendered statistics of one point in time, optionally tied to the sync run
// that produced it.
type Report struct {
	GeneratedAt time.Time
	Stats       *domain.SyncStats
	Run         *ingest.Summary
	Tables      []Table
}

// Table returns the table called name.
func (r Report) Table(name string) (Table, bool) {
	return lo.Find(r.Tables, func(t Table) bool { return t.Name == name })
}

// BuildReport turns stats into the SUMMARY, COMPANIES, FUNDS and PERIODS tables. run may be nil
// when the report is requested outside of a sync.
func BuildReport(stats *domain.SyncStats, run *ingest.Summary, at time.Time) Report {
	return Report{
		GeneratedAt: at.UTC(),
		Stats:       stats,
		Run:         run,
		Tables: []Table{
			buildSummary(stats, run, at),
			buildCompanies(stats.TopCompanies),
			buildFunds(stats.TopFunds),
			buildPeriods(stats.Periods),
		},
	}
}

func buildSummary(stats *domain.SyncStats, run *ingest.Summary, at time.Time) Table {
	latest := ""
	if stats.LatestReportPeriod != 0 {
		latest = stats.LatestReportPeriod.String()
	}
	rows := [][]any{
		{"Generated at", at.UTC().Format(time.RFC3339)},
		{"Companies", stats.Companies},
		{"Funds", stats.Funds},
		{"Active funds", stats.ActiveFunds},
		{"Snapshots", stats.Snapshots},
		{"Latest report period", latest},
		{"Average 5y return", nullFloat(stats.AvgReturn5Y)},
		{"Max 5y return", nullFloat(stats.MaxReturn5Y)},
		{"Min 5y return", nullFloat(stats.MinReturn5Y)},
		{"Average total assets", nullFloat(stats.AvgTotalAssets)},
	}
	if run != nil {
		rows = append(rows,
			[]any{"Run", run.RunID.String()},
			[]any{"Source", string(run.Source)},
			[]any{"State", string(run.State)},
			[]any{"Rows", run.Total.Rows},
			[]any{"Created", run.Total.Created},
			[]any{"Updated", run.Total.Updated},
			[]any{"Skipped", run.Total.Skipped},
			[]any{"Failed", run.Total.Failed},
			[]any{"Deactivated", run.Deactivated},
			[]any{"Reactivated", run.Reactivated},
		)
	}
	return Table{Name: SheetSummary, Header: []string{"Metric", "Value"}, Rows: rows}
}

func buildCompanies(companies []domain.CompanyFundCount) Table {
	return Table{
		Name:   SheetCompanies,
		Header: []string{"#", "Legal ID", "Company", "Funds"},
		Rows: lo.Map(companies, func(c domain.CompanyFundCount, i int) []any {
			return []any{i + 1, c.LegalID, c.Name, c.FundCount}
		}),
	}
}

func buildFunds(funds []domain.FundPeriodCount) Table {
	return Table{
		Name:   SheetFunds,
		Header: []string{"#", "Fund ID", "Fund", "Periods"},
		Rows: lo.Map(funds, func(f domain.FundPeriodCount, i int) []any {
			return []any{i + 1, f.FundID, f.Name, f.PeriodCount}
		}),
	}
}

func buildPeriods(periods []domain.PeriodCount) Table {
	return Table{
		Name:   SheetPeriods,
		Header: []string{"Period", "Snapshots"},
		Rows: lo.Map(periods, func(p domain.PeriodCount, _ int) []any {
			return []any{p.Period.String(), p.Snapshots}
		}),
	}
}

// Service loads stats and hands the report to every configured writer.
type Service struct {
	stats   StatsSource
	top     int
	writers []Writer
	now     func() time.Time
}

// NewService creates an export Service listing top entries per ranking.
func NewService(stats StatsSource, top int, writers ...Writer) *Service {
	return &Service{
		stats:   stats,
		top:     top,
		writers: writers,
		now:     time.Now,
	}
}

// Report builds the current report. run may be nil.
func (s *Service) Report(ctx context.Context, run *ingest.Summary) (Report, error) {
	stats, err := s.stats.Stats(ctx, s.top)
	if err != nil {
		return Report{}, fmt.Errorf("loading stats: %w", err)
	}
	return BuildReport(stats, run, s.now()), nil
}

// Export builds the report for a finished sync and writes it everywhere. A failing writer does
// not stop the others. Implements worker.AfterSyncHook.
func (s *Service) Export(ctx context.Context, run *ingest.Summary) error {
	report, err := s.Report(ctx, run)
	if err != nil {
		return err
	}

	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, report); err != nil {
			slog.Error("export: writer failed", "writer", fmt.Sprintf("%T", w), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func nullFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return f
}
