// Package ingest drives fund data from the feed through normalization into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/jetpo/fundsync/internal/domain"
	"github.com/jetpo/fundsync/internal/gemelnet"
	"github.com/jetpo/fundsync/internal/normalize"
	"github.com/jetpo/fundsync/internal/store"
)

// Feed is the paged source of raw rows.
type Feed interface {
	Pages(ctx context.Context, mode domain.Mode, limit int) iter.Seq2[gemelnet.Page, error]
}

// RecordNormalizer validates raw rows.
type RecordNormalizer interface {
	Normalize(raw domain.RawRecord) (domain.Record, error)
}

// Importer runs imports for a source selection.
type Importer struct {
	feed       Feed
	normalizer RecordNormalizer
	store      store.Store
	engine     *Engine
	staleAfter int
}

// Option configures an Importer.
type Option func(*Importer)

// WithStaleAfter sets how many months behind the newest recent period a fund may fall before it
// is deactivated. Zero or less disables deactivation.
func WithStaleAfter(months int) Option {
	return func(im *Importer) { im.staleAfter = months }
}

// NewImporter creates an Importer.
func NewImporter(feed Feed, normalizer RecordNormalizer, st store.Store, opts ...Option) *Importer {
	im := &Importer{
		feed:       feed,
		normalizer: normalizer,
		store:      st,
		engine:     NewEngine(st),
		staleAfter: 3,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import fetches, normalizes and upserts every row of the selected modes; both runs recent and
// then historical. A positive limit caps the rows fetched per mode.
//
// A feed failure stops the affected mode and the next mode still runs. A storage failure or
// cancellation stops the run. In every case the summary is returned alongside the error, which
// wraps one *RunError per stopped mode.
func (im *Importer) Import(ctx context.Context, source domain.Source, limit int) (*Summary, error) {
	modes := source.Modes()
	if len(modes) == 0 {
		return nil, fmt.Errorf("invalid source %q", source)
	}

	run := NewRun(source)
	summary := &Summary{RunID: run.ID, Source: source}
	log := slog.With("run", run.ID.String())
	log.Info("Importer: starting", "source", source, "limit", limit)

	if err := run.transition(StateFetching); err != nil {
		return nil, err
	}

	var errs []error
	for _, mode := range modes {
		ms, err := im.importMode(ctx, run, log, mode, limit)
		summary.Modes = append(summary.Modes, ms)
		summary.Total.Add(ms.Counts)

		if err != nil {
			errs = append(errs, &RunError{RunID: run.ID, Mode: mode, Offset: ms.LastOffset, Err: err})

			var fetchErr *gemelnet.FetchError
			if errors.As(err, &fetchErr) && ctx.Err() == nil {
				log.Error("Importer: mode aborted by feed failure", "mode", mode, "offset", ms.LastOffset, "error", err)
				continue
			}
			log.Error("Importer: run aborted", "mode", mode, "offset", ms.LastOffset, "error", err)
			break
		}

		if mode == domain.ModeRecent && limit <= 0 && ms.Complete {
			if err := im.refreshActive(ctx, log, ms.MaxPeriod, summary); err != nil {
				errs = append(errs, &RunError{RunID: run.ID, Mode: mode, Offset: ms.LastOffset, Err: err})
				break
			}
		}
	}

	summary.Duration = time.Since(run.StartedAt)

	if len(errs) > 0 {
		run.fail()
		summary.State = run.State()
		return summary, errors.Join(errs...)
	}

	if err := run.transition(StateDone); err != nil {
		return summary, err
	}
	summary.State = run.State()

	log.Info("Importer: completed",
		"rows", summary.Total.Rows,
		"created", summary.Total.Created,
		"updated", summary.Total.Updated,
		"skipped", summary.Total.Skipped,
		"failed", summary.Total.Failed,
		"duration", summary.Duration)
	return summary, nil
}

// importMode consumes one mode's feed page by page. The run is in the fetching state whenever
// the next page is pulled.
func (im *Importer) importMode(ctx context.Context, run *Run, log *slog.Logger, mode domain.Mode, limit int) (ms ModeSummary, err error) {
	ms = ModeSummary{Mode: mode, FeedTotal: -1}
	started := time.Now()
	defer func() { ms.Duration = time.Since(started) }()

	log = log.With("mode", mode)
	log.Info("Importer: mode starting")

	for page, err := range im.feed.Pages(ctx, mode, limit) {
		if err != nil {
			return ms, err
		}
		ms.Pages++
		ms.FeedTotal = page.Total

		if err := run.transition(StateNormalizing); err != nil {
			return ms, err
		}
		records := make([]domain.Record, len(page.Records))
		valid := make([]bool, len(page.Records))
		for i, raw := range page.Records {
			rec, err := im.normalizer.Normalize(raw)
			if err != nil {
				var vErr *normalize.ValidationError
				if !errors.As(err, &vErr) {
					return ms, err
				}
				log.Debug("Importer: row skipped", "offset", page.Offset+i, "error", err)
				continue
			}
			records[i], valid[i] = rec, true
		}

		if err := run.transition(StateUpserting); err != nil {
			return ms, err
		}
		for i := range page.Records {
			if !valid[i] {
				ms.Rows++
				ms.Skipped++
				ms.LastOffset = page.Offset + i + 1
				continue
			}

			res, err := im.engine.Apply(ctx, run, records[i])
			if err != nil {
				if !errors.Is(err, store.ErrInvalidRow) {
					// The row was not written and stays outside the counts.
					return ms, err
				}
				ms.Rows++
				ms.Failed++
				ms.LastOffset = page.Offset + i + 1
				log.Warn("Importer: row rejected by store", "offset", page.Offset+i, "error", err)
				continue
			}
			ms.Rows++
			ms.tally(res)
			ms.LastOffset = page.Offset + i + 1
			if p := records[i].Snapshot.Period; p > ms.MaxPeriod {
				ms.MaxPeriod = p
			}
		}

		log.Info("Importer: page processed",
			"offset", ms.LastOffset,
			"total", page.Total,
			"created", ms.Created,
			"updated", ms.Updated,
			"skipped", ms.Skipped,
			"failed", ms.Failed)

		if err := run.transition(StateFetching); err != nil {
			return ms, err
		}
	}

	ms.Complete = true
	log.Info("Importer: mode completed", "rows", ms.Rows, "pages", ms.Pages, "max_period", ms.MaxPeriod)
	return ms, nil
}

func (ms *ModeSummary) tally(res Result) {
	switch res.Snapshot {
	case store.Created:
		ms.Created++
	default:
		ms.Updated++
	}
	switch res.Company {
	case store.Created:
		ms.CompaniesCreated++
	case store.Updated:
		ms.CompaniesUpdated++
	}
	switch res.Fund {
	case store.Created:
		ms.FundsCreated++
	case store.Updated:
		ms.FundsUpdated++
	}
}

// refreshActive deactivates funds that stopped reporting and reactivates those that resumed.
func (im *Importer) refreshActive(ctx context.Context, log *slog.Logger, newest domain.Period, summary *Summary) error {
	if im.staleAfter <= 0 || newest == 0 {
		return nil
	}
	cutoff := newest.AddMonths(-im.staleAfter)
	deactivated, reactivated, err := im.store.RefreshActive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("refreshing active funds: %w", err)
	}
	summary.Deactivated += deactivated
	summary.Reactivated += reactivated
	log.Info("Importer: fund activity refreshed",
		"cutoff", cutoff, "deactivated", deactivated, "reactivated", reactivated)
	return nil
}
