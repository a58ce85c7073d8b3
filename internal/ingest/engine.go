package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jetpo/fundsync/internal/domain"
	"github.com/jetpo/fundsync/internal/store"
)

// Result reports what applying one record did to each entity.
type Result struct {
	Company  store.Outcome
	Fund     store.Outcome
	Snapshot store.Outcome
}

// Engine reconciles normalized records with the stored companies, funds and snapshots.
// Applying the same record twice leaves the store as it was after the first application.
type Engine struct {
	store store.Store
}

// NewEngine creates an Engine writing to st.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Apply ensures the record's company and fund exist and upserts its snapshot. Errors wrapping
// store.ErrInvalidRow concern this record only; any other error is a storage failure.
func (e *Engine) Apply(ctx context.Context, run *Run, rec domain.Record) (Result, error) {
	var res Result
	period := rec.Snapshot.Period

	companyID, ok := run.companies.lookup(rec.Company, period)
	if !ok {
		id, out, err := retryOnDuplicate(func() (int64, store.Outcome, error) {
			return e.store.UpsertCompany(ctx, rec.Company, period)
		})
		if err != nil {
			return res, fmt.Errorf("ensuring company %s: %w", rec.Company.LegalID, err)
		}
		companyID, res.Company = id, out
		run.companies.set(rec.Company, period, id)
	}

	fundID, ok := run.funds.lookup(companyID, rec.Fund, period)
	if !ok {
		id, out, err := retryOnDuplicate(func() (int64, store.Outcome, error) {
			return e.store.UpsertFund(ctx, companyID, rec.Fund, period)
		})
		if err != nil {
			return res, fmt.Errorf("ensuring fund %s: %w", rec.Fund.FundID, err)
		}
		fundID, res.Fund = id, out
		run.funds.set(companyID, rec.Fund, period, id)
	}

	_, out, err := retryOnDuplicate(func() (struct{}, store.Outcome, error) {
		out, err := e.store.UpsertSnapshot(ctx, fundID, rec.Snapshot)
		return struct{}{}, out, err
	})
	if err != nil {
		return res, fmt.Errorf("upserting snapshot %s/%s: %w", rec.Fund.FundID, period, err)
	}
	res.Snapshot = out
	return res, nil
}

// retryOnDuplicate runs op again when it lost an insert race: the second attempt finds the row
// and takes the update path. A second duplicate is reported as a storage failure.
func retryOnDuplicate[T any](op func() (T, store.Outcome, error)) (T, store.Outcome, error) {
	v, out, err := op()
	if !errors.Is(err, store.ErrDuplicate) {
		return v, out, err
	}
	slog.Debug("Engine: duplicate key, retrying as update", "error", err)
	v, out, err = op()
	if errors.Is(err, store.ErrDuplicate) {
		return v, out, &store.StorageError{Op: "retrying duplicate write", Err: err}
	}
	return v, out, err
}
