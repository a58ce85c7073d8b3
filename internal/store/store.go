// Package store persists companies, funds and monthly fund snapshots keyed by their natural
// identifiers. Two backends share the Store interface: PostgreSQL (pgx) and SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jetpo/fundsync/internal/domain"
)

var (
	// ErrNotFound indicates that the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a natural-key uniqueness constraint rejected a write.
	// Callers retry the write, which then takes the update path.
	ErrDuplicate = errors.New("duplicate key")
	// ErrInvalidRow marks a data error confined to one row (numeric overflow, check violation).
	ErrInvalidRow = errors.New("invalid row")
)

// StorageError is a storage failure not tied to one row, such as a lost connection or a schema problem.
// It is fatal to an import run and safe to retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Outcome reports what an upsert did to the stored row.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Store is the persistence boundary of the import pipeline.
//
// Company and fund upserts carry the report period of the row they came from. Descriptive fields
// only change when that period is equal to or newer than the one that last set them, so the
// stored state does not depend on import order.
type Store interface {
	UpsertCompany(ctx context.Context, key domain.CompanyKey, period domain.Period) (int64, Outcome, error)
	UpsertFund(ctx context.Context, companyID int64, key domain.FundKey, period domain.Period) (int64, Outcome, error)
	// UpsertSnapshot inserts or overwrites the (fund, period) snapshot and refreshes the fund's
	// cached latest values when period is the fund's latest. A matched row reports Updated.
	UpsertSnapshot(ctx context.Context, fundID int64, snap domain.SnapshotFields) (Outcome, error)
	// RefreshActive deactivates funds whose latest period is before cutoff and reactivates the rest.
	RefreshActive(ctx context.Context, cutoff domain.Period) (deactivated, reactivated int, err error)

	GetCompany(ctx context.Context, legalID string) (*domain.Company, error)
	GetFund(ctx context.Context, fundID string) (*domain.Fund, error)
	GetSnapshot(ctx context.Context, fundID string, period domain.Period) (*domain.FundSnapshot, error)
	Stats(ctx context.Context, top int) (*domain.SyncStats, error)

	Close()
}

// Backend names a store implementation selected from a database URL.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// BackendFor picks the backend from the URL scheme: postgres:// and postgresql:// select
// PostgreSQL, sqlite:// and file: select SQLite.
func BackendFor(databaseURL string) (Backend, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return BackendPostgres, nil
	case strings.HasPrefix(databaseURL, "sqlite://"), strings.HasPrefix(databaseURL, "file:"):
		return BackendSQLite, nil
	case databaseURL == "":
		return "", errors.New("database URL is empty")
	default:
		return "", fmt.Errorf("unsupported database URL scheme in %q", redact(databaseURL))
	}
}

// redact hides everything after the scheme so credentials never reach logs.
func redact(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + "..."
	}
	return "..."
}

// orDefault returns s, or fallback when s is empty.
func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
