package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jetpo/fundsync/internal/domain"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

const (
	sqliteTimeLayout = time.RFC3339Nano
	sqliteDateLayout = "2006-01-02"
)

var sqliteInsertSnapshot = fmt.Sprintf(
	`INSERT INTO fund_snapshots (fund_id, report_period, %s, created_at, updated_at) VALUES (?, ?, %s, ?, ?)`,
	strings.Join(metricColumns, ", "), placeholders(0, len(metricColumns), false))

var sqliteUpdateSnapshot = fmt.Sprintf(
	`UPDATE fund_snapshots SET %s, updated_at = ? WHERE id = ?`,
	strings.Join(metricColumns, " = ?, ")+" = ?")

var sqliteSelectSnapshot = fmt.Sprintf(`
SELECT s.id, s.fund_id, s.report_period, %s, s.created_at, s.updated_at
  FROM fund_snapshots s
  JOIN funds f ON f.id = s.fund_id
 WHERE f.fund_id = ? AND s.report_period = ?`, snapshotSelectColumns("s."))

// SQLiteStore implements Store on an embedded SQLite database. Upserts are select-then-write
// inside an immediate transaction; a unique violation from a concurrent writer surfaces as
// ErrDuplicate.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database named by a sqlite:// or file: URL and
// applies the schema.
func OpenSQLite(ctx context.Context, databaseURL string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func sqliteDSN(databaseURL string) string {
	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(sqliteTimeLayout)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, key domain.CompanyKey, period domain.Period) (int64, Outcome, error) {
	var (
		id  int64
		out Outcome
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			name      string
			curPeriod int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, name, name_period FROM companies WHERE legal_id = ?`, key.LegalID).
			Scan(&id, &name, &curPeriod)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := s.timestamp()
			res, err := tx.ExecContext(ctx,
				`INSERT INTO companies (legal_id, name, name_period, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				key.LegalID, orDefault(key.Name, key.LegalID), int(period), now, now)
			if err != nil {
				return err
			}
			out = Created
			id, err = res.LastInsertId()
			return err
		case err != nil:
			return err
		}

		newName := orDefault(key.Name, name)
		if int(period) < curPeriod || (int(period) == curPeriod && name == newName) {
			out = Unchanged
			return nil
		}
		if name == newName {
			out = Unchanged
		} else {
			out = Updated
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE companies SET name = ?, name_period = ?, updated_at = ? WHERE id = ?`,
			newName, int(period), s.timestamp(), id)
		return err
	})
	if err != nil {
		return 0, Unchanged, sqliteClassify("upserting company "+key.LegalID, err)
	}
	return id, out, nil
}

type sqliteFundRow struct {
	companyID         int64
	name              string
	category          string
	specialization    string
	subSpecialization string
	inceptionDate     sql.NullString
	latestPeriod      int
}

func (s *SQLiteStore) UpsertFund(ctx context.Context, companyID int64, key domain.FundKey, period domain.Period) (int64, Outcome, error) {
	var (
		id  int64
		out Outcome
	)
	incoming := sqliteFundRow{
		companyID:         companyID,
		name:              key.Name,
		category:          key.Category,
		specialization:    key.Specialization,
		subSpecialization: key.SubSpecialization,
		inceptionDate:     sqliteDate(key.InceptionDate),
		latestPeriod:      int(period),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var cur sqliteFundRow
		err := tx.QueryRowContext(ctx,
			`SELECT id, company_id, name, category, specialization, sub_specialization, inception_date, latest_report_period
			 FROM funds WHERE fund_id = ?`, key.FundID).
			Scan(&id, &cur.companyID, &cur.name, &cur.category, &cur.specialization, &cur.subSpecialization,
				&cur.inceptionDate, &cur.latestPeriod)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := s.timestamp()
			res, err := tx.ExecContext(ctx,
				`INSERT INTO funds (fund_id, company_id, name, category, specialization, sub_specialization,
				                    inception_date, latest_report_period, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				key.FundID, incoming.companyID, orDefault(incoming.name, key.FundID), incoming.category, incoming.specialization,
				incoming.subSpecialization, incoming.inceptionDate, incoming.latestPeriod, now, now)
			if err != nil {
				return err
			}
			out = Created
			id, err = res.LastInsertId()
			return err
		case err != nil:
			return err
		}

		// Absent attributes keep the stored values.
		incoming.name = orDefault(incoming.name, cur.name)
		incoming.category = orDefault(incoming.category, cur.category)
		incoming.specialization = orDefault(incoming.specialization, cur.specialization)
		incoming.subSpecialization = orDefault(incoming.subSpecialization, cur.subSpecialization)
		if !incoming.inceptionDate.Valid {
			incoming.inceptionDate = cur.inceptionDate
		}
		if incoming.latestPeriod < cur.latestPeriod || incoming == cur {
			out = Unchanged
			return nil
		}

		// A newer period with identical attributes only advances latest_report_period.
		advanced := cur
		advanced.latestPeriod = incoming.latestPeriod
		if incoming == advanced {
			out = Unchanged
		} else {
			out = Updated
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE funds SET company_id = ?, name = ?, category = ?, specialization = ?, sub_specialization = ?,
			                  inception_date = ?, latest_report_period = ?, updated_at = ?
			 WHERE id = ?`,
			incoming.companyID, incoming.name, incoming.category, incoming.specialization, incoming.subSpecialization,
			incoming.inceptionDate, incoming.latestPeriod, s.timestamp(), id)
		return err
	})
	if err != nil {
		return 0, Unchanged, sqliteClassify("upserting fund "+key.FundID, err)
	}
	return id, out, nil
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, fundID int64, snap domain.SnapshotFields) (Outcome, error) {
	out := Updated
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM fund_snapshots WHERE fund_id = ? AND report_period = ?`, fundID, int(snap.Period)).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			args := append([]any{fundID, int(snap.Period)}, metricArgs(snap.Metrics)...)
			args = append(args, now, now)
			if _, err := tx.ExecContext(ctx, sqliteInsertSnapshot, args...); err != nil {
				return err
			}
			out = Created
		case err != nil:
			return err
		default:
			args := append(metricArgs(snap.Metrics), now, id)
			if _, err := tx.ExecContext(ctx, sqliteUpdateSnapshot, args...); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE funds SET return_rate = ?, total_assets = ?, management_fee = ?, updated_at = ?
			 WHERE id = ? AND latest_report_period <= ?`,
			snap.Metrics.ReturnRate(), snap.Metrics.TotalAssets, snap.Metrics.ManagementFee, now,
			fundID, int(snap.Period))
		return err
	})
	if err != nil {
		return Unchanged, sqliteClassify(fmt.Sprintf("upserting snapshot %d/%s", fundID, snap.Period), err)
	}
	return out, nil
}

func (s *SQLiteStore) RefreshActive(ctx context.Context, cutoff domain.Period) (int, int, error) {
	var deactivated, reactivated int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE funds SET active = 0, updated_at = ? WHERE active = 1 AND latest_report_period < ?`, now, int(cutoff))
		if err != nil {
			return err
		}
		if deactivated, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE funds SET active = 1, updated_at = ? WHERE active = 0 AND latest_report_period >= ?`, now, int(cutoff))
		if err != nil {
			return err
		}
		reactivated, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, 0, sqliteClassify("refreshing active funds", err)
	}
	return int(deactivated), int(reactivated), nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, legalID string) (*domain.Company, error) {
	var (
		c                    domain.Company
		period               int
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, legal_id, name, name_period, created_at, updated_at FROM companies WHERE legal_id = ?`, legalID).
		Scan(&c.ID, &c.LegalID, &c.Name, &period, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, sqliteClassify("getting company "+legalID, err)
	}
	c.NamePeriod = domain.Period(period)
	c.CreatedAt, c.UpdatedAt = parseSQLiteTime(createdAt), parseSQLiteTime(updatedAt)
	return &c, nil
}

func (s *SQLiteStore) GetFund(ctx context.Context, fundID string) (*domain.Fund, error) {
	var (
		f                    domain.Fund
		period               int
		inception            sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fund_id, company_id, name, category, specialization, sub_specialization,
		        inception_date, active, latest_report_period, return_rate, total_assets,
		        management_fee, created_at, updated_at
		 FROM funds WHERE fund_id = ?`, fundID).
		Scan(&f.ID, &f.FundID, &f.CompanyID, &f.Name, &f.Category, &f.Specialization, &f.SubSpecialization,
			&inception, &f.Active, &period, &f.ReturnRate, &f.TotalAssets,
			&f.ManagementFee, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, sqliteClassify("getting fund "+fundID, err)
	}
	f.LatestReportPeriod = domain.Period(period)
	if inception.Valid {
		if d, err := time.Parse(sqliteDateLayout, inception.String); err == nil {
			f.InceptionDate = &d
		}
	}
	f.CreatedAt, f.UpdatedAt = parseSQLiteTime(createdAt), parseSQLiteTime(updatedAt)
	return &f, nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, fundID string, period domain.Period) (*domain.FundSnapshot, error) {
	var (
		snap                 domain.FundSnapshot
		p                    int
		createdAt, updatedAt string
	)
	dest := append([]any{&snap.ID, &snap.FundID, &p}, metricDest(&snap.Metrics)...)
	dest = append(dest, &createdAt, &updatedAt)

	err := s.db.QueryRowContext(ctx, sqliteSelectSnapshot, fundID, int(period)).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, sqliteClassify("getting snapshot", err)
	}
	snap.Period = domain.Period(p)
	snap.CreatedAt, snap.UpdatedAt = parseSQLiteTime(createdAt), parseSQLiteTime(updatedAt)
	return &snap, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, top int) (*domain.SyncStats, error) {
	if top <= 0 {
		top = 10
	}

	var (
		stats  domain.SyncStats
		latest int
	)
	err := s.db.QueryRowContext(ctx, sqliteStats.totals).
		Scan(&stats.Companies, &stats.Funds, &stats.ActiveFunds, &stats.Snapshots, &latest)
	if err != nil {
		return nil, sqliteClassify("collecting totals", err)
	}
	stats.LatestReportPeriod = domain.Period(latest)

	stats.TopCompanies, err = sqliteCollect(ctx, s.db, sqliteStats.topCompanies, top, func(rows *sql.Rows) (domain.CompanyFundCount, error) {
		var c domain.CompanyFundCount
		err := rows.Scan(&c.LegalID, &c.Name, &c.FundCount)
		return c, err
	})
	if err != nil {
		return nil, sqliteClassify("collecting top companies", err)
	}

	stats.TopFunds, err = sqliteCollect(ctx, s.db, sqliteStats.topFunds, top, func(rows *sql.Rows) (domain.FundPeriodCount, error) {
		var f domain.FundPeriodCount
		err := rows.Scan(&f.FundID, &f.Name, &f.PeriodCount)
		return f, err
	})
	if err != nil {
		return nil, sqliteClassify("collecting top funds", err)
	}

	stats.Periods, err = sqliteCollect(ctx, s.db, sqliteStats.periods, top, func(rows *sql.Rows) (domain.PeriodCount, error) {
		var (
			p  domain.PeriodCount
			pi int
		)
		err := rows.Scan(&pi, &p.Snapshots)
		p.Period = domain.Period(pi)
		return p, err
	})
	if err != nil {
		return nil, sqliteClassify("collecting periods", err)
	}

	err = s.db.QueryRowContext(ctx, sqliteStats.aggregates).
		Scan(&stats.AvgReturn5Y, &stats.MaxReturn5Y, &stats.MinReturn5Y, &stats.AvgTotalAssets)
	if err != nil {
		return nil, sqliteClassify("collecting aggregates", err)
	}
	return &stats, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() { _ = s.db.Close() }

func sqliteCollect[T any](ctx context.Context, db *sql.DB, query string, arg any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func sqliteDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(sqliteDateLayout), Valid: true}
}

func parseSQLiteTime(s string) time.Time {
	t, _ := time.Parse(sqliteTimeLayout, s)
	return t
}

// sqliteClassify maps SQLite result codes onto the store's error categories.
func sqliteClassify(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
				strings.Contains(se.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
			}
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidRow, err)
		case sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidRow, err)
		}
	}
	return &StorageError{Op: op, Err: err}
}
