package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/jetpo/fundsync/internal/domain"
)

// Empty names and labels mean "not reported": an insert falls back to the id for the name and an
// update keeps the stored value.
const pgUpsertCompany = `
WITH prev AS (SELECT name FROM companies WHERE legal_id = $1)
INSERT INTO companies (legal_id, name, name_period)
VALUES ($1, COALESCE(NULLIF($2::text, ''), $1), $3)
ON CONFLICT (legal_id) DO UPDATE
   SET name = COALESCE(NULLIF($2::text, ''), companies.name),
       name_period = EXCLUDED.name_period,
       updated_at = NOW()
 WHERE EXCLUDED.name_period >= companies.name_period
   AND (companies.name IS DISTINCT FROM COALESCE(NULLIF($2::text, ''), companies.name)
        OR companies.name_period <> EXCLUDED.name_period)
RETURNING id, (xmax = 0), (SELECT name FROM prev) IS DISTINCT FROM companies.name`

const pgUpsertFund = `
WITH prev AS (
	SELECT company_id, name, category, specialization, sub_specialization, inception_date
	FROM funds WHERE fund_id = $1
)
INSERT INTO funds (fund_id, company_id, name, category, specialization, sub_specialization,
                   inception_date, latest_report_period)
VALUES ($1, $2, COALESCE(NULLIF($3::text, ''), $1), $4, $5, $6, $7, $8)
ON CONFLICT (fund_id) DO UPDATE
   SET company_id = EXCLUDED.company_id,
       name = COALESCE(NULLIF($3::text, ''), funds.name),
       category = COALESCE(NULLIF($4::text, ''), funds.category),
       specialization = COALESCE(NULLIF($5::text, ''), funds.specialization),
       sub_specialization = COALESCE(NULLIF($6::text, ''), funds.sub_specialization),
       inception_date = COALESCE(EXCLUDED.inception_date, funds.inception_date),
       latest_report_period = EXCLUDED.latest_report_period,
       updated_at = NOW()
 WHERE EXCLUDED.latest_report_period >= funds.latest_report_period
   AND (ROW(funds.company_id, funds.name, funds.category, funds.specialization,
            funds.sub_specialization, funds.inception_date)
        IS DISTINCT FROM
        ROW(EXCLUDED.company_id,
            COALESCE(NULLIF($3::text, ''), funds.name),
            COALESCE(NULLIF($4::text, ''), funds.category),
            COALESCE(NULLIF($5::text, ''), funds.specialization),
            COALESCE(NULLIF($6::text, ''), funds.sub_specialization),
            COALESCE(EXCLUDED.inception_date, funds.inception_date))
        OR funds.latest_report_period <> EXCLUDED.latest_report_period)
RETURNING id, (xmax = 0),
	(SELECT ROW(p.company_id, p.name, p.category, p.specialization, p.sub_specialization, p.inception_date) FROM prev p)
	IS DISTINCT FROM
	ROW(funds.company_id, funds.name, funds.category, funds.specialization, funds.sub_specialization, funds.inception_date)`

var pgUpsertSnapshot = fmt.Sprintf(`
INSERT INTO fund_snapshots (fund_id, report_period, %s)
VALUES ($1, $2, %s)
ON CONFLICT (fund_id, report_period) DO UPDATE
   SET %s, updated_at = NOW()
RETURNING (xmax = 0)`,
	strings.Join(metricColumns, ", "),
	placeholders(3, len(metricColumns), true),
	strings.Join(lo.Map(metricColumns, func(c string, _ int) string { return c + " = EXCLUDED." + c }), ", "),
)

const pgRefreshFundCache = `
UPDATE funds
   SET return_rate = $2, total_assets = $3, management_fee = $4, updated_at = NOW()
 WHERE id = $1
   AND latest_report_period <= $5
   AND ROW(return_rate, total_assets, management_fee)
       IS DISTINCT FROM ROW($2::numeric, $3::numeric, $4::numeric)`

var pgSelectSnapshot = fmt.Sprintf(`
SELECT s.id, s.fund_id, s.report_period, %s, s.created_at, s.updated_at
  FROM fund_snapshots s
  JOIN funds f ON f.id = s.fund_id
 WHERE f.fund_id = $1 AND s.report_period = $2`, snapshotSelectColumns("s."))

// PgStore implements Store with PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL store on an existing pool. The schema is expected to be migrated.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) UpsertCompany(ctx context.Context, key domain.CompanyKey, period domain.Period) (int64, Outcome, error) {
	var (
		id      int64
		created bool
		changed bool
	)
	err := s.pool.QueryRow(ctx, pgUpsertCompany, key.LegalID, key.Name, int(period)).Scan(&id, &created, &changed)
	if errors.Is(err, pgx.ErrNoRows) {
		// The row exists and this period is older or carries nothing new.
		err = s.pool.QueryRow(ctx, `SELECT id FROM companies WHERE legal_id = $1`, key.LegalID).Scan(&id)
		if err != nil {
			return 0, Unchanged, pgClassify("reading company "+key.LegalID, err)
		}
		return id, Unchanged, nil
	}
	if err != nil {
		return 0, Unchanged, pgClassify("upserting company "+key.LegalID, err)
	}
	return id, outcome(created, changed), nil
}

func (s *PgStore) UpsertFund(ctx context.Context, companyID int64, key domain.FundKey, period domain.Period) (int64, Outcome, error) {
	var (
		id      int64
		created bool
		changed bool
	)
	err := s.pool.QueryRow(ctx, pgUpsertFund,
		key.FundID, companyID, key.Name, key.Category, key.Specialization, key.SubSpecialization,
		key.InceptionDate, int(period)).Scan(&id, &created, &changed)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx, `SELECT id FROM funds WHERE fund_id = $1`, key.FundID).Scan(&id)
		if err != nil {
			return 0, Unchanged, pgClassify("reading fund "+key.FundID, err)
		}
		return id, Unchanged, nil
	}
	if err != nil {
		return 0, Unchanged, pgClassify("upserting fund "+key.FundID, err)
	}
	return id, outcome(created, changed), nil
}

func (s *PgStore) UpsertSnapshot(ctx context.Context, fundID int64, snap domain.SnapshotFields) (Outcome, error) {
	var created bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		args := append([]any{fundID, int(snap.Period)}, metricArgs(snap.Metrics)...)
		if err := tx.QueryRow(ctx, pgUpsertSnapshot, args...).Scan(&created); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, pgRefreshFundCache, fundID,
			snap.Metrics.ReturnRate(), snap.Metrics.TotalAssets, snap.Metrics.ManagementFee, int(snap.Period))
		return err
	})
	if err != nil {
		return Unchanged, pgClassify(fmt.Sprintf("upserting snapshot %d/%s", fundID, snap.Period), err)
	}
	if created {
		return Created, nil
	}
	return Updated, nil
}

func (s *PgStore) RefreshActive(ctx context.Context, cutoff domain.Period) (int, int, error) {
	var deactivated, reactivated int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE funds SET active = FALSE, updated_at = NOW() WHERE active AND latest_report_period < $1`,
			int(cutoff))
		if err != nil {
			return err
		}
		deactivated = tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`UPDATE funds SET active = TRUE, updated_at = NOW() WHERE NOT active AND latest_report_period >= $1`,
			int(cutoff))
		if err != nil {
			return err
		}
		reactivated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, 0, pgClassify("refreshing active funds", err)
	}
	return int(deactivated), int(reactivated), nil
}

func (s *PgStore) GetCompany(ctx context.Context, legalID string) (*domain.Company, error) {
	var (
		c      domain.Company
		period int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, legal_id, name, name_period, created_at, updated_at
		 FROM companies WHERE legal_id = $1`, legalID).
		Scan(&c.ID, &c.LegalID, &c.Name, &period, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgClassify("getting company "+legalID, err)
	}
	c.NamePeriod = domain.Period(period)
	return &c, nil
}

func (s *PgStore) GetFund(ctx context.Context, fundID string) (*domain.Fund, error) {
	var (
		f      domain.Fund
		period int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, fund_id, company_id, name, category, specialization, sub_specialization,
		        inception_date, active, latest_report_period, return_rate, total_assets,
		        management_fee, created_at, updated_at
		 FROM funds WHERE fund_id = $1`, fundID).
		Scan(&f.ID, &f.FundID, &f.CompanyID, &f.Name, &f.Category, &f.Specialization, &f.SubSpecialization,
			&f.InceptionDate, &f.Active, &period, &f.ReturnRate, &f.TotalAssets,
			&f.ManagementFee, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgClassify("getting fund "+fundID, err)
	}
	f.LatestReportPeriod = domain.Period(period)
	return &f, nil
}

func (s *PgStore) GetSnapshot(ctx context.Context, fundID string, period domain.Period) (*domain.FundSnapshot, error) {
	var (
		snap domain.FundSnapshot
		p    int
	)
	dest := append([]any{&snap.ID, &snap.FundID, &p}, metricDest(&snap.Metrics)...)
	dest = append(dest, &snap.CreatedAt, &snap.UpdatedAt)

	err := s.pool.QueryRow(ctx, pgSelectSnapshot, fundID, int(period)).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgClassify("getting snapshot", err)
	}
	snap.Period = domain.Period(p)
	return &snap, nil
}

// Stats runs the report queries concurrently on the pool.
func (s *PgStore) Stats(ctx context.Context, top int) (*domain.SyncStats, error) {
	if top <= 0 {
		top = 10
	}

	var stats domain.SyncStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var latest int
		err := s.pool.QueryRow(gctx, pgStats.totals).
			Scan(&stats.Companies, &stats.Funds, &stats.ActiveFunds, &stats.Snapshots, &latest)
		stats.LatestReportPeriod = domain.Period(latest)
		return err
	})
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, pgStats.topCompanies, top)
		if err != nil {
			return err
		}
		stats.TopCompanies, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CompanyFundCount, error) {
			var c domain.CompanyFundCount
			err := row.Scan(&c.LegalID, &c.Name, &c.FundCount)
			return c, err
		})
		return err
	})
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, pgStats.topFunds, top)
		if err != nil {
			return err
		}
		stats.TopFunds, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FundPeriodCount, error) {
			var f domain.FundPeriodCount
			err := row.Scan(&f.FundID, &f.Name, &f.PeriodCount)
			return f, err
		})
		return err
	})
	g.Go(func() error {
		rows, err := s.pool.Query(gctx, pgStats.periods, top)
		if err != nil {
			return err
		}
		stats.Periods, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PeriodCount, error) {
			var (
				p  domain.PeriodCount
				pi int
			)
			err := row.Scan(&pi, &p.Snapshots)
			p.Period = domain.Period(pi)
			return p, err
		})
		return err
	})
	g.Go(func() error {
		return s.pool.QueryRow(gctx, pgStats.aggregates).
			Scan(&stats.AvgReturn5Y, &stats.MaxReturn5Y, &stats.MinReturn5Y, &stats.AvgTotalAssets)
	})

	if err := g.Wait(); err != nil {
		return nil, pgClassify("collecting stats", err)
	}
	return &stats, nil
}

// Close releases the pool.
func (s *PgStore) Close() { s.pool.Close() }

func outcome(created, changed bool) Outcome {
	switch {
	case created:
		return Created
	case changed:
		return Updated
	default:
		return Unchanged
	}
}

// pgClassify maps a PostgreSQL error onto the store's error categories. Unique violations become
// ErrDuplicate, data exceptions (class 22) and other integrity violations (class 23) become
// ErrInvalidRow and everything else is a StorageError.
func pgClassify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidRow, err)
		}
	}
	return &StorageError{Op: op, Err: err}
}
