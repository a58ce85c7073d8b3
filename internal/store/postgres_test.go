package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetpo/fundsync/internal/database"
	"github.com/jetpo/fundsync/internal/domain"
)

// newPgTestStore migrates a throwaway schema in the database named by TEST_DATABASE_URL and
// returns a store bound to it. The schema is dropped when the test ends.
func newPgTestStore(t *testing.T) *PgStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	schema := "fundsync_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("dropping schema %s: %v", schema, err)
		}
		admin.Close(context.Background())
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := database.RunMigrations(ctx, pool, os.DirFS("../../cmd/fundsync/migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	return NewPgStore(pool)
}

func TestPgUpsertCompanyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newPgTestStore(t)

	id, out, err := s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha"}, 202401)
	require.NoError(t, err)
	assert.Equal(t, Created, out)

	again, out, err := s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha"}, 202401)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, Unchanged, out)

	_, out, err = s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha Renamed"}, 202403)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	again, out, err = s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha"}, 202402)
	require.NoError(t, err)
	assert.Equal(t, id, again, "a gated row still resolves the id")
	assert.Equal(t, Unchanged, out)

	c, err := s.GetCompany(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Renamed", c.Name)
	assert.Equal(t, domain.Period(202403), c.NamePeriod)
}

func TestPgUpsertEmptyLabelsKeepStoredValues(t *testing.T) {
	ctx := context.Background()
	s := newPgTestStore(t)

	companyID, out, err := s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C9"}, 202401)
	require.NoError(t, err)
	assert.Equal(t, Created, out)
	c, err := s.GetCompany(ctx, "C9")
	require.NoError(t, err)
	assert.Equal(t, "C9", c.Name, "a new company without a name takes its id")

	_, out, err = s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C9", Name: "Real Co"}, 202402)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)
	_, out, err = s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C9"}, 202403)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	c, err = s.GetCompany(ctx, "C9")
	require.NoError(t, err)
	assert.Equal(t, "Real Co", c.Name)

	full := domain.FundKey{FundID: "F9", Name: "Real Fund", Category: "Provident", Specialization: "General", SubSpecialization: "Equity"}
	_, out, err = s.UpsertFund(ctx, companyID, full, 202401)
	require.NoError(t, err)
	assert.Equal(t, Created, out)

	_, out, err = s.UpsertFund(ctx, companyID, domain.FundKey{FundID: "F9"}, 202402)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)

	_, out, err = s.UpsertFund(ctx, companyID, domain.FundKey{FundID: "F9", Category: "Pension"}, 202403)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	f, err := s.GetFund(ctx, "F9")
	require.NoError(t, err)
	assert.Equal(t, "Real Fund", f.Name)
	assert.Equal(t, "Pension", f.Category)
	assert.Equal(t, "General", f.Specialization)
	assert.Equal(t, "Equity", f.SubSpecialization)
	assert.Equal(t, domain.Period(202403), f.LatestReportPeriod)
}

func TestPgUpsertSnapshotInsertThenOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newPgTestStore(t)

	companyID, _, err := s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha"}, 202403)
	require.NoError(t, err)
	fundID, _, err := s.UpsertFund(ctx, companyID, domain.FundKey{FundID: "F123", Name: "F123"}, 202403)
	require.NoError(t, err)

	snap := domain.SnapshotFields{
		Period: 202403,
		Metrics: domain.Metrics{
			NAV:               num("105.2"),
			MonthlyReturn:     num("0.025"),
			AvgAnnualReturn3Y: num("0.04"),
			TotalAssets:       num("1500.5"),
		},
	}
	out, err := s.UpsertSnapshot(ctx, fundID, snap)
	require.NoError(t, err)
	assert.Equal(t, Created, out)

	snap.Metrics.NAV = num("106")
	snap.Metrics.MonthlyReturn = decimal.NullDecimal{}
	out, err = s.UpsertSnapshot(ctx, fundID, snap)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	got, err := s.GetSnapshot(ctx, "F123", 202403)
	require.NoError(t, err)
	assert.True(t, got.Metrics.NAV.Decimal.Equal(decimal.NewFromInt(106)))
	assert.False(t, got.Metrics.MonthlyReturn.Valid)

	f, err := s.GetFund(ctx, "F123")
	require.NoError(t, err)
	require.True(t, f.ReturnRate.Valid)
	assert.True(t, f.ReturnRate.Decimal.Equal(decimal.RequireFromString("0.04")))
	assert.True(t, f.TotalAssets.Decimal.Equal(decimal.RequireFromString("1500.5")))
}

func TestPgSnapshotCheckConstraintIsInvalidRow(t *testing.T) {
	ctx := context.Background()
	s := newPgTestStore(t)

	companyID, _, err := s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha"}, 202403)
	require.NoError(t, err)
	fundID, _, err := s.UpsertFund(ctx, companyID, domain.FundKey{FundID: "F1", Name: "F1"}, 202403)
	require.NoError(t, err)

	_, err = s.UpsertSnapshot(ctx, fundID, domain.SnapshotFields{Period: 202413})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRow), "got %v", err)
}

func TestPgRefreshActiveAndStats(t *testing.T) {
	ctx := context.Background()
	s := newPgTestStore(t)

	companyID, _, err := s.UpsertCompany(ctx, domain.CompanyKey{LegalID: "C1", Name: "Alpha"}, 202403)
	require.NoError(t, err)
	for fund, period := range map[string]domain.Period{"F1": 202403, "F2": 202312} {
		id, _, err := s.UpsertFund(ctx, companyID, domain.FundKey{FundID: fund, Name: fund}, period)
		require.NoError(t, err)
		_, err = s.UpsertSnapshot(ctx, id, domain.SnapshotFields{Period: period, Metrics: domain.Metrics{AvgAnnualReturn5Y: num("0.05")}})
		require.NoError(t, err)
	}

	deactivated, reactivated, err := s.RefreshActive(ctx, 202401)
	require.NoError(t, err)
	assert.Equal(t, 1, deactivated)
	assert.Equal(t, 0, reactivated)

	stats, err := s.Stats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Companies)
	assert.Equal(t, 2, stats.Funds)
	assert.Equal(t, 1, stats.ActiveFunds)
	assert.Equal(t, 2, stats.Snapshots)
	assert.Equal(t, domain.Period(202403), stats.LatestReportPeriod)

	_, err = s.GetFund(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
