package store

import "fmt"

// statsQueries holds the report queries for one SQL dialect.
type statsQueries struct {
	totals       string
	topCompanies string
	topFunds     string
	periods      string
	aggregates   string
}

// newStatsQueries renders the queries with the dialect's LIMIT placeholder and the expression
// used to read a stored decimal as a number.
func newStatsQueries(limitParam string, numeric func(col string) string) statsQueries {
	return statsQueries{
		totals: `SELECT
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM funds),
			(SELECT COUNT(*) FROM funds WHERE active),
			(SELECT COUNT(*) FROM fund_snapshots),
			(SELECT COALESCE(MAX(report_period), 0) FROM fund_snapshots)`,
		topCompanies: fmt.Sprintf(`SELECT c.legal_id, c.name, COUNT(f.id) AS fund_count
			FROM companies c
			JOIN funds f ON f.company_id = c.id
			GROUP BY c.id, c.legal_id, c.name
			ORDER BY fund_count DESC, c.legal_id
			LIMIT %s`, limitParam),
		topFunds: fmt.Sprintf(`SELECT f.fund_id, f.name, COUNT(s.id) AS period_count
			FROM funds f
			JOIN fund_snapshots s ON s.fund_id = f.id
			GROUP BY f.id, f.fund_id, f.name
			ORDER BY period_count DESC, f.fund_id
			LIMIT %s`, limitParam),
		periods: fmt.Sprintf(`SELECT report_period, COUNT(*)
			FROM fund_snapshots
			GROUP BY report_period
			ORDER BY report_period DESC
			LIMIT %s`, limitParam),
		aggregates: fmt.Sprintf(`SELECT AVG(%[1]s), MAX(%[1]s), MIN(%[1]s), AVG(%[2]s)
			FROM funds
			WHERE active`, numeric("return_rate"), numeric("total_assets")),
	}
}

var (
	pgStats     = newStatsQueries("$1", func(col string) string { return col })
	sqliteStats = newStatsQueries("?", func(col string) string { return "CAST(" + col + " AS REAL)" })
)
