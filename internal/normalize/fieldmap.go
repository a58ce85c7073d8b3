package normalize

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/jetpo/fundsync/internal/domain"
)

// Canonical names of the non-metric fields. Metric fields use their domain.MetricField name.
const (
	FieldFundID            = "fund_id"
	FieldFundName          = "fund_name"
	FieldCompanyID         = "company_id"
	FieldCompanyName       = "company_name"
	FieldReportPeriod      = "report_period"
	FieldCategory          = "category"
	FieldSpecialization    = "specialization"
	FieldSubSpecialization = "sub_specialization"
	FieldInceptionDate     = "inception_date"
)

// FieldMap maps a canonical field name to the source keys that may carry it, in priority order.
// Keys are matched case-insensitively.
type FieldMap map[string][]string

// DefaultFieldMap covers the Gemelnet datastore column names and the short lowercase names.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		FieldFundID:            {"FUND_ID", "fund"},
		FieldFundName:          {"FUND_NAME", "name"},
		FieldCompanyID:         {"MANAGING_CORPORATION_LEGAL_ID", "company"},
		FieldCompanyName:       {"MANAGING_CORPORATION"},
		FieldReportPeriod:      {"REPORT_PERIOD", "month", "period"},
		FieldCategory:          {"FUND_CLASSIFICATION", "type"},
		FieldSpecialization:    {"SPECIALIZATION"},
		FieldSubSpecialization: {"SUB_SPECIALIZATION"},
		FieldInceptionDate:     {"INCEPTION_DATE"},

		string(domain.MetricNAV):                     {"NAV", "net_asset_value"},
		string(domain.MetricMonthlyReturn):           {"MONTHLY_YIELD", "return_1m"},
		string(domain.MetricYTDReturn):               {"YEAR_TO_DATE_YIELD", "return_ytd"},
		string(domain.MetricReturn3Y):                {"YIELD_TRAILING_3_YRS", "return_3yr"},
		string(domain.MetricReturn5Y):                {"YIELD_TRAILING_5_YRS", "return_5yr"},
		string(domain.MetricAvgAnnualReturn3Y):       {"AVG_ANNUAL_YIELD_TRAILING_3YRS"},
		string(domain.MetricAvgAnnualReturn5Y):       {"AVG_ANNUAL_YIELD_TRAILING_5YRS"},
		string(domain.MetricTotalAssets):             {"TOTAL_ASSETS"},
		string(domain.MetricDeposits):                {"DEPOSITS"},
		string(domain.MetricWithdrawals):             {"WITHDRAWLS", "WITHDRAWALS"},
		string(domain.MetricNetDeposits):             {"NET_MONTHLY_DEPOSITS"},
		string(domain.MetricInternalTransfers):       {"INTERNAL_TRANSFERS"},
		string(domain.MetricStandardDeviation):       {"STANDARD_DEVIATION"},
		string(domain.MetricAlpha):                   {"ALPHA"},
		string(domain.MetricSharpeRatio):             {"SHARPE_RATIO"},
		string(domain.MetricLiquidAssetsShare):       {"LIQUID_ASSETS_PERCENT"},
		string(domain.MetricStockMarketExposure):     {"STOCK_MARKET_EXPOSURE"},
		string(domain.MetricForeignExposure):         {"FOREIGN_EXPOSURE"},
		string(domain.MetricForeignCurrencyExposure): {"FOREIGN_CURRENCY_EXPOSURE"},
		string(domain.MetricManagementFee):           {"AVG_ANNUAL_MANAGEMENT_FEE"},
		string(domain.MetricDepositFee):              {"AVG_DEPOSIT_FEE"},
	}
}

// knownFields is every canonical name a FieldMap may use.
func knownFields() []string {
	names := []string{
		FieldFundID, FieldFundName, FieldCompanyID, FieldCompanyName, FieldReportPeriod,
		FieldCategory, FieldSpecialization, FieldSubSpecialization, FieldInceptionDate,
	}
	for _, f := range domain.MetricFields {
		names = append(names, string(f))
	}
	return names
}

// Merge returns a copy of m where the aliases in extra take priority over the existing ones.
func (m FieldMap) Merge(extra FieldMap) FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		out[k] = lo.Uniq(append(append([]string(nil), v...), out[k]...))
	}
	return out
}

// candidates returns the keys to try for a canonical field: its aliases, then the canonical name itself.
func (m FieldMap) candidates(field string) []string {
	return append(append([]string(nil), m[field]...), field)
}

type fieldMapFile struct {
	Fields FieldMap `yaml:"fields"`
}

// LoadFieldMap reads extra aliases from a YAML file and merges them over the defaults:
//
//	fields:
//	  fund_id: [FUND_NUMBER]
//	  nav: [UNIT_PRICE]
//
// An empty path returns the defaults.
func LoadFieldMap(path string) (FieldMap, error) {
	defaults := DefaultFieldMap()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading field map: %w", err)
	}

	var file fieldMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing field map: %w", err)
	}

	known := knownFields()
	for name := range file.Fields {
		if !lo.Contains(known, name) {
			return nil, fmt.Errorf("field map: unknown field %q", name)
		}
	}

	return defaults.Merge(file.Fields), nil
}
