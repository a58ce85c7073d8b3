package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one unvalidated row from the source feed. Values are strings, json.Number,
// float64, bool or nil exactly as the feed delivered them.
type RawRecord map[string]any

// MetricField names a numeric snapshot column. The string value is the storage column name.
type MetricField string

const (
	MetricNAV                     MetricField = "nav"
	MetricMonthlyReturn           MetricField = "monthly_return"
	MetricYTDReturn               MetricField = "ytd_return"
	MetricReturn3Y                MetricField = "return_3y"
	MetricReturn5Y                MetricField = "return_5y"
	MetricAvgAnnualReturn3Y       MetricField = "avg_annual_return_3y"
	MetricAvgAnnualReturn5Y       MetricField = "avg_annual_return_5y"
	MetricTotalAssets             MetricField = "total_assets"
	MetricDeposits                MetricField = "deposits"
	MetricWithdrawals             MetricField = "withdrawals"
	MetricNetDeposits             MetricField = "net_deposits"
	MetricInternalTransfers       MetricField = "internal_transfers"
	MetricStandardDeviation       MetricField = "standard_deviation"
	MetricAlpha                   MetricField = "alpha"
	MetricSharpeRatio             MetricField = "sharpe_ratio"
	MetricLiquidAssetsShare       MetricField = "liquid_assets_share"
	MetricStockMarketExposure     MetricField = "stock_market_exposure"
	MetricForeignExposure         MetricField = "foreign_exposure"
	MetricForeignCurrencyExposure MetricField = "foreign_currency_exposure"
	MetricManagementFee           MetricField = "management_fee"
	MetricDepositFee              MetricField = "deposit_fee"
)

// MetricFields lists every snapshot metric in storage column order.
var MetricFields = []MetricField{
	MetricNAV,
	MetricMonthlyReturn,
	MetricYTDReturn,
	MetricReturn3Y,
	MetricReturn5Y,
	MetricAvgAnnualReturn3Y,
	MetricAvgAnnualReturn5Y,
	MetricTotalAssets,
	MetricDeposits,
	MetricWithdrawals,
	MetricNetDeposits,
	MetricInternalTransfers,
	MetricStandardDeviation,
	MetricAlpha,
	MetricSharpeRatio,
	MetricLiquidAssetsShare,
	MetricStockMarketExposure,
	MetricForeignExposure,
	MetricForeignCurrencyExposure,
	MetricManagementFee,
	MetricDepositFee,
}

// Metrics holds the numeric values of one monthly snapshot. Percent values are decimal
// fractions (0.025 for 2.5%). Invalid entries mean "not reported".
type Metrics struct {
	NAV                     decimal.NullDecimal `json:"nav"`
	MonthlyReturn           decimal.NullDecimal `json:"monthlyReturn"`
	YTDReturn               decimal.NullDecimal `json:"ytdReturn"`
	Return3Y                decimal.NullDecimal `json:"return3y"`
	Return5Y                decimal.NullDecimal `json:"return5y"`
	AvgAnnualReturn3Y       decimal.NullDecimal `json:"avgAnnualReturn3y"`
	AvgAnnualReturn5Y       decimal.NullDecimal `json:"avgAnnualReturn5y"`
	TotalAssets             decimal.NullDecimal `json:"totalAssets"`
	Deposits                decimal.NullDecimal `json:"deposits"`
	Withdrawals             decimal.NullDecimal `json:"withdrawals"`
	NetDeposits             decimal.NullDecimal `json:"netDeposits"`
	InternalTransfers       decimal.NullDecimal `json:"internalTransfers"`
	StandardDeviation       decimal.NullDecimal `json:"standardDeviation"`
	Alpha                   decimal.NullDecimal `json:"alpha"`
	SharpeRatio             decimal.NullDecimal `json:"sharpeRatio"`
	LiquidAssetsShare       decimal.NullDecimal `json:"liquidAssetsShare"`
	StockMarketExposure     decimal.NullDecimal `json:"stockMarketExposure"`
	ForeignExposure         decimal.NullDecimal `json:"foreignExposure"`
	ForeignCurrencyExposure decimal.NullDecimal `json:"foreignCurrencyExposure"`
	ManagementFee           decimal.NullDecimal `json:"managementFee"`
	DepositFee              decimal.NullDecimal `json:"depositFee"`
}

// Ref returns a pointer to the value stored for field, or nil for an unknown field.
func (m *Metrics) Ref(field MetricField) *decimal.NullDecimal {
	switch field {
	case MetricNAV:
		return &m.NAV
	case MetricMonthlyReturn:
		return &m.MonthlyReturn
	case MetricYTDReturn:
		return &m.YTDReturn
	case MetricReturn3Y:
		return &m.Return3Y
	case MetricReturn5Y:
		return &m.Return5Y
	case MetricAvgAnnualReturn3Y:
		return &m.AvgAnnualReturn3Y
	case MetricAvgAnnualReturn5Y:
		return &m.AvgAnnualReturn5Y
	case MetricTotalAssets:
		return &m.TotalAssets
	case MetricDeposits:
		return &m.Deposits
	case MetricWithdrawals:
		return &m.Withdrawals
	case MetricNetDeposits:
		return &m.NetDeposits
	case MetricInternalTransfers:
		return &m.InternalTransfers
	case MetricStandardDeviation:
		return &m.StandardDeviation
	case MetricAlpha:
		return &m.Alpha
	case MetricSharpeRatio:
		return &m.SharpeRatio
	case MetricLiquidAssetsShare:
		return &m.LiquidAssetsShare
	case MetricStockMarketExposure:
		return &m.StockMarketExposure
	case MetricForeignExposure:
		return &m.ForeignExposure
	case MetricForeignCurrencyExposure:
		return &m.ForeignCurrencyExposure
	case MetricManagementFee:
		return &m.ManagementFee
	case MetricDepositFee:
		return &m.DepositFee
	default:
		return nil
	}
}

// Values returns the metrics in MetricFields order.
func (m Metrics) Values() []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, len(MetricFields))
	for i, f := range MetricFields {
		out[i] = *m.Ref(f)
	}
	return out
}

// ReturnRate is the headline return cached on a fund: the 5y average annual return,
// falling back to the 3y one.
func (m Metrics) ReturnRate() decimal.NullDecimal {
	if m.AvgAnnualReturn5Y.Valid {
		return m.AvgAnnualReturn5Y
	}
	return m.AvgAnnualReturn3Y
}

// CompanyKey identifies the management company of a normalized record.
type CompanyKey struct {
	LegalID string `json:"legalId"`
	Name    string `json:"name"`
}

// FundKey carries the identifier and static attributes of a fund as seen in one record.
type FundKey struct {
	FundID            string     `json:"fundId"`
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	Specialization    string     `json:"specialization"`
	SubSpecialization string     `json:"subSpecialization"`
	InceptionDate     *time.Time `json:"inceptionDate,omitempty"`
}

// SnapshotFields is the monthly part of a normalized record.
type SnapshotFields struct {
	Period  Period  `json:"period"`
	Metrics Metrics `json:"metrics"`
}

// Record is the strongly typed result of normalizing one raw feed row.
type Record struct {
	Company  CompanyKey     `json:"company"`
	Fund     FundKey        `json:"fund"`
	Snapshot SnapshotFields `json:"snapshot"`
}

// Company is a stored management company.
type Company struct {
	ID         int64     `json:"id"`
	LegalID    string    `json:"legalId"`
	Name       string    `json:"name"`
	NamePeriod Period    `json:"namePeriod"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Fund is a stored investment vehicle. Funds are never deleted, only deactivated.
type Fund struct {
	ID                 int64               `json:"id"`
	FundID             string              `json:"fundId"`
	CompanyID          int64               `json:"companyId"`
	Name               string              `json:"name"`
	Category           string              `json:"category"`
	Specialization     string              `json:"specialization"`
	SubSpecialization  string              `json:"subSpecialization"`
	InceptionDate      *time.Time          `json:"inceptionDate,omitempty"`
	Active             bool                `json:"active"`
	LatestReportPeriod Period              `json:"latestReportPeriod"`
	ReturnRate         decimal.NullDecimal `json:"returnRate"`
	TotalAssets        decimal.NullDecimal `json:"totalAssets"`
	ManagementFee      decimal.NullDecimal `json:"managementFee"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// FundSnapshot is one fund's metrics for one report month.
type FundSnapshot struct {
	ID        int64     `json:"id"`
	FundID    int64     `json:"fundId"`
	Period    Period    `json:"period"`
	Metrics   Metrics   `json:"metrics"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
