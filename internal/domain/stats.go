package domain

import "github.com/shopspring/decimal"

// CompanyFundCount is a company with the number of funds it manages.
type CompanyFundCount struct {
	LegalID   string `json:"legalId"`
	Name      string `json:"name"`
	FundCount int    `json:"fundCount"`
}

// FundPeriodCount is a fund with the number of stored monthly snapshots.
type FundPeriodCount struct {
	FundID      string `json:"fundId"`
	Name        string `json:"name"`
	PeriodCount int    `json:"periodCount"`
}

// PeriodCount is the number of snapshots stored for one report period.
type PeriodCount struct {
	Period    Period `json:"period"`
	Snapshots int    `json:"snapshots"`
}

// SyncStats summarizes the stored fund data after a sync.
type SyncStats struct {
	Companies          int                 `json:"companies"`
	Funds              int                 `json:"funds"`
	ActiveFunds        int                 `json:"activeFunds"`
	Snapshots          int                 `json:"snapshots"`
	TopCompanies       []CompanyFundCount  `json:"topCompanies"`
	TopFunds           []FundPeriodCount   `json:"topFunds"`
	Periods            []PeriodCount       `json:"periods"`
	AvgReturn5Y        decimal.NullDecimal `json:"avgReturn5y"`
	MaxReturn5Y        decimal.NullDecimal `json:"maxReturn5y"`
	MinReturn5Y        decimal.NullDecimal `json:"minReturn5y"`
	AvgTotalAssets     decimal.NullDecimal `json:"avgTotalAssets"`
	LatestReportPeriod Period              `json:"latestReportPeriod"`
}
