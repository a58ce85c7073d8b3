// Package normalize is the single validation boundary between loosely shaped feed rows and
// the typed records the rest of the pipeline works with.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jetpo/fundsync/internal/domain"
)

// ValidationError reports a row that cannot be normalized. Such rows are skipped and counted.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, toText(e.Value), e.Reason)
}

// percentFields are metrics the feed reports in percent units (1.5 means 1.5%).
var percentFields = map[domain.MetricField]bool{
	domain.MetricMonthlyReturn:     true,
	domain.MetricYTDReturn:         true,
	domain.MetricReturn3Y:          true,
	domain.MetricReturn5Y:          true,
	domain.MetricAvgAnnualReturn3Y: true,
	domain.MetricAvgAnnualReturn5Y: true,
	domain.MetricStandardDeviation: true,
	domain.MetricAlpha:             true,
	domain.MetricLiquidAssetsShare: true,
	domain.MetricManagementFee:     true,
	domain.MetricDepositFee:        true,
}

// Normalizer maps raw feed rows to domain records.
type Normalizer struct {
	fields  FieldMap
	minYear int
	maxYear int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithFieldMap replaces the default field map.
func WithFieldMap(fm FieldMap) Option {
	return func(n *Normalizer) { n.fields = fm }
}

// WithYearRange sets the inclusive range of plausible report years.
func WithYearRange(minYear, maxYear int) Option {
	return func(n *Normalizer) {
		n.minYear = minYear
		n.maxYear = maxYear
	}
}

// New creates a Normalizer using the Gemelnet field map and the 1999-2025 report year range.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		fields:  DefaultFieldMap(),
		minYear: 1999,
		maxYear: 2025,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates one raw row and returns the typed record, or a *ValidationError.
func (n *Normalizer) Normalize(raw domain.RawRecord) (domain.Record, error) {
	row := lowerKeys(raw)
	var rec domain.Record

	rec.Fund.FundID = toText(n.lookup(row, FieldFundID))
	if rec.Fund.FundID == "" {
		return domain.Record{}, &ValidationError{Field: FieldFundID, Reason: "missing"}
	}
	rec.Company.LegalID = toText(n.lookup(row, FieldCompanyID))
	if rec.Company.LegalID == "" {
		return domain.Record{}, &ValidationError{Field: FieldCompanyID, Reason: "missing"}
	}

	periodRaw := n.lookup(row, FieldReportPeriod)
	period, err := parsePeriod(periodRaw)
	if err != nil {
		if errors.Is(err, errEmpty) {
			return domain.Record{}, &ValidationError{Field: FieldReportPeriod, Reason: "missing"}
		}
		return domain.Record{}, &ValidationError{Field: FieldReportPeriod, Value: periodRaw, Reason: err.Error()}
	}
	if !period.Valid() {
		return domain.Record{}, &ValidationError{Field: FieldReportPeriod, Value: periodRaw, Reason: "month out of range"}
	}
	if period.Year() < n.minYear || period.Year() > n.maxYear {
		return domain.Record{}, &ValidationError{
			Field:  FieldReportPeriod,
			Value:  periodRaw,
			Reason: fmt.Sprintf("year outside %d-%d", n.minYear, n.maxYear),
		}
	}
	rec.Snapshot.Period = period

	// Absent names and labels stay empty; the store falls back to the id only for new rows.
	rec.Company.Name = toText(n.lookup(row, FieldCompanyName))
	rec.Fund.Name = toText(n.lookup(row, FieldFundName))
	rec.Fund.Category = toText(n.lookup(row, FieldCategory))
	rec.Fund.Specialization = toText(n.lookup(row, FieldSpecialization))
	rec.Fund.SubSpecialization = toText(n.lookup(row, FieldSubSpecialization))
	if d, ok := parseDate(n.lookup(row, FieldInceptionDate)); ok {
		rec.Fund.InceptionDate = d
	}

	for _, field := range domain.MetricFields {
		v := n.lookup(row, string(field))
		value, err := n.metric(field, v)
		if err != nil {
			return domain.Record{}, &ValidationError{Field: string(field), Value: v, Reason: err.Error()}
		}
		*rec.Snapshot.Metrics.Ref(field) = value
	}

	return rec, nil
}

// metric parses a metric value and converts percentages to fractions.
func (n *Normalizer) metric(field domain.MetricField, v any) (decimal.NullDecimal, error) {
	d, isPercent, err := parseNumber(v)
	if errors.Is(err, errEmpty) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if isPercent || percentFields[field] {
		d = d.Div(hundred)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// lookup returns the first non-nil value among the field's candidate keys.
func (n *Normalizer) lookup(row map[string]any, field string) any {
	for _, key := range n.fields.candidates(field) {
		if v, ok := row[strings.ToLower(key)]; ok && v != nil {
			return v
		}
	}
	return nil
}

func lowerKeys(raw domain.RawRecord) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
