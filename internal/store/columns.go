package store

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/jetpo/fundsync/internal/domain"
)

// metricColumns are the snapshot metric columns in domain.MetricFields order.
var metricColumns = lo.Map(domain.MetricFields, func(f domain.MetricField, _ int) string {
	return string(f)
})

func metricArgs(m domain.Metrics) []any {
	return lo.Map(m.Values(), func(v decimal.NullDecimal, _ int) any { return v })
}

func metricDest(m *domain.Metrics) []any {
	return lo.Map(domain.MetricFields, func(f domain.MetricField, _ int) any { return m.Ref(f) })
}

// placeholders renders n bind parameters starting at from, either as $n or as ?.
func placeholders(from, n int, numbered bool) string {
	parts := make([]string, n)
	for i := range parts {
		if numbered {
			parts[i] = fmt.Sprintf("$%d", from+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

func snapshotSelectColumns(prefix string) string {
	cols := lo.Map(metricColumns, func(c string, _ int) string { return prefix + c })
	return strings.Join(cols, ", ")
}
