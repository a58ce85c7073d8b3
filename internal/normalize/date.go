package normalize

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jetpo/fundsync/internal/domain"
)

var periodLayouts = []string{
	"2006-01",
	"2006/01",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/2006",
	"1/2006",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
}

// parsePeriod reads a report month from the numeric YYYYMM form or from common date layouts.
func parsePeriod(v any) (domain.Period, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return 0, errEmpty
	case json.Number:
		s = t.String()
	case float64:
		if t != float64(int64(t)) {
			return 0, errors.New("not a whole number")
		}
		s = strconv.FormatInt(int64(t), 10)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, errors.New("unsupported type")
	}

	if s == "" {
		return 0, errEmpty
	}

	if isDigits(s) {
		switch len(s) {
		case 6, 8:
			year, _ := strconv.Atoi(s[:4])
			month, _ := strconv.Atoi(s[4:6])
			return domain.NewPeriod(year, month), nil
		default:
			return 0, errors.New("expected YYYYMM")
		}
	}

	for _, layout := range periodLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return domain.NewPeriod(ts.Year(), int(ts.Month())), nil
		}
	}
	return 0, errors.New("unrecognized period format")
}

// parseDate reads a calendar date. Unparseable values return false.
func parseDate(v any) (*time.Time, bool) {
	s := toText(v)
	if s == "" {
		return nil, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			d := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
			return &d, true
		}
	}
	return nil, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
