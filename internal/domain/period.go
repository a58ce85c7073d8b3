package domain

import "fmt"

// Period is a report month encoded as YYYYMM (e.g. 202403), matching the feed's REPORT_PERIOD.
type Period int

// NewPeriod builds a Period from a year and a month (1-12).
func NewPeriod(year, month int) Period {
	return Period(year*100 + month)
}

// Year returns the calendar year of the period.
func (p Period) Year() int { return int(p) / 100 }

// Month returns the calendar month (1-12) of the period.
func (p Period) Month() int { return int(p) % 100 }

// Valid reports whether the month part is in 1..12 and the year is positive.
func (p Period) Valid() bool {
	return p.Year() > 0 && p.Month() >= 1 && p.Month() <= 12
}

// AddMonths shifts the period by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	total := p.Year()*12 + (p.Month() - 1) + n
	return NewPeriod(total/12, total%12+1)
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year(), p.Month())
}
