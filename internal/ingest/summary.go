package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jetpo/fundsync/internal/domain"
)

// Counts tallies the rows of a mode or a whole run. Every fetched row ends up in exactly one of
// Created, Updated, Skipped or Failed.
type Counts struct {
	Rows    int `json:"rows"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	CompaniesCreated int `json:"companiesCreated"`
	CompaniesUpdated int `json:"companiesUpdated"`
	FundsCreated     int `json:"fundsCreated"`
	FundsUpdated     int `json:"fundsUpdated"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Rows += o.Rows
	c.Created += o.Created
	c.Updated += o.Updated
	c.Skipped += o.Skipped
	c.Failed += o.Failed
	c.CompaniesCreated += o.CompaniesCreated
	c.CompaniesUpdated += o.CompaniesUpdated
	c.FundsCreated += o.FundsCreated
	c.FundsUpdated += o.FundsUpdated
}

// Balanced reports whether every row is accounted for.
func (c Counts) Balanced() bool {
	return c.Rows == c.Created+c.Updated+c.Skipped+c.Failed
}

// ModeSummary describes the import of one feed mode.
type ModeSummary struct {
	Mode domain.Mode `json:"mode"`
	Counts
	Pages int `json:"pages"`
	// LastOffset is the feed position after the last processed row.
	LastOffset int           `json:"lastOffset"`
	FeedTotal  int           `json:"feedTotal"`
	MaxPeriod  domain.Period `json:"maxPeriod"`
	Complete   bool          `json:"complete"`
	Duration   time.Duration `json:"duration"`
}

// Summary is the outcome of one Import call. It is returned even when the run failed.
type Summary struct {
	RunID       uuid.UUID     `json:"runId"`
	Source      domain.Source `json:"source"`
	State       State         `json:"state"`
	Modes       []ModeSummary `json:"modes"`
	Total       Counts        `json:"total"`
	Deactivated int           `json:"deactivated"`
	Reactivated int           `json:"reactivated"`
	Duration    time.Duration `json:"duration"`
}

// Mode returns the summary of mode, if it ran.
func (s *Summary) Mode(mode domain.Mode) (ModeSummary, bool) {
	for _, m := range s.Modes {
		if m.Mode == mode {
			return m, true
		}
	}
	return ModeSummary{}, false
}

// RunError reports an import that stopped early. Rows before Offset are committed; re-running
// the import is safe.
type RunError struct {
	RunID  uuid.UUID
	Mode   domain.Mode
	Offset int
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("import run %s: %s stopped at offset %d: %v", e.RunID, e.Mode, e.Offset, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
