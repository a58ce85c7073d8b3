package ingest

import (
	"sync"

	"github.com/jetpo/fundsync/internal/domain"
)

type companyEntry struct {
	id     int64
	name   string
	period domain.Period
}

// companyCache remembers the last company state this run wrote, keyed by legal id.
type companyCache struct {
	mu      sync.RWMutex
	entries map[string]companyEntry
}

func newCompanyCache() *companyCache {
	return &companyCache{entries: make(map[string]companyEntry)}
}

// lookup returns the stored id when writing key at period could not change the stored row.
func (c *companyCache) lookup(key domain.CompanyKey, period domain.Period) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.LegalID]
	if !ok {
		return 0, false
	}
	if period < e.period || (period == e.period && sameLabel(key.Name, e.name)) {
		return e.id, true
	}
	return 0, false
}

func (c *companyCache) set(key domain.CompanyKey, period domain.Period, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key.LegalID]; ok && e.period > period {
		return
	}
	c.entries[key.LegalID] = companyEntry{id: id, name: key.Name, period: period}
}

type fundEntry struct {
	id        int64
	companyID int64
	key       domain.FundKey
	period    domain.Period
}

// fundCache remembers the last fund state this run wrote, keyed by fund id.
type fundCache struct {
	mu      sync.RWMutex
	entries map[string]fundEntry
}

func newFundCache() *fundCache {
	return &fundCache{entries: make(map[string]fundEntry)}
}

func (c *fundCache) lookup(companyID int64, key domain.FundKey, period domain.Period) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.FundID]
	if !ok {
		return 0, false
	}
	if period < e.period || (period == e.period && companyID == e.companyID && sameFund(key, e.key)) {
		return e.id, true
	}
	return 0, false
}

func (c *fundCache) set(companyID int64, key domain.FundKey, period domain.Period, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key.FundID]; ok && e.period > period {
		return
	}
	c.entries[key.FundID] = fundEntry{id: id, companyID: companyID, key: key, period: period}
}

func sameFund(a, b domain.FundKey) bool {
	if !sameLabel(a.Name, b.Name) || !sameLabel(a.Category, b.Category) ||
		!sameLabel(a.Specialization, b.Specialization) || !sameLabel(a.SubSpecialization, b.SubSpecialization) {
		return false
	}
	switch {
	case a.InceptionDate == nil:
		// A missing date never overwrites a stored one.
		return true
	case b.InceptionDate == nil:
		return false
	default:
		return a.InceptionDate.Equal(*b.InceptionDate)
	}
}

// sameLabel reports whether writing incoming over cached leaves the label as it is. An empty
// incoming label is never written.
func sameLabel(incoming, cached string) bool {
	return incoming == "" || incoming == cached
}
