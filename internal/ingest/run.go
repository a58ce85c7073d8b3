package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jetpo/fundsync/internal/domain"
)

// State is the lifecycle position of an import run.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateUpserting   State = "upserting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// transitions lists the allowed successors of each state. Failed is handled separately:
// it is reachable from every non-terminal state.
var transitions = map[State][]State{
	StateIdle:        {StateFetching},
	StateFetching:    {StateNormalizing, StateDone},
	StateNormalizing: {StateUpserting},
	StateUpserting:   {StateFetching},
}

func (s State) terminal() bool { return s == StateDone || s == StateFailed }

// Run is the context object of one import invocation. It carries the run id, the state machine
// and the caches that deduplicate company and fund writes within the run. Nothing about a run
// outlives it.
type Run struct {
	ID        uuid.UUID
	Source    domain.Source
	StartedAt time.Time

	mu    sync.Mutex
	state State

	companies *companyCache
	funds     *fundCache
}

// NewRun creates an idle run for source.
func NewRun(source domain.Source) *Run {
	return &Run{
		ID:        uuid.New(),
		Source:    source,
		StartedAt: time.Now(),
		state:     StateIdle,
		companies: newCompanyCache(),
		funds:     newFundCache(),
	}
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// transition moves the run to next or reports an illegal move.
func (r *Run) transition(next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.terminal() {
		return fmt.Errorf("run %s: transition %s -> %s: run already finished", r.ID, r.state, next)
	}
	if next == StateFailed {
		r.state = next
		return nil
	}
	for _, allowed := range transitions[r.state] {
		if allowed == next {
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("run %s: illegal transition %s -> %s", r.ID, r.state, next)
}

// fail marks the run failed unless it already finished.
func (r *Run) fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.terminal() {
		r.state = StateFailed
	}
}
