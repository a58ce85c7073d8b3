package ingest

import (
	"testing"

	"github.com/google/uuid"

	"github.com/jetpo/fundsync/internal/domain"
)

func TestRunTransitions(t *testing.T) {
	r := NewRun(domain.SourceBoth)
	if r.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", r.State())
	}
	if r.ID == uuid.Nil {
		t.Error("run id not assigned")
	}

	path := []State{StateFetching, StateNormalizing, StateUpserting, StateFetching, StateNormalizing, StateUpserting, StateFetching, StateDone}
	for _, next := range path {
		if err := r.transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if r.State() != StateDone {
		t.Errorf("state = %s, want done", r.State())
	}
	if err := r.transition(StateFetching); err == nil {
		t.Error("expected error leaving a terminal state")
	}
}

func TestRunIllegalTransitions(t *testing.T) {
	tests := []struct {
		from []State
		to   State
	}{
		{nil, StateUpserting},
		{nil, StateDone},
		{[]State{StateFetching}, StateUpserting},
		{[]State{StateFetching, StateNormalizing}, StateDone},
		{[]State{StateFetching, StateNormalizing, StateUpserting}, StateDone},
	}
	for _, tt := range tests {
		r := NewRun(domain.SourceRecent)
		for _, s := range tt.from {
			if err := r.transition(s); err != nil {
				t.Fatalf("setup transition to %s: %v", s, err)
			}
		}
		if err := r.transition(tt.to); err == nil {
			t.Errorf("%v -> %s: expected error", tt.from, tt.to)
		}
	}
}

func TestRunFailFromAnyNonTerminalState(t *testing.T) {
	for _, prefix := range [][]State{nil, {StateFetching}, {StateFetching, StateNormalizing}, {StateFetching, StateNormalizing, StateUpserting}} {
		r := NewRun(domain.SourceRecent)
		for _, s := range prefix {
			if err := r.transition(s); err != nil {
				t.Fatal(err)
			}
		}
		r.fail()
		if r.State() != StateFailed {
			t.Errorf("after %v: state = %s, want failed", prefix, r.State())
		}
	}

	done := NewRun(domain.SourceRecent)
	_ = done.transition(StateFetching)
	_ = done.transition(StateDone)
	done.fail()
	if done.State() != StateDone {
		t.Errorf("fail() changed a finished run to %s", done.State())
	}
}

func TestRunsHaveDistinctIDs(t *testing.T) {
	if NewRun(domain.SourceRecent).ID == NewRun(domain.SourceRecent).ID {
		t.Error("run ids must be unique")
	}
}
