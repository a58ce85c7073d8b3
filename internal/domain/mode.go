package domain

import "fmt"

// Mode selects which window of the source feed to import.
type Mode string

const (
	ModeRecent     Mode = "recent"
	ModeHistorical Mode = "historical"
)

// Source is the operator-facing selection: a single mode or both.
type Source string

const (
	SourceRecent     Source = "recent"
	SourceHistorical Source = "historical"
	SourceBoth       Source = "both"
)

// ParseSource validates an operator supplied source value.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceRecent, SourceHistorical, SourceBoth:
		return Source(s), nil
	default:
		return "", fmt.Errorf("invalid source %q: must be one of recent, historical, both", s)
	}
}

// Modes expands a source into the ordered list of modes to run. Both runs recent first.
func (s Source) Modes() []Mode {
	switch s {
	case SourceRecent:
		return []Mode{ModeRecent}
	case SourceHistorical:
		return []Mode{ModeHistorical}
	case SourceBoth:
		return []Mode{ModeRecent, ModeHistorical}
	default:
		return nil
	}
}
