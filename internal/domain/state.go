package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownState = errors.New("unknown event state")

// EventState is a todo keyword such as TODO or DONE. Names vary between
// sources so it is not an enum.
type EventState struct {
	Name string
	Open bool
}

func (s EventState) String() string {
	return s.Name
}

// StateTable classifies state names into open and closed.
type StateTable struct {
	open   map[string]bool
	closed map[string]bool
}

// DefaultStates is the classification used when a source configures none.
func DefaultStates() *StateTable {
	return NewStateTable(
		[]string{"TODO", "DELEGATED", "BLOCKED"},
		[]string{"DONE", "CANCELLED"},
	)
}

func NewStateTable(open, closed []string) *StateTable {
	t := &StateTable{
		open:   make(map[string]bool, len(open)),
		closed: make(map[string]bool, len(closed)),
	}
	for _, name := range open {
		t.open[strings.ToUpper(strings.TrimSpace(name))] = true
	}
	for _, name := range closed {
		t.closed[strings.ToUpper(strings.TrimSpace(name))] = true
	}
	return t
}

// Lookup returns the state for name. Unknown names are an error.
func (t *StateTable) Lookup(name string) (*EventState, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case t.open[key]:
		return &EventState{Name: key, Open: true}, nil
	case t.closed[key]:
		return &EventState{Name: key, Open: false}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
}
