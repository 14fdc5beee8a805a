// Package pipeline runs one product export from authentication to storage.
package pipeline

import (
	"fmt"
	"time"
)

// State is a step of the export state machine.
type State string

const (
	StateAuthenticating State = "authenticating"
	StateFetching       State = "fetching"
	StateEnriching      State = "enriching"
	StateAssembling     State = "assembling"
	StateStoring        State = "storing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateError is the cause of a failed run and the state it failed in.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("export failed while %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// Step is one entry of the run's step log.
type Step struct {
	State      State  `json:"state"`
	DurationMs int64  `json:"durationMs"`
	Records    int    `json:"records,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`

	started time.Time
}
