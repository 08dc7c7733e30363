package diagnostic

import "time"

type State string

const (
	StateNoStatus State = "No Status"
	StatePass     State = "Pass"
	StateFail     State = "Fail"
)

func (s State) Valid() bool {
	switch s {
	case StateNoStatus, StatePass, StateFail:
		return true
	}
	return false
}

// Limits are the pass band for a diagnostic code. A nil bound is open.
type Limits struct {
	Lower *float64
	Upper *float64
}

// Contains reports whether v lies within the limits. Bounds are inclusive.
func (l Limits) Contains(v float64) bool {
	if l.Lower != nil && v < *l.Lower {
		return false
	}
	if l.Upper != nil && v > *l.Upper {
		return false
	}
	return true
}

// Reading is one acquisition result for a diagnostic code. Failure is empty
// when the read succeeded.
type Reading struct {
	Value   float64
	At      time.Time
	Failure string
}

func (r Reading) Failed() bool {
	return r.Failure != ""
}

// Snapshot is the last persisted evaluation of a code, fed back into the
// next evaluation.
type Snapshot struct {
	State        State
	HistoryCount int
	LastAlertAt  time.Time
}

// Transition is the result of evaluating one reading.
type Transition struct {
	State        State
	HistoryCount int
	AlertWorthy  bool
	Failure      string
	At           time.Time
}
