package diagnostic

import (
	"fmt"
	"time"
)

// Machine evaluates readings against limits. It holds no per-code state and
// performs no I/O; callers own persistence and alert submission.
type Machine struct {
	repeatAlert time.Duration
}

// NewMachine returns a machine with the given repeat-alert interval.
// A zero interval disables re-alerting for sustained failures.
func NewMachine(repeatAlert time.Duration) *Machine {
	return &Machine{repeatAlert: repeatAlert}
}

// Evaluate classifies one reading. A failed reading maps to Fail with the
// connector's failure description; a successful reading is Pass when the
// value lies within the limits (inclusive) and Fail otherwise. Consecutive
// Fail evaluations increment the history count, any Pass resets it.
//
// AlertWorthy is set on the transition into Fail from any other state, and
// again while Fail persists once the repeat-alert interval has elapsed since
// the last alert.
func (m *Machine) Evaluate(prev Snapshot, r Reading, limits Limits) Transition {
	t := Transition{At: r.At}

	switch {
	case r.Failed():
		t.State = StateFail
		t.Failure = r.Failure
	case limits.Contains(r.Value):
		t.State = StatePass
	default:
		t.State = StateFail
		t.Failure = fmt.Sprintf("value %g outside limits %s", r.Value, formatLimits(limits))
	}

	if t.State == StatePass {
		t.HistoryCount = 0
		return t
	}

	t.HistoryCount = prev.HistoryCount + 1

	if prev.State != StateFail {
		t.AlertWorthy = true
		return t
	}
	if m.repeatAlert > 0 {
		if prev.LastAlertAt.IsZero() || r.At.Sub(prev.LastAlertAt) >= m.repeatAlert {
			t.AlertWorthy = true
		}
	}
	return t
}

// Stale produces the NoStatus transition for a code whose readings stopped
// arriving. History is preserved and no alert is raised; only Fail
// transitions alert.
func (m *Machine) Stale(prev Snapshot, at time.Time, reason string) Transition {
	return Transition{
		State:        StateNoStatus,
		HistoryCount: prev.HistoryCount,
		Failure:      reason,
		At:           at,
	}
}

func formatLimits(l Limits) string {
	lower, upper := "-inf", "+inf"
	if l.Lower != nil {
		lower = fmt.Sprintf("%g", *l.Lower)
	}
	if l.Upper != nil {
		upper = fmt.Sprintf("%g", *l.Upper)
	}
	return fmt.Sprintf("[%s, %s]", lower, upper)
}
