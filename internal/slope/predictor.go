package slope

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoConvergence means the resolved seasonal slope cannot move the value
// toward the target: the rate is zero or has the wrong sign.
var ErrNoConvergence = errors.New("no convergence toward target")

// Prediction is a resolved time-to-target estimate. TimeToTarget carries the
// unit the slopes are expressed in (value units per time unit).
type Prediction struct {
	ConfigID     uuid.UUID
	Season       Season
	Slope        float64
	TimeToTarget float64
}

// UrgentWithin reports whether the target is expected to be reached inside
// the given window.
func (p *Prediction) UrgentWithin(window float64) bool {
	return p.TimeToTarget <= window
}

// PredictTimeToTarget resolves the slope configuration for the current value
// and estimates (target - current) / slope. The rising slope is used when
// the target lies above the current value, the falling slope otherwise. A
// zero or sign-incompatible slope yields ErrNoConvergence; resolution
// failures (ErrUnconfigured, ErrOverlappingRanges) pass through and mean
// "prediction unavailable".
func (r *Resolver) PredictTimeToTarget(roomID *uuid.UUID, kind Kind, current, target float64, date time.Time) (*Prediction, error) {
	res, err := r.Resolve(roomID, kind, current, date)
	if err != nil {
		return nil, err
	}

	delta := target - current
	if delta == 0 {
		// already at target
		return &Prediction{ConfigID: res.Config.ID, Season: res.Season}, nil
	}

	rate := res.Config.Slope(res.Season, delta > 0)
	if rate == 0 || (delta > 0) != (rate > 0) {
		return nil, fmt.Errorf("%s slope %g for delta %g: %w", res.Season, rate, delta, ErrNoConvergence)
	}

	return &Prediction{
		ConfigID:     res.Config.ID,
		Season:       res.Season,
		Slope:        rate,
		TimeToTarget: delta / rate,
	}, nil
}
