package slope

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnconfigured means no configuration of the requested kind covers
	// the value, neither room-scoped nor general. Callers must treat this
	// as "prediction unavailable", never as zero.
	ErrUnconfigured = errors.New("no slope configuration covers the value")

	// ErrOverlappingRanges marks a configuration-integrity violation:
	// more than one range in the same scope matches the value.
	ErrOverlappingRanges = errors.New("overlapping slope configuration ranges")
)

type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
)

// SeasonPair holds the two signed rates for one season: Positive is the
// expected rate while the value climbs, Negative while it falls. Negative
// rates are stored as negative numbers.
type SeasonPair struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
}

// Configuration is one slope table row. A nil RoomID makes it a general
// configuration used as fallback for every room. Range is [Min, Max).
type Configuration struct {
	ID     uuid.UUID  `json:"id"`
	Kind   Kind       `json:"kind"`
	RoomID *uuid.UUID `json:"room_id,omitempty"`
	Min    float64    `json:"min_value"`
	Max    float64    `json:"max_value"`
	Summer SeasonPair `json:"summer"`
	Fall   SeasonPair `json:"fall"`
	Winter SeasonPair `json:"winter"`
	Spring SeasonPair `json:"spring"`
}

// Contains reports whether v lies in [Min, Max).
func (c *Configuration) Contains(v float64) bool {
	return v >= c.Min && v < c.Max
}

func (c *Configuration) pair(s Season) SeasonPair {
	switch s {
	case SeasonSummer:
		return c.Summer
	case SeasonFall:
		return c.Fall
	case SeasonWinter:
		return c.Winter
	default:
		return c.Spring
	}
}

// Slope returns the seasonal rate for the requested direction.
func (c *Configuration) Slope(s Season, rising bool) float64 {
	p := c.pair(s)
	if rising {
		return p.Positive
	}
	return p.Negative
}

// Resolution is a successful lookup: the winning configuration and the
// season it was resolved for.
type Resolution struct {
	Config *Configuration
	Season Season
}

// Resolver answers slope lookups against a configuration snapshot. The
// snapshot is read-only; reloading is the caller's concern.
type Resolver struct {
	configs []Configuration
}

func NewResolver(configs []Configuration) *Resolver {
	return &Resolver{configs: configs}
}

// Resolve picks the configuration for (room, kind, value, date). A
// room-scoped configuration wins over a general one covering the same
// value. Multiple matching ranges within one scope are an integrity
// violation and fail the resolution rather than picking arbitrarily.
func (r *Resolver) Resolve(roomID *uuid.UUID, kind Kind, value float64, date time.Time) (*Resolution, error) {
	season := SeasonOf(date)

	var roomMatches, generalMatches []*Configuration
	for i := range r.configs {
		c := &r.configs[i]
		if c.Kind != kind || !c.Contains(value) {
			continue
		}
		if c.RoomID == nil {
			generalMatches = append(generalMatches, c)
			continue
		}
		if roomID != nil && *c.RoomID == *roomID {
			roomMatches = append(roomMatches, c)
		}
	}

	switch {
	case len(roomMatches) > 1:
		return nil, fmt.Errorf("%d room configurations match %s value %g: %w",
			len(roomMatches), kind, value, ErrOverlappingRanges)
	case len(roomMatches) == 1:
		return &Resolution{Config: roomMatches[0], Season: season}, nil
	case len(generalMatches) > 1:
		return nil, fmt.Errorf("%d general configurations match %s value %g: %w",
			len(generalMatches), kind, value, ErrOverlappingRanges)
	case len(generalMatches) == 1:
		return &Resolution{Config: generalMatches[0], Season: season}, nil
	}

	return nil, fmt.Errorf("%s value %g: %w", kind, value, ErrUnconfigured)
}
