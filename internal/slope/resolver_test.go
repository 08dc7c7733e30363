package slope

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summerDay = time.Date(2025, time.July, 10, 9, 0, 0, 0, time.UTC)

func allSeasons(pair SeasonPair) (SeasonPair, SeasonPair, SeasonPair, SeasonPair) {
	return pair, pair, pair, pair
}

func config(kind Kind, roomID *uuid.UUID, min, max float64, pair SeasonPair) Configuration {
	c := Configuration{
		ID:     uuid.New(),
		Kind:   kind,
		RoomID: roomID,
		Min:    min,
		Max:    max,
	}
	c.Summer, c.Fall, c.Winter, c.Spring = allSeasons(pair)
	return c
}

func TestResolveRoomBeatsGeneral(t *testing.T) {
	roomID := uuid.New()
	room := config(KindTemperature, &roomID, 20, 30, SeasonPair{Positive: 0.8, Negative: -0.8})
	general := config(KindTemperature, nil, 20, 30, SeasonPair{Positive: 0.5, Negative: -0.5})

	resolver := NewResolver([]Configuration{general, room})

	res, err := resolver.Resolve(&roomID, KindTemperature, 22, summerDay)
	require.NoError(t, err)
	assert.Equal(t, room.ID, res.Config.ID)
	assert.Equal(t, SeasonSummer, res.Season)
	assert.Equal(t, 0.8, res.Config.Slope(res.Season, true))
}

func TestResolveFallsBackToGeneral(t *testing.T) {
	roomID := uuid.New()
	otherRoom := uuid.New()
	room := config(KindTemperature, &otherRoom, 20, 30, SeasonPair{Positive: 0.8, Negative: -0.8})
	general := config(KindTemperature, nil, 20, 30, SeasonPair{Positive: 0.5, Negative: -0.5})

	resolver := NewResolver([]Configuration{room, general})

	res, err := resolver.Resolve(&roomID, KindTemperature, 22, summerDay)
	require.NoError(t, err)
	assert.Equal(t, general.ID, res.Config.ID, "other room's configuration must not apply")

	res, err = resolver.Resolve(nil, KindTemperature, 22, summerDay)
	require.NoError(t, err)
	assert.Equal(t, general.ID, res.Config.ID, "unassigned code uses the general configuration")
}

func TestResolveUnconfigured(t *testing.T) {
	general := config(KindTemperature, nil, 20, 30, SeasonPair{Positive: 0.5, Negative: -0.5})
	resolver := NewResolver([]Configuration{general})

	_, err := resolver.Resolve(nil, KindHumidity, 15, summerDay)
	assert.ErrorIs(t, err, ErrUnconfigured)

	_, err = resolver.Resolve(nil, KindTemperature, 45, summerDay)
	assert.ErrorIs(t, err, ErrUnconfigured)
}

func TestResolveRangeBoundaries(t *testing.T) {
	general := config(KindTemperature, nil, 20, 30, SeasonPair{Positive: 0.5, Negative: -0.5})
	resolver := NewResolver([]Configuration{general})

	_, err := resolver.Resolve(nil, KindTemperature, 20, summerDay)
	assert.NoError(t, err, "min is inclusive")

	_, err = resolver.Resolve(nil, KindTemperature, 30, summerDay)
	assert.ErrorIs(t, err, ErrUnconfigured, "max is exclusive")
}

func TestResolveOverlapIsIntegrityViolation(t *testing.T) {
	roomID := uuid.New()
	a := config(KindTemperature, &roomID, 20, 30, SeasonPair{Positive: 0.8, Negative: -0.8})
	b := config(KindTemperature, &roomID, 25, 35, SeasonPair{Positive: 0.6, Negative: -0.6})

	resolver := NewResolver([]Configuration{a, b})

	_, err := resolver.Resolve(&roomID, KindTemperature, 27, summerDay)
	assert.ErrorIs(t, err, ErrOverlappingRanges)

	// outside the overlap both ranges still resolve
	res, err := resolver.Resolve(&roomID, KindTemperature, 22, summerDay)
	require.NoError(t, err)
	assert.Equal(t, a.ID, res.Config.ID)

	res, err = resolver.Resolve(&roomID, KindTemperature, 33, summerDay)
	require.NoError(t, err)
	assert.Equal(t, b.ID, res.Config.ID)
}

func TestResolveOverlappingGeneralRanges(t *testing.T) {
	a := config(KindHumidity, nil, 0, 50, SeasonPair{Positive: 1})
	b := config(KindHumidity, nil, 40, 80, SeasonPair{Positive: 2})

	resolver := NewResolver([]Configuration{a, b})

	_, err := resolver.Resolve(nil, KindHumidity, 45, summerDay)
	assert.ErrorIs(t, err, ErrOverlappingRanges)
}

func TestResolveDeterministic(t *testing.T) {
	roomID := uuid.New()
	room := config(KindTemperature, &roomID, 20, 30, SeasonPair{Positive: 0.8, Negative: -0.8})
	general := config(KindTemperature, nil, 10, 40, SeasonPair{Positive: 0.5, Negative: -0.5})

	resolver := NewResolver([]Configuration{general, room})

	first, err := resolver.Resolve(&roomID, KindTemperature, 25, summerDay)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		res, err := resolver.Resolve(&roomID, KindTemperature, 25, summerDay)
		require.NoError(t, err)
		assert.Equal(t, first.Config.ID, res.Config.ID)
		assert.Equal(t, first.Season, res.Season)
	}
}

func TestSeasonalSlopeSelection(t *testing.T) {
	c := Configuration{
		ID:     uuid.New(),
		Kind:   KindTemperature,
		Min:    0,
		Max:    100,
		Summer: SeasonPair{Positive: 0.8, Negative: -0.9},
		Fall:   SeasonPair{Positive: 0.4, Negative: -0.5},
		Winter: SeasonPair{Positive: 0.2, Negative: -0.3},
		Spring: SeasonPair{Positive: 0.6, Negative: -0.7},
	}

	assert.Equal(t, 0.8, c.Slope(SeasonSummer, true))
	assert.Equal(t, -0.9, c.Slope(SeasonSummer, false))
	assert.Equal(t, 0.4, c.Slope(SeasonFall, true))
	assert.Equal(t, -0.3, c.Slope(SeasonWinter, false))
	assert.Equal(t, 0.6, c.Slope(SeasonSpring, true))
}
