package slope

import "time"

type Season string

const (
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
)

// SeasonOf maps a date onto the fixed four-band calendar: summer is
// June through August, fall September through November, winter December
// through February, spring the remainder. The bands are not configurable.
func SeasonOf(t time.Time) Season {
	switch t.Month() {
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonFall
	case time.December, time.January, time.February:
		return SeasonWinter
	default:
		return SeasonSpring
	}
}
