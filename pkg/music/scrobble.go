package music

import "time"

// Scrobble is a single play record reported by a scrobble service: the track
// plus when it was played. NowPlaying marks the in-progress play, which has
// no timestamp yet.
type Scrobble struct {
	Track      Track
	PlayedAt   time.Time
	NowPlaying bool
}

// Period is a chart timeframe accepted by the scrobble service's top-N
// queries.
type Period string

const (
	PeriodOverall Period = "all"
	Period7Days   Period = "7d"
	Period1Month  Period = "1m"
	Period3Month  Period = "3m"
	Period6Month  Period = "6m"
	Period12Month Period = "12m"
)

// ValidPeriod reports whether s names a known chart timeframe.
func ValidPeriod(s string) bool {
	switch Period(s) {
	case PeriodOverall, Period7Days, Period1Month, Period3Month, Period6Month, Period12Month:
		return true
	}
	return false
}

// ChartEntry is one row of a top-N chart: an entity name pair and its play
// count over the requested period.
type ChartEntry struct {
	Artist    string
	Title     string // empty for artist charts
	PlayCount int
}
