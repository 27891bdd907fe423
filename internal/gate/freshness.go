package gate

import "time"

// Freshness names a relative window of recent articles.
type Freshness string

// Recognized freshness windows.
const (
	Last1h  Freshness = "last_1h"
	Last6h  Freshness = "last_6h"
	Last12h Freshness = "last_12h"
	Last24h Freshness = "last_24h"
	Last3d  Freshness = "last_3d"
	Last7d  Freshness = "last_7d"
	Last30d Freshness = "last_30d"
)

var windows = map[Freshness]time.Duration{
	Last1h:  time.Hour,
	Last6h:  6 * time.Hour,
	Last12h: 12 * time.Hour,
	Last24h: 24 * time.Hour,
	Last3d:  3 * 24 * time.Hour,
	Last7d:  7 * 24 * time.Hour,
	Last30d: 30 * 24 * time.Hour,
}

// Window returns the duration of f, falling back to 24 hours for an
// unrecognized value.
func (f Freshness) Window() time.Duration {
	if d, ok := windows[f]; ok {
		return d
	}
	return windows[Last24h]
}

// Valid reports whether f is a recognized window.
func (f Freshness) Valid() bool {
	_, ok := windows[f]
	return ok
}

// Cutoff returns the exclusive lower bound on published time for
// articles that are fresh at now.
func Cutoff(f Freshness, now time.Time) time.Time {
	return now.Add(-f.Window())
}
