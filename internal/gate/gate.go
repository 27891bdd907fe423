// Package gate decides whether a once-a-day action should fire and
// which articles count as fresh.
package gate

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time in UTC.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time %q: expected HH:MM", s)
	}
	if !isClockField(hh) || !isClockField(mm) {
		return TimeOfDay{}, fmt.Errorf("time %q: expected HH:MM with digits only", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time %q: invalid hour: %w", s, err)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time %q: invalid minute: %w", s, err)
	}
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("time %q: hour out of range", s)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time %q: minute out of range", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// isClockField reports whether s is one or two ASCII digits.
func isClockField(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Reached reports whether now's UTC time of day is at or past t.
func (t TimeOfDay) Reached(now time.Time) bool {
	now = now.UTC()
	if now.Hour() != t.Hour {
		return now.Hour() > t.Hour
	}
	return now.Minute() >= t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// SameUTCDay reports whether a and b fall on the same UTC calendar date.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Decision is the outcome of a gate check.
type Decision struct {
	Run     bool
	Invalid bool
	Reason  string
}

// Gate guards a recurring action that fires at most once per UTC day,
// no earlier than TimeUTC.
type Gate struct {
	Name    string
	TimeUTC string
}

// Decide applies the gate rules. A malformed TimeUTC never fires.
func (g Gate) Decide(now time.Time, last *time.Time) Decision {
	if last != nil && SameUTCDay(*last, now) {
		return Decision{Reason: fmt.Sprintf("%s already ran today (%s)", g.Name, last.UTC().Format(time.DateOnly))}
	}
	tod, err := ParseTimeOfDay(g.TimeUTC)
	if err != nil {
		return Decision{Invalid: true, Reason: fmt.Sprintf("invalid %s time: %v", g.Name, err)}
	}
	if !tod.Reached(now) {
		return Decision{Reason: fmt.Sprintf("before %s time %s UTC", g.Name, tod)}
	}
	return Decision{Run: true, Reason: fmt.Sprintf("%s time %s UTC reached", g.Name, tod)}
}

// ShouldRun is Decide with logging: a skip is logged at info level,
// a malformed time at error level.
func (g Gate) ShouldRun(now time.Time, last *time.Time, log *slog.Logger) bool {
	d := g.Decide(now, last)
	switch {
	case d.Run:
		log.Info("gate open", "gate", g.Name, "reason", d.Reason)
	case d.Invalid:
		log.Error("gate closed", "gate", g.Name, "reason", d.Reason)
	default:
		log.Info("gate closed", "gate", g.Name, "reason", d.Reason)
	}
	return d.Run
}
