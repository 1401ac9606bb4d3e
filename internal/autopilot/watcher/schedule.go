package watcher

import (
	"fmt"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"

	"postpilot/internal/store"
)

var dayNumbers = map[string]int{
	"sunday":    0,
	"sun":       0,
	"monday":    1,
	"mon":       1,
	"tuesday":   2,
	"tue":       2,
	"tues":      2,
	"wednesday": 3,
	"wed":       3,
	"thursday":  4,
	"thu":       4,
	"thur":      4,
	"thurs":     4,
	"friday":    5,
	"fri":       5,
	"saturday":  6,
	"sat":       6,
}

// WindowExpr renders one weekly posting window as a five-field cron
// expression, e.g. {Day: "Monday", Time: "09:30"} -> "30 9 * * 1".
func WindowExpr(w store.PostingWindow) (string, error) {
	day, ok := dayNumbers[strings.ToLower(strings.TrimSpace(w.Day))]
	if !ok {
		return "", fmt.Errorf("unknown weekday: %q", w.Day)
	}
	t, err := time.Parse("15:04", strings.TrimSpace(w.Time))
	if err != nil {
		return "", fmt.Errorf("parse window time %q: %w", w.Time, err)
	}
	return fmt.Sprintf("%d %d * * %d", t.Minute(), t.Hour(), day), nil
}

// NextWindow returns the earliest upcoming occurrence among the profile's
// posting windows, in loc. Malformed windows are ignored; ok is false when
// no window yields a future time.
func NextWindow(windows []store.PostingWindow, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	parser := robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow)

	var best time.Time
	for _, w := range windows {
		expr, err := WindowExpr(w)
		if err != nil {
			continue
		}
		schedule, err := parser.Parse(expr)
		if err != nil {
			continue
		}
		next := schedule.Next(now.In(loc))
		if next.IsZero() {
			continue
		}
		if best.IsZero() || next.Before(best) {
			best = next
		}
	}
	if best.IsZero() {
		return time.Time{}, false
	}
	return best.UTC(), true
}

func loadLocation(raw string) (*time.Location, error) {
	name := strings.TrimSpace(raw)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}
