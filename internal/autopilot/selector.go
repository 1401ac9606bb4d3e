package autopilot

import (
	"sort"
	"time"

	"postpilot/internal/store"
)

// SelectDue filters and orders the posts eligible for one run. Pure function:
// no record is mutated, an empty input yields an empty output.
//
// Eligible: autopilot posts that are scheduled or failed (failed posts retry
// on the next run) and whose ScheduledFor is absent or within the look-ahead
// window. Ordering: ascending ScheduledFor with unscheduled posts last, ties
// broken by ID for determinism.
func SelectDue(posts []store.ScheduledPost, now time.Time, lookAhead time.Duration) []store.ScheduledPost {
	if lookAhead < 0 {
		lookAhead = 0
	}
	horizon := now.Add(lookAhead)

	due := make([]store.ScheduledPost, 0, len(posts))
	for _, post := range posts {
		if !post.Autopilot {
			continue
		}
		if post.Status != store.StatusScheduled && post.Status != store.StatusFailed {
			continue
		}
		if post.ScheduledFor != nil && post.ScheduledFor.After(horizon) {
			continue
		}
		due = append(due, post)
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].ScheduledFor, due[j].ScheduledFor
		switch {
		case a == nil && b == nil:
			return due[i].ID < due[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return due[i].ID < due[j].ID
		default:
			return a.Before(*b)
		}
	})
	return due
}
