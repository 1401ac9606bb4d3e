package store

import "fmt"

const (
	StatusScheduled = "scheduled"
	StatusPosted    = "posted"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusScheduled: true,
	},
	StatusScheduled: {
		StatusScheduled: true,
		StatusPosted:    true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusFailed: {
		StatusFailed:    true,
		StatusScheduled: true,
		StatusPosted:    true,
		StatusCancelled: true,
	},
	// posted and cancelled are terminal.
	StatusPosted:    {StatusPosted: true},
	StatusCancelled: {StatusCancelled: true},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// IsTerminalStatus reports whether the autopilot runner must never touch a
// post in this status again.
func IsTerminalStatus(status string) bool {
	return status == StatusPosted || status == StatusCancelled
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func transitionPostStatus(post *ScheduledPost, to string) error {
	from := post.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid post status transition: %q -> %q (post_id=%s)", from, to, post.ID)
	}
	post.Status = to
	return nil
}
