package autopilot

import (
	"fmt"
	"strings"
	"time"
)

// Per-item outcomes of one run.
const (
	OutcomeGenerated = "generated"
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Skip and failure reasons carried next to the outcome.
const (
	ReasonAlreadyProcessed  = "already-processed"
	ReasonAlreadyHasContent = "already-has-content"
	ReasonClaimLost         = "claim-lost"
	ReasonGeneration        = "generation"
	ReasonPublish           = "publish"
	ReasonStore             = "store"
)

// ItemResult is one visited post's outcome. Unpersisted flags the worst
// failure mode: the outcome happened (possibly live on the network) but the
// write-back failed, so the report is the only record of it.
type ItemResult struct {
	PostID         string `json:"post_id"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
	ExternalPostID string `json:"external_post_id,omitempty"`
	Unpersisted    bool   `json:"unpersisted,omitempty"`
}

// Report is the transient result of one run. It is returned to the caller
// and appended to the run log; it is never the source of truth for posts.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DryRun     bool         `json:"dry_run"`
	Items      []ItemResult `json:"items"`
}

func (r Report) count(outcome string) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r Report) Generated() int { return r.count(OutcomeGenerated) }
func (r Report) Published() int { return r.count(OutcomePublished) }
func (r Report) Skipped() int   { return r.count(OutcomeSkipped) }
func (r Report) Failed() int    { return r.count(OutcomeFailed) }

func (r Report) HasUnpersisted() bool {
	for _, item := range r.Items {
		if item.Unpersisted {
			return true
		}
	}
	return false
}

// Summary renders the report as markdown for logs and notification email.
func (r Report) Summary() string {
	var b strings.Builder
	mode := "live"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "Autopilot run (%s) visited %d post(s): %d published, %d generated, %d skipped, %d failed.\n",
		mode, len(r.Items), r.Published(), r.Generated(), r.Skipped(), r.Failed())
	if len(r.Items) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	for _, item := range r.Items {
		fmt.Fprintf(&b, "- `%s`: %s", item.PostID, item.Outcome)
		if item.Reason != "" {
			fmt.Fprintf(&b, " (%s)", item.Reason)
		}
		if item.ExternalPostID != "" {
			fmt.Fprintf(&b, " -> %s", item.ExternalPostID)
		}
		if item.Error != "" {
			fmt.Fprintf(&b, ": %s", item.Error)
		}
		if item.Unpersisted {
			b.WriteString(" [NOT PERSISTED]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
