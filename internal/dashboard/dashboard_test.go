package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"postpilot/internal/autopilot"
	"postpilot/internal/store"
)

func TestParseWindows(t *testing.T) {
	got, err := parseWindows("Mon 09:00, Thu 17:30")
	if err != nil {
		t.Fatalf("parseWindows: %v", err)
	}
	if len(got) != 2 || got[0].Day != "Mon" || got[0].Time != "09:00" || got[1].Time != "17:30" {
		t.Fatalf("parseWindows = %+v", got)
	}

	if _, err := parseWindows("Monday"); err == nil {
		t.Fatal("expected error for window without a time")
	}
	if _, err := parseWindows("Mon 9am"); err == nil {
		t.Fatal("expected error for bad time format")
	}
	if got, err := parseWindows("  "); err != nil || got != nil {
		t.Fatalf("blank input: %v, %v", got, err)
	}
}

func TestParseWhen(t *testing.T) {
	got, err := parseWhen("2026-09-01 09:30")
	if err != nil || got == nil {
		t.Fatalf("parseWhen: %v, %v", got, err)
	}
	if got.Location() != time.UTC {
		t.Fatalf("parseWhen should return UTC, got %v", got.Location())
	}

	if got, err := parseWhen(""); err != nil || got != nil {
		t.Fatalf("blank scheduled_for should mean whenever: %v, %v", got, err)
	}
	if _, err := parseWhen("next tuesday"); err == nil {
		t.Fatal("expected error for unparseable time")
	}
}

func TestParseBool(t *testing.T) {
	if !parseBool("y", false) || !parseBool("TRUE", false) || parseBool("n", true) {
		t.Fatal("parseBool mapping wrong")
	}
	if !parseBool("maybe", true) || parseBool("maybe", false) {
		t.Fatal("parseBool fallback wrong")
	}
}

func TestTruncateTo(t *testing.T) {
	if got := truncateTo("hello", 10); got != "hello" {
		t.Fatalf("no-op truncate = %q", got)
	}
	got := truncateTo("hello world", 8)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) > 8 {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncateTo("hello", 0); got != "" {
		t.Fatalf("zero width = %q", got)
	}
}

func TestRunNotice(t *testing.T) {
	report := autopilot.Report{Items: []autopilot.ItemResult{
		{Outcome: autopilot.OutcomePublished},
		{Outcome: autopilot.OutcomeFailed, Unpersisted: true},
	}}
	s := runNotice(report)
	if !strings.Contains(s, "1 published") || !strings.Contains(s, "UNPERSISTED") {
		t.Fatalf("runNotice = %q", s)
	}
}

func TestNextScheduled(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	soon := now.Add(time.Hour)
	later := now.Add(2 * time.Hour)
	posts := []store.ScheduledPost{
		{Status: store.StatusScheduled, ScheduledFor: &past},
		{Status: store.StatusScheduled, ScheduledFor: &later},
		{Status: store.StatusScheduled, ScheduledFor: &soon},
		{Status: store.StatusPosted, ScheduledFor: &soon},
	}
	got := nextScheduled(posts)
	if got == nil || !got.Equal(soon) {
		t.Fatalf("nextScheduled = %v, want %v", got, soon)
	}
	if nextScheduled(nil) != nil {
		t.Fatal("expected nil for empty queue")
	}
}

func TestTabCycling(t *testing.T) {
	m := model{}
	right := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")}
	next, _ := m.handleKey(right)
	if next.(model).tab != tabPillars {
		t.Fatalf("tab after right = %d", next.(model).tab)
	}

	m.tab = 0
	left := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")}
	prev, _ := m.handleKey(left)
	if prev.(model).tab != tabRuns {
		t.Fatalf("tab after left = %d", prev.(model).tab)
	}
}
