package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"postpilot/internal/appinfo"
	"postpilot/internal/autopilot"
	"postpilot/internal/store"
)

func (m model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if m.fatal != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render("fatal: " + m.fatal.Error())
	}
	if m.loading {
		return lipgloss.NewStyle().Padding(1, 2).Render("loading...")
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	if m.form != nil {
		b.WriteString(m.renderForm())
	} else {
		b.WriteString(m.renderBody())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Render(appinfo.Display())

	queued, posted, failed := 0, 0, 0
	for _, p := range m.doc.Posts {
		switch p.Status {
		case store.StatusScheduled:
			queued++
		case store.StatusPosted:
			posted++
		case store.StatusFailed:
			failed++
		}
	}
	stats := fmt.Sprintf("%d pillars | %d templates | %d ideas | queue %d | posted %d | failed %d",
		len(m.doc.Pillars), len(m.doc.Templates), len(m.doc.Ideas), queued, posted, failed)
	if next := nextScheduled(m.doc.Posts); next != nil {
		stats += " | next " + next.Local().Format("Jan 2 15:04")
	}
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	return lipgloss.NewStyle().Padding(0, 1).Render(title + "  " + dim.Render(truncateTo(stats, max(0, m.width-runewidth.StringWidth(appinfo.Display())-4))))
}

func nextScheduled(posts []store.ScheduledPost) *time.Time {
	var next *time.Time
	now := time.Now()
	for _, p := range posts {
		if p.Status != store.StatusScheduled || p.ScheduledFor == nil || p.ScheduledFor.Before(now) {
			continue
		}
		if next == nil || p.ScheduledFor.Before(*next) {
			next = p.ScheduledFor
		}
	}
	return next
}

func (m model) renderTabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Underline(true)
	inactive := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	parts := make([]string, 0, tabCount)
	for i, name := range tabNames {
		if i == m.tab {
			parts = append(parts, active.Render(name))
		} else {
			parts = append(parts, inactive.Render(name))
		}
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(parts, "  "))
}

func (m model) renderBody() string {
	bodyH := max(1, m.height-7)
	switch m.tab {
	case tabProfile:
		return m.renderProfile(bodyH)
	case tabPillars:
		return m.renderPillars(bodyH)
	case tabTemplates:
		return m.renderTemplates(bodyH)
	case tabIdeas:
		return m.renderIdeas(bodyH)
	case tabQueue:
		return m.renderQueue(bodyH)
	case tabRuns:
		return m.renderRuns(bodyH)
	}
	return ""
}

func (m model) renderProfile(h int) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	if m.doc.Profile == nil {
		return lipgloss.NewStyle().Padding(0, 2).Render(dim.Render("No profile yet. Press e to create one; autopilot needs it to generate content."))
	}
	p := m.doc.Profile
	lines := []string{
		"Brand:    " + p.BrandName,
		"URL:      " + p.LinkedInURL,
		"Voice:    " + truncateTo(oneLine(p.Voice), max(10, m.width-14)),
		"Audience: " + truncateTo(oneLine(p.TargetAudience), max(10, m.width-14)),
		"Goals:    " + truncateTo(oneLine(p.Goals), max(10, m.width-14)),
		fmt.Sprintf("Cadence:  %d/week", p.CadencePerWeek),
		"Windows:  " + formatWindows(p.PostingWindows),
	}
	if len(lines) > h {
		lines = lines[:h]
	}
	return lipgloss.NewStyle().Padding(0, 2).Render(strings.Join(lines, "\n"))
}

func (m model) renderPillars(h int) string {
	rows := make([]string, 0, len(m.doc.Pillars))
	for _, p := range m.doc.Pillars {
		state := "active"
		if !p.Active {
			state = "paused"
		}
		rows = append(rows, fmt.Sprintf("%-24s %-7s %s",
			truncateTo(p.Title, 24), state, truncateTo(oneLine(p.Description), max(10, m.width-40))))
	}
	return m.renderList(rows, tabPillars, h, "No pillars. Press n to add one, or run seed.")
}

func (m model) renderTemplates(h int) string {
	rows := make([]string, 0, len(m.doc.Templates))
	for _, t := range m.doc.Templates {
		rows = append(rows, fmt.Sprintf("%-24s %s",
			truncateTo(t.Title, 24), truncateTo(oneLine(t.Structure), max(10, m.width-32))))
	}
	return m.renderList(rows, tabTemplates, h, "No templates. Press n to add one, or run seed.")
}

func (m model) renderIdeas(h int) string {
	rows := make([]string, 0, len(m.doc.Ideas))
	for _, i := range m.doc.Ideas {
		pillar := m.pillarTitle(i.PillarID)
		if pillar == "" {
			pillar = "-"
		}
		rows = append(rows, fmt.Sprintf("%-16s %s",
			truncateTo(pillar, 16), truncateTo(oneLine(i.Summary), max(10, m.width-24))))
	}
	return m.renderList(rows, tabIdeas, h, "No ideas banked yet. Press n.")
}

func (m model) renderQueue(h int) string {
	rows := make([]string, 0, len(m.doc.Posts))
	for _, p := range m.doc.Posts {
		when := "whenever"
		if p.ScheduledFor != nil {
			when = p.ScheduledFor.Local().Format("Jan 2 15:04")
		}
		auto := " "
		if p.Autopilot {
			auto = "A"
		}
		content := oneLine(p.Content)
		if content == "" {
			content = "(generate)"
		}
		detail := content
		if p.Status == store.StatusFailed && p.Error != "" {
			detail = "err: " + oneLine(p.Error)
		}
		rows = append(rows, fmt.Sprintf("%s %-9s %-12s %s",
			auto, statusCell(p.Status), when, truncateTo(detail, max(10, m.width-32))))
	}
	return m.renderList(rows, tabQueue, h, "Queue is empty. Press n to schedule a post.")
}

func statusCell(status string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	switch status {
	case store.StatusPosted:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case store.StatusFailed:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case store.StatusCancelled:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
	return style.Render(fmt.Sprintf("%-9s", status))
}

func (m model) renderRuns(h int) string {
	rows := make([]string, 0, len(m.runs))
	for _, rec := range m.runs {
		rows = append(rows, runRow(rec, m.width))
	}
	return m.renderList(rows, tabRuns, h, "No runs recorded yet. Press r to run now.")
}

func runRow(rec autopilot.RunRecord, width int) string {
	mode := "live"
	if rec.DryRun {
		mode = "dry "
	}
	line := fmt.Sprintf("%s %s  %dP %dG %dS %dF",
		rec.StartedAt.Local().Format("Jan 2 15:04:05"), mode,
		rec.Published, rec.Generated, rec.Skipped, rec.Failed)
	if rec.RunError != "" {
		line += "  ERR " + oneLine(rec.RunError)
	}
	return truncateTo(line, max(10, width-6))
}

func (m model) renderList(rows []string, tab int, h int, empty string) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	if len(rows) == 0 {
		return lipgloss.NewStyle().Padding(0, 2).Render(dim.Render(empty))
	}
	cursor := m.cursors[tab]

	// Keep the cursor on screen.
	start := 0
	if cursor >= h {
		start = cursor - h + 1
	}
	end := min(len(rows), start+h)

	sel := lipgloss.NewStyle().Bold(true)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		prefix := "  "
		row := rows[i]
		if i == cursor {
			prefix = "> "
			row = sel.Render(row)
		}
		lines = append(lines, prefix+row)
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func (m model) renderForm() string {
	f := m.form
	label := lipgloss.NewStyle().Bold(true)
	var b strings.Builder
	b.WriteString(label.Render(f.title))
	b.WriteString("\n\n")
	for i, field := range f.fields {
		marker := "  "
		if i == f.focus {
			marker = "> "
		}
		b.WriteString(marker + field.label + "\n")
		if field.multi {
			b.WriteString(indent(field.area.View(), "    "))
		} else {
			b.WriteString("    " + field.text.View())
		}
		b.WriteString("\n")
	}
	return lipgloss.NewStyle().Padding(0, 2).Render(b.String())
}

func (m model) renderFooter() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hints := "q quit | tab switch | n new | e edit | d delete | r run | R dry run"
	if m.tab == tabQueue {
		hints += " | p post now | c cancel | a autopilot"
	}
	if m.form != nil {
		hints = "ctrl+s save | esc cancel | tab next field"
	}
	parts := []string{dim.Render(hints)}
	if m.confirmPrompt != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.confirmPrompt))
	} else if m.notice != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
		if strings.Contains(m.notice, "failed") || strings.Contains(m.notice, "UNPERSISTED") {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
		}
		parts = append(parts, style.Render(truncateTo(m.notice, max(10, m.width-4))))
	}
	if m.busy {
		parts = append(parts, dim.Render("working..."))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(parts, "\n"))
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

func indent(s string, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// truncateTo cuts s to at most w display cells, appending an ellipsis when
// anything was dropped.
func truncateTo(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= w {
		return s
	}
	if w == 1 {
		return "…"
	}
	return runewidth.Truncate(s, w-1, "") + "…"
}
