package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"postpilot/internal/store"
)

type form struct {
	title  string
	fields []*formField
	focus  int
	err    string
	submit func(values map[string]string) tea.Cmd
}

type formField struct {
	key   string
	label string
	multi bool
	text  textinput.Model
	area  textarea.Model
}

func newTextField(key, label, value string) *formField {
	inp := textinput.New()
	inp.Prompt = ""
	inp.CharLimit = 0
	inp.SetValue(value)
	return &formField{key: key, label: label, text: inp}
}

func newAreaField(key, label, value string) *formField {
	area := textarea.New()
	area.SetValue(value)
	area.SetHeight(5)
	area.CharLimit = 0
	return &formField{key: key, label: label, multi: true, area: area}
}

func (f *formField) value() string {
	if f.multi {
		return f.area.Value()
	}
	return f.text.Value()
}

func (f *formField) focusField() {
	if f.multi {
		f.area.Focus()
	} else {
		f.text.Focus()
	}
}

func (f *formField) blurField() {
	if f.multi {
		f.area.Blur()
	} else {
		f.text.Blur()
	}
}

func newForm(title string, fields []*formField, submit func(values map[string]string) tea.Cmd) *form {
	fm := &form{title: title, fields: fields, submit: submit}
	if len(fm.fields) > 0 {
		fm.fields[0].focusField()
	}
	return fm
}

func (f *form) values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, field := range f.fields {
		out[field.key] = strings.TrimSpace(field.value())
	}
	return out
}

func (f *form) moveFocus(delta int) {
	if len(f.fields) == 0 {
		return
	}
	f.fields[f.focus].blurField()
	f.focus = (f.focus + delta + len(f.fields)) % len(f.fields)
	f.fields[f.focus].focusField()
}

// handleKey routes a keypress into the form. done is true when the form
// should close without saving; a save returns the submit command and the
// model closes the form once the write succeeds.
func (f *form) handleKey(msg tea.KeyMsg) (done bool, cmd tea.Cmd) {
	switch msg.String() {
	case "esc":
		return true, nil
	case "ctrl+s":
		return false, f.submit(f.values())
	case "tab", "down":
		f.moveFocus(1)
		return false, nil
	case "shift+tab", "up":
		f.moveFocus(-1)
		return false, nil
	case "enter":
		// enter inserts a newline only inside multiline fields.
		if !f.fields[f.focus].multi {
			f.moveFocus(1)
			return false, nil
		}
	}
	return false, f.update(msg)
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if f.focus < 0 || f.focus >= len(f.fields) {
		return nil
	}
	field := f.fields[f.focus]
	var cmd tea.Cmd
	if field.multi {
		field.area, cmd = field.area.Update(msg)
	} else {
		field.text, cmd = field.text.Update(msg)
	}
	return cmd
}

func (m model) profileForm(p store.Profile) *form {
	fields := []*formField{
		newTextField("brand_name", "Brand name", p.BrandName),
		newTextField("linkedin_url", "LinkedIn URL", p.LinkedInURL),
		newAreaField("voice", "Voice", p.Voice),
		newTextField("target_audience", "Target audience", p.TargetAudience),
		newAreaField("goals", "Goals", p.Goals),
		newTextField("cadence_per_week", "Cadence per week", formatInt(p.CadencePerWeek)),
		newTextField("posting_windows", "Posting windows (Mon 09:00, Thu 17:30)", formatWindows(p.PostingWindows)),
	}
	return newForm("Profile", fields, func(values map[string]string) tea.Cmd {
		cadence, err := parseOptionalInt(values["cadence_per_week"])
		if err != nil {
			return noticeCmd("cadence must be a number")
		}
		windows, err := parseWindows(values["posting_windows"])
		if err != nil {
			return noticeCmd(err.Error())
		}
		profile := store.Profile{
			BrandName:      values["brand_name"],
			LinkedInURL:    values["linkedin_url"],
			Voice:          values["voice"],
			TargetAudience: values["target_audience"],
			Goals:          values["goals"],
			CadencePerWeek: cadence,
			PostingWindows: windows,
		}
		return m.saveCmd("profile saved", func(ctx context.Context) error {
			return m.store.UpsertProfile(ctx, profile)
		})
	})
}

func (m model) pillarForm(p store.Pillar) *form {
	fields := []*formField{
		newTextField("title", "Title", p.Title),
		newAreaField("description", "Description", p.Description),
		newTextField("audience", "Audience", p.Audience),
		newTextField("active", "Active (y/n)", formatBool(p.Active)),
	}
	return newForm("Pillar", fields, func(values map[string]string) tea.Cmd {
		if values["title"] == "" {
			return noticeCmd("title is required")
		}
		pillar := store.Pillar{
			ID:          p.ID,
			Title:       values["title"],
			Description: values["description"],
			Audience:    values["audience"],
			Active:      parseBool(values["active"], true),
		}
		return m.saveCmd("pillar saved", func(ctx context.Context) error {
			_, err := m.store.UpsertPillar(ctx, pillar)
			return err
		})
	})
}

func (m model) templateForm(t store.Template) *form {
	fields := []*formField{
		newTextField("title", "Title", t.Title),
		newTextField("structure", "Structure", t.Structure),
		newAreaField("prompt", "Prompt", t.Prompt),
		newTextField("call_to_action", "Call to action", t.CallToAction),
	}
	return newForm("Template", fields, func(values map[string]string) tea.Cmd {
		if values["title"] == "" || values["prompt"] == "" {
			return noticeCmd("title and prompt are required")
		}
		tpl := store.Template{
			ID:           t.ID,
			Title:        values["title"],
			Structure:    values["structure"],
			Prompt:       values["prompt"],
			CallToAction: values["call_to_action"],
		}
		return m.saveCmd("template saved", func(ctx context.Context) error {
			_, err := m.store.UpsertTemplate(ctx, tpl)
			return err
		})
	})
}

func (m model) ideaForm(i store.Idea) *form {
	fields := []*formField{
		newAreaField("summary", "Summary", i.Summary),
		newTextField("hook", "Hook", i.Hook),
		newTextField("angle", "Angle", i.Angle),
		newTextField("pillar", "Pillar (title)", m.pillarTitle(i.PillarID)),
	}
	return newForm("Idea", fields, func(values map[string]string) tea.Cmd {
		if values["summary"] == "" {
			return noticeCmd("summary is required")
		}
		idea := store.Idea{
			ID:       i.ID,
			Summary:  values["summary"],
			Hook:     values["hook"],
			Angle:    values["angle"],
			PillarID: m.resolvePillarID(values["pillar"]),
		}
		return m.saveCmd("idea saved", func(ctx context.Context) error {
			_, err := m.store.UpsertIdea(ctx, idea)
			return err
		})
	})
}

func (m model) postForm(p store.ScheduledPost) *form {
	fields := []*formField{
		newAreaField("content", "Content (blank = generate)", p.Content),
		newTextField("pillar", "Pillar (title)", m.pillarTitle(p.PillarID)),
		newTextField("template", "Template (title)", m.templateTitle(p.TemplateID)),
		newTextField("audience", "Audience override", p.Audience),
		newTextField("idea_hook", "Idea hook", p.IdeaHook),
		newTextField("idea_angle", "Idea angle", p.IdeaAngle),
		newTextField("scheduled_for", "Scheduled for (2006-01-02 15:04, blank = whenever)", formatWhen(p.ScheduledFor)),
		newTextField("autopilot", "Autopilot (y/n)", formatBool(p.Autopilot)),
	}
	return newForm("Post", fields, func(values map[string]string) tea.Cmd {
		when, err := parseWhen(values["scheduled_for"])
		if err != nil {
			return noticeCmd(err.Error())
		}
		post := p
		post.Content = values["content"]
		post.PillarID = m.resolvePillarID(values["pillar"])
		post.TemplateID = m.resolveTemplateID(values["template"])
		post.Audience = values["audience"]
		post.IdeaHook = values["idea_hook"]
		post.IdeaAngle = values["idea_angle"]
		post.ScheduledFor = when
		post.Autopilot = parseBool(values["autopilot"], true)
		return m.saveCmd("post saved", func(ctx context.Context) error {
			_, err := m.store.UpsertPost(ctx, post)
			return err
		})
	})
}

func noticeCmd(text string) tea.Cmd {
	return func() tea.Msg { return savedMsg{Err: fmt.Errorf("%s", text)} }
}

func (m model) pillarTitle(id string) string {
	for _, p := range m.doc.Pillars {
		if p.ID == id {
			return p.Title
		}
	}
	return ""
}

func (m model) templateTitle(id string) string {
	for _, t := range m.doc.Templates {
		if t.ID == id {
			return t.Title
		}
	}
	return ""
}

func (m model) resolvePillarID(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	for _, p := range m.doc.Pillars {
		if strings.EqualFold(p.Title, ref) || p.ID == ref {
			return p.ID
		}
	}
	return ""
}

func (m model) resolveTemplateID(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	for _, t := range m.doc.Templates {
		if strings.EqualFold(t.Title, ref) || t.ID == ref {
			return t.ID
		}
	}
	return ""
}

func formatInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func parseOptionalInt(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

func formatBool(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "1":
		return true
	case "n", "no", "false", "0":
		return false
	default:
		return fallback
	}
}

func formatWindows(windows []store.PostingWindow) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, strings.TrimSpace(w.Day)+" "+strings.TrimSpace(w.Time))
	}
	return strings.Join(parts, ", ")
}

// parseWindows reads "Mon 09:00, Thu 17:30" into posting windows.
func parseWindows(raw string) ([]store.PostingWindow, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil
	}
	var out []store.PostingWindow
	for _, part := range strings.Split(text, ",") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad posting window %q, want e.g. \"Mon 09:00\"", strings.TrimSpace(part))
		}
		if _, err := time.Parse("15:04", fields[1]); err != nil {
			return nil, fmt.Errorf("bad window time %q", fields[1])
		}
		out = append(out, store.PostingWindow{Day: fields[0], Time: fields[1]})
	}
	return out, nil
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func parseWhen(raw string) (*time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil
	}
	layouts := []string{"2006-01-02 15:04", "2006-01-02T15:04", time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("bad time %q, want e.g. 2006-01-02 15:04", text)
}
