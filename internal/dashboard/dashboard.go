// Package dashboard is the operator TUI: profile and content-library
// editing, the post queue, and run history, with run / dry-run triggers.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"postpilot/internal/autopilot"
	"postpilot/internal/store"
)

const runHistoryLimit = 50

// Store is the slice of the content store the dashboard reads and edits.
// Both the file-backed manager and the redis-mirrored variant satisfy it.
type Store interface {
	Load() (store.Document, error)
	UpsertProfile(ctx context.Context, profile store.Profile) error
	UpsertPillar(ctx context.Context, pillar store.Pillar) (store.Pillar, error)
	DeletePillar(ctx context.Context, id string) error
	UpsertTemplate(ctx context.Context, tpl store.Template) (store.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	UpsertIdea(ctx context.Context, idea store.Idea) (store.Idea, error)
	DeleteIdea(ctx context.Context, id string) error
	UpsertPost(ctx context.Context, post store.ScheduledPost) (store.ScheduledPost, error)
	UpdatePostStatus(ctx context.Context, id string, status string, patch store.PostPatch) error
	DeletePost(ctx context.Context, id string) error
}

type Options struct {
	Store  Store
	Runner *autopilot.Runner
	// RunLogPath feeds the Runs tab and receives records for manual runs.
	RunLogPath string
	LookAhead  time.Duration
}

func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Store == nil {
		return errors.New("store is required")
	}
	if f, ok := out.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			return errors.New("stdout is not a TTY; use the run/post-now subcommands instead")
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newModel(ctx, opts)
	prog := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := prog.Run()
	return err
}

const (
	tabProfile = iota
	tabPillars
	tabTemplates
	tabIdeas
	tabQueue
	tabRuns
	tabCount
)

var tabNames = [tabCount]string{"Profile", "Pillars", "Templates", "Ideas", "Queue", "Runs"}

type model struct {
	ctx    context.Context
	store  Store
	runner *autopilot.Runner
	runLog string

	lookAhead time.Duration

	width  int
	height int

	doc  store.Document
	runs []autopilot.RunRecord

	tab     int
	cursors [tabCount]int

	form *form

	busy          bool
	loading       bool
	notice        string
	confirmID     string
	confirmPrompt string
	fatal         error
}

type loadedMsg struct {
	Doc  store.Document
	Runs []autopilot.RunRecord
	Err  error
}

type savedMsg struct {
	Notice string
	Err    error
}

type runDoneMsg struct {
	Report autopilot.Report
	Err    error
}

type postDoneMsg struct {
	Result autopilot.ItemResult
	Err    error
}

type tickMsg struct{}

func newModel(ctx context.Context, opts Options) model {
	return model{
		ctx:       ctx,
		store:     opts.Store,
		runner:    opts.Runner,
		runLog:    opts.RunLogPath,
		lookAhead: opts.LookAhead,
		loading:   true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) loadCmd() tea.Cmd {
	st := m.store
	runLog := m.runLog
	return func() tea.Msg {
		doc, err := st.Load()
		if err != nil {
			return loadedMsg{Err: err}
		}
		var runs []autopilot.RunRecord
		if runLog != "" {
			runs, _ = autopilot.ReadRecentRuns(runLog, runHistoryLimit)
		}
		return loadedMsg{Doc: doc, Runs: runs}
	}
}

func (m model) runCmd(dryRun bool) tea.Cmd {
	ctx := m.ctx
	runner := m.runner
	runLog := m.runLog
	lookAhead := m.lookAhead
	return func() tea.Msg {
		if runner == nil {
			return runDoneMsg{Err: errors.New("autopilot is not configured")}
		}
		report, err := runner.RunOnce(ctx, autopilot.Options{DryRun: dryRun, LookAhead: lookAhead})
		if runLog != "" && !dryRun {
			_ = autopilot.AppendRunRecord(runLog, autopilot.NewRunRecord(report, err))
		}
		return runDoneMsg{Report: report, Err: err}
	}
}

func (m model) postNowCmd(id string) tea.Cmd {
	ctx := m.ctx
	runner := m.runner
	return func() tea.Msg {
		if runner == nil {
			return postDoneMsg{Err: errors.New("autopilot is not configured")}
		}
		res, err := runner.RunPost(ctx, id)
		return postDoneMsg{Result: res, Err: err}
	}
}

func (m model) saveCmd(notice string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return savedMsg{Err: err}
		}
		return savedMsg{Notice: notice}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case loadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.fatal = msg.Err
			return m, nil
		}
		m.doc = msg.Doc
		m.runs = msg.Runs
		m.clampCursors()
		return m, nil
	case savedMsg:
		if msg.Err != nil {
			m.notice = msg.Err.Error()
			return m, nil
		}
		m.notice = msg.Notice
		m.form = nil
		return m, m.loadCmd()
	case runDoneMsg:
		m.busy = false
		if msg.Err != nil {
			m.notice = "run failed: " + msg.Err.Error()
		} else {
			m.notice = runNotice(msg.Report)
		}
		return m, m.loadCmd()
	case postDoneMsg:
		m.busy = false
		switch {
		case msg.Err != nil:
			m.notice = "post failed: " + msg.Err.Error()
		case msg.Result.Outcome == autopilot.OutcomePublished:
			m.notice = "published " + msg.Result.ExternalPostID
		default:
			m.notice = fmt.Sprintf("%s (%s) %s", msg.Result.Outcome, msg.Result.Reason, msg.Result.Error)
		}
		return m, m.loadCmd()
	case tickMsg:
		if m.form == nil && !m.busy {
			return m, tea.Batch(m.loadCmd(), tickCmd())
		}
		return m, tickCmd()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	if m.form != nil {
		cmd := m.form.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.fatal != nil {
		return m, tea.Quit
	}
	if m.form != nil {
		done, cmd := m.form.handleKey(msg)
		if done {
			m.form = nil
		}
		return m, cmd
	}

	key := msg.String()

	// Second keypress confirms a pending delete; anything else cancels it.
	if m.confirmID != "" {
		id := m.confirmID
		m.confirmID = ""
		m.confirmPrompt = ""
		if key == "d" {
			return m, m.deleteCurrent(id)
		}
		m.notice = "delete cancelled"
		return m, nil
	}

	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab", "right", "l":
		m.tab = (m.tab + 1) % tabCount
		m.notice = ""
		return m, nil
	case "shift+tab", "left", "h":
		m.tab = (m.tab + tabCount - 1) % tabCount
		m.notice = ""
		return m, nil
	case "up", "k":
		if m.cursors[m.tab] > 0 {
			m.cursors[m.tab]--
		}
		return m, nil
	case "down", "j":
		if m.cursors[m.tab] < m.tabLen()-1 {
			m.cursors[m.tab]++
		}
		return m, nil
	case "r":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.notice = "running..."
		return m, m.runCmd(false)
	case "R":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.notice = "dry run..."
		return m, m.runCmd(true)
	case "n":
		return m.openNewForm()
	case "e", "enter":
		return m.openEditForm()
	case "d":
		return m.requestDelete()
	case "p":
		if m.tab == tabQueue && !m.busy {
			if post, ok := m.selectedPost(); ok {
				m.busy = true
				m.notice = "publishing..."
				return m, m.postNowCmd(post.ID)
			}
		}
		return m, nil
	case "c":
		if m.tab == tabQueue {
			if post, ok := m.selectedPost(); ok && !store.IsTerminalStatus(post.Status) {
				id := post.ID
				return m, m.saveCmd("post cancelled", func(ctx context.Context) error {
					return m.store.UpdatePostStatus(ctx, id, store.StatusCancelled, store.PostPatch{})
				})
			}
		}
		return m, nil
	case "a":
		if m.tab == tabQueue {
			if post, ok := m.selectedPost(); ok && !store.IsTerminalStatus(post.Status) {
				p := post
				p.Autopilot = !p.Autopilot
				return m, m.saveCmd("autopilot toggled", func(ctx context.Context) error {
					_, err := m.store.UpsertPost(ctx, p)
					return err
				})
			}
		}
		return m, nil
	}
	return m, nil
}

func (m model) tabLen() int {
	switch m.tab {
	case tabPillars:
		return len(m.doc.Pillars)
	case tabTemplates:
		return len(m.doc.Templates)
	case tabIdeas:
		return len(m.doc.Ideas)
	case tabQueue:
		return len(m.doc.Posts)
	case tabRuns:
		return len(m.runs)
	default:
		return 0
	}
}

func (m *model) clampCursors() {
	for tab := range m.cursors {
		limit := 0
		switch tab {
		case tabPillars:
			limit = len(m.doc.Pillars)
		case tabTemplates:
			limit = len(m.doc.Templates)
		case tabIdeas:
			limit = len(m.doc.Ideas)
		case tabQueue:
			limit = len(m.doc.Posts)
		case tabRuns:
			limit = len(m.runs)
		}
		if m.cursors[tab] >= limit {
			m.cursors[tab] = max(0, limit-1)
		}
	}
}

func (m model) selectedPost() (store.ScheduledPost, bool) {
	i := m.cursors[tabQueue]
	if i < 0 || i >= len(m.doc.Posts) {
		return store.ScheduledPost{}, false
	}
	return m.doc.Posts[i], true
}

func (m model) openNewForm() (tea.Model, tea.Cmd) {
	switch m.tab {
	case tabPillars:
		m.form = m.pillarForm(store.Pillar{Active: true})
	case tabTemplates:
		m.form = m.templateForm(store.Template{})
	case tabIdeas:
		m.form = m.ideaForm(store.Idea{})
	case tabQueue:
		m.form = m.postForm(store.ScheduledPost{Autopilot: true})
	default:
		return m, nil
	}
	return m, nil
}

func (m model) openEditForm() (tea.Model, tea.Cmd) {
	switch m.tab {
	case tabProfile:
		var profile store.Profile
		if m.doc.Profile != nil {
			profile = *m.doc.Profile
		}
		m.form = m.profileForm(profile)
	case tabPillars:
		if i := m.cursors[tabPillars]; i < len(m.doc.Pillars) {
			m.form = m.pillarForm(m.doc.Pillars[i])
		}
	case tabTemplates:
		if i := m.cursors[tabTemplates]; i < len(m.doc.Templates) {
			m.form = m.templateForm(m.doc.Templates[i])
		}
	case tabIdeas:
		if i := m.cursors[tabIdeas]; i < len(m.doc.Ideas) {
			m.form = m.ideaForm(m.doc.Ideas[i])
		}
	case tabQueue:
		if post, ok := m.selectedPost(); ok && !store.IsTerminalStatus(post.Status) {
			m.form = m.postForm(post)
		}
	}
	return m, nil
}

func (m model) requestDelete() (tea.Model, tea.Cmd) {
	var id, name string
	switch m.tab {
	case tabPillars:
		if i := m.cursors[tabPillars]; i < len(m.doc.Pillars) {
			id, name = m.doc.Pillars[i].ID, m.doc.Pillars[i].Title
		}
	case tabTemplates:
		if i := m.cursors[tabTemplates]; i < len(m.doc.Templates) {
			id, name = m.doc.Templates[i].ID, m.doc.Templates[i].Title
		}
	case tabIdeas:
		if i := m.cursors[tabIdeas]; i < len(m.doc.Ideas) {
			id, name = m.doc.Ideas[i].ID, m.doc.Ideas[i].Summary
		}
	case tabQueue:
		if post, ok := m.selectedPost(); ok {
			id, name = post.ID, post.ID
		}
	}
	if id == "" {
		return m, nil
	}
	m.confirmID = id
	m.confirmPrompt = fmt.Sprintf("press d again to delete %q", truncateTo(name, 40))
	return m, nil
}

func (m model) deleteCurrent(id string) tea.Cmd {
	tab := m.tab
	st := m.store
	return m.saveCmd("deleted", func(ctx context.Context) error {
		switch tab {
		case tabPillars:
			return st.DeletePillar(ctx, id)
		case tabTemplates:
			return st.DeleteTemplate(ctx, id)
		case tabIdeas:
			return st.DeleteIdea(ctx, id)
		case tabQueue:
			return st.DeletePost(ctx, id)
		default:
			return nil
		}
	})
}

func runNotice(report autopilot.Report) string {
	mode := "run"
	if report.DryRun {
		mode = "dry run"
	}
	s := fmt.Sprintf("%s: %d published, %d generated, %d skipped, %d failed",
		mode, report.Published(), report.Generated(), report.Skipped(), report.Failed())
	if report.HasUnpersisted() {
		s += " [UNPERSISTED OUTCOMES]"
	}
	return s
}
