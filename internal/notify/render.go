package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"postpilot/internal/appinfo"
	"postpilot/internal/autopilot"
)

//go:embed email_template.html
var emailTemplateFS embed.FS

// reportEmail is the template payload: a lead paragraph rendered from
// markdown, a counts strip, and one row per visited post.
type reportEmail struct {
	AppDisplay string
	Title      string
	Preheader  string
	Lead       template.HTML
	Stats      []reportStat
	Rows       []reportRow
	Footer     string
}

type reportStat struct {
	Label string
	Value int
}

// reportRow is one visited post. Alert marks rows that need operator
// attention: failures and outcomes recorded only in this report.
type reportRow struct {
	PostID  string
	Outcome string
	Detail  string
	Alert   bool
}

var (
	emailTemplateOnce sync.Once
	emailTemplate     *template.Template
	emailTemplateErr  error
)

func getEmailTemplate() (*template.Template, error) {
	emailTemplateOnce.Do(func() {
		b, err := emailTemplateFS.ReadFile("email_template.html")
		if err != nil {
			emailTemplateErr = err
			return
		}
		emailTemplate, emailTemplateErr = template.New("email_template.html").Parse(string(b))
	})
	return emailTemplate, emailTemplateErr
}

var emailMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
)

var emailMarkdownMu sync.Mutex

func markdownToHTML(md string) template.HTML {
	var buf bytes.Buffer
	emailMarkdownMu.Lock()
	err := emailMarkdown.Convert([]byte(md), &buf)
	emailMarkdownMu.Unlock()
	if err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(buf.String())
}

// renderReportHTML builds the HTML body of a run-report email.
func renderReportHTML(report autopilot.Report, runErr error) (string, error) {
	mode := "live"
	if report.DryRun {
		mode = "dry-run"
	}

	lead := fmt.Sprintf("Autopilot %s run visited **%d** post(s).", mode, len(report.Items))
	if runErr != nil {
		lead += "\n\n**Run error:** " + runErr.Error()
	}
	if report.HasUnpersisted() {
		lead += "\n\n**UNPERSISTED OUTCOMES:** at least one result below is recorded only in this report; reconcile it against the store by hand."
	}

	stamp := report.FinishedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}

	data := reportEmail{
		AppDisplay: appinfo.Display(),
		Title:      fmt.Sprintf("Autopilot run (%s)", mode),
		Preheader:  reportPreheader(report, runErr),
		Lead:       markdownToHTML(lead),
		Stats: []reportStat{
			{Label: "Published", Value: report.Published()},
			{Label: "Generated", Value: report.Generated()},
			{Label: "Skipped", Value: report.Skipped()},
			{Label: "Failed", Value: report.Failed()},
		},
		Rows:   reportRows(report),
		Footer: fmt.Sprintf("%s %s", appinfo.Name, stamp.Format(time.RFC3339)),
	}

	tmpl, err := getEmailTemplate()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}

func reportRows(report autopilot.Report) []reportRow {
	rows := make([]reportRow, 0, len(report.Items))
	for _, item := range report.Items {
		row := reportRow{
			PostID:  item.PostID,
			Outcome: item.Outcome,
			Alert:   item.Unpersisted || item.Outcome == autopilot.OutcomeFailed,
		}
		switch {
		case item.Unpersisted:
			row.Detail = "UNPERSISTED: " + firstNonEmpty(item.ExternalPostID, item.Error, "no further detail")
		case item.ExternalPostID != "":
			row.Detail = item.ExternalPostID
		case item.Error != "":
			row.Detail = item.Error
		default:
			row.Detail = item.Reason
		}
		rows = append(rows, row)
	}
	return rows
}

func reportPreheader(report autopilot.Report, runErr error) string {
	mode := "live"
	if report.DryRun {
		mode = "dry-run"
	}
	s := fmt.Sprintf("%s run: %d published, %d generated, %d skipped, %d failed",
		mode, report.Published(), report.Generated(), report.Skipped(), report.Failed())
	if runErr != nil {
		s += "; run error: " + runErr.Error()
	}
	return clipPreheader(s)
}

const preheaderMax = 160

func clipPreheader(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= preheaderMax {
		return s
	}
	cut := preheaderMax
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
