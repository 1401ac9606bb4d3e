// Package notify delivers run reports to the operator by email. Delivery is
// best-effort: the autopilot never blocks or fails a run on a lost email.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"postpilot/internal/autopilot"
	"postpilot/internal/config"
)

type Notifier struct {
	cfg        config.EmailConfig
	recipients []string
	prefix     string
}

// New returns nil without error when notification is disabled or the email
// config is incomplete; callers treat a nil notifier as "do not deliver".
func New(cfg config.NotifyConfig) (*Notifier, error) {
	if cfg.Enabled != nil && !*cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Email.EmailAddress) == "" && strings.TrimSpace(cfg.Email.To) == "" {
		return nil, nil
	}
	if err := cfg.Email.Validate(); err != nil {
		return nil, err
	}
	recipients := ParseRecipients(cfg.Email.To)
	if len(recipients) == 0 {
		recipients = []string{strings.TrimSpace(cfg.Email.EmailAddress)}
	}
	prefix := strings.TrimSpace(cfg.Email.SubjectPrefix)
	if prefix == "" {
		prefix = "[postpilot]"
	}
	return &Notifier{cfg: cfg.Email, recipients: recipients, prefix: prefix}, nil
}

// SendRunReport renders the run report and emails it to every configured
// recipient. The plain-text part carries the report summary; the HTML part
// is the itemized table.
func (n *Notifier) SendRunReport(ctx context.Context, report autopilot.Report, runErr error) error {
	if n == nil {
		return errors.New("notifier is not configured")
	}
	subject := n.runSubject(report, runErr)

	textBody := report.Summary()
	if runErr != nil {
		textBody += "\nRun error: " + runErr.Error() + "\n"
	}
	htmlBody, err := renderReportHTML(report, runErr)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	for _, to := range n.recipients {
		msg, err := buildMessage(strings.TrimSpace(n.cfg.EmailAddress), to, subject, textBody, htmlBody)
		if err != nil {
			return fmt.Errorf("build email: %w", err)
		}
		if err := n.deliver(ctx, to, msg); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) runSubject(report autopilot.Report, runErr error) string {
	status := "ok"
	switch {
	case runErr != nil || report.HasUnpersisted():
		status = "ERROR"
	case report.Failed() > 0:
		status = "partial"
	}
	date := report.StartedAt
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return fmt.Sprintf("%s Autopilot run %s: %d published, %d failed (%s)",
		n.prefix, status, report.Published(), report.Failed(), date.Format("2006-01-02 15:04"))
}

func (n *Notifier) deliver(ctx context.Context, to string, msg []byte) error {
	from := strings.TrimSpace(n.cfg.EmailAddress)
	server := strings.TrimSpace(n.cfg.SMTP.Server)
	addr := fmt.Sprintf("%s:%d", server, n.cfg.SMTP.Port)
	dialer := &net.Dialer{Timeout: 15 * time.Second}

	var conn net.Conn
	var err error
	if n.cfg.SMTP.UseSSL {
		tlsCfg := &tls.Config{ServerName: server}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, server)
	if err != nil {
		return fmt.Errorf("smtp client failed: %w", err)
	}
	defer func() { _ = c.Quit() }()

	auth := smtp.PlainAuth("", from, strings.TrimSpace(n.cfg.AuthorizationCode), server)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close failed: %w", err)
	}
	return nil
}

// buildMessage composes a multipart/alternative message with a plain-text
// part (the report summary) and the rendered HTML part.
func buildMessage(from string, to string, subject string, textBody string, htmlBody string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(strings.TrimSpace(subject))
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})

	var buf bytes.Buffer
	mw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, strings.TrimSpace(textBody)+"\r\n"); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	var htmlHeader mail.InlineHeader
	htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hw, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(hw, htmlBody); err != nil {
		return nil, err
	}
	if err := hw.Close(); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseRecipients splits a comma/semicolon/whitespace separated address list,
// lowercasing and deduplicating.
func ParseRecipients(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\t', ' ':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		addr := strings.ToLower(strings.TrimSpace(p))
		if strings.HasPrefix(addr, "<") && strings.HasSuffix(addr, ">") {
			addr = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(addr, "<"), ">")))
		}
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
