package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Model == "" {
		t.Fatal("expected default model")
	}
	if cfg.Autopilot.Enabled == nil || !*cfg.Autopilot.Enabled {
		t.Fatal("autopilot should default to enabled")
	}
	if cfg.Notify.Enabled == nil || *cfg.Notify.Enabled {
		t.Fatal("notify should default to disabled")
	}
	if cfg.LinkedIn.BaseURL != "https://api.linkedin.com" {
		t.Fatalf("unexpected linkedin base url: %q", cfg.LinkedIn.BaseURL)
	}
}

func TestLoadAppliesDefaultsOverPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"llm":{"api_key":"k","model":"claude-sonnet-4-5"},"autopilot":{"look_ahead_minutes":15}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
	if cfg.Autopilot.LookAheadMinutes != 15 {
		t.Fatalf("look_ahead_minutes = %d", cfg.Autopilot.LookAheadMinutes)
	}
	if cfg.Autopilot.StepTimeout != "90s" {
		t.Fatalf("step_timeout = %q", cfg.Autopilot.StepTimeout)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"bogus", time.Minute},
		{"-5s", time.Minute},
		{"90s", 90 * time.Second},
		{"2h", 2 * time.Hour},
	}
	for _, tc := range cases {
		if got := ParseDurationOrDefault(tc.in, time.Minute); got != tc.want {
			t.Errorf("ParseDurationOrDefault(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEmailConfigValidate(t *testing.T) {
	ok := EmailConfig{
		EmailAddress:      "ops@example.com",
		AuthorizationCode: "code",
		SMTP:              SMTPConfig{Server: "smtp.example.com", Port: 465},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := ok
	bad.SMTP.Server = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing smtp server")
	}
}
