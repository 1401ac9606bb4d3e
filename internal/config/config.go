package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	LLM       LLMConfig       `json:"llm"`
	LinkedIn  LinkedInConfig  `json:"linkedin"`
	Autopilot AutopilotConfig `json:"autopilot"`
	Notify    NotifyConfig    `json:"notify"`
	Redis     RedisConfig     `json:"redis"`
	Log       LogConfig       `json:"log"`
}

type LLMConfig struct {
	APIKey    string `json:"api_key"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	ModelType string `json:"model_type"`
	MaxTokens int    `json:"max_tokens"`
}

type LinkedInConfig struct {
	AccessToken string `json:"access_token"`
	AuthorURN   string `json:"author_urn"`
	BaseURL     string `json:"base_url"`
	Timeout     string `json:"timeout"`
}

type AutopilotConfig struct {
	Enabled          *bool  `json:"enabled"`
	LookAheadMinutes int    `json:"look_ahead_minutes"`
	Every            string `json:"every"`
	DefaultTimezone  string `json:"default_timezone"`
	StepTimeout      string `json:"step_timeout"`
	StuckRun         string `json:"stuck_run"`
	MaxTimerDelay    string `json:"max_timer_delay"`
}

type NotifyConfig struct {
	Enabled *bool       `json:"enabled"`
	Email   EmailConfig `json:"email"`
}

type EmailConfig struct {
	EmailAddress      string     `json:"email_address"`
	AuthorizationCode string     `json:"authorization_code"`
	To                string     `json:"to"`
	SubjectPrefix     string     `json:"subject_prefix"`
	SMTP              SMTPConfig `json:"smtp"`
}

type SMTPConfig struct {
	Server string `json:"server"`
	Port   int    `json:"port"`
	UseSSL bool   `json:"use_ssl"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Prefix string `json:"prefix"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		LinkedIn: LinkedInConfig{
			BaseURL: "https://api.linkedin.com",
			Timeout: "30s",
		},
		Autopilot: AutopilotConfig{
			LookAheadMinutes: 0,
			DefaultTimezone:  "Local",
			StepTimeout:      "90s",
			StuckRun:         "2h",
			MaxTimerDelay:    "60s",
		},
		Notify: NotifyConfig{
			Email: EmailConfig{
				SubjectPrefix: "[postpilot]",
				SMTP:          SMTPConfig{Port: 465, UseSSL: true},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c Config) WithDefaults() Config {
	out := c
	def := DefaultConfig()

	if strings.TrimSpace(out.LLM.Model) == "" {
		out.LLM.Model = def.LLM.Model
	}
	if strings.TrimSpace(out.LinkedIn.BaseURL) == "" {
		out.LinkedIn.BaseURL = def.LinkedIn.BaseURL
	}
	if strings.TrimSpace(out.LinkedIn.Timeout) == "" {
		out.LinkedIn.Timeout = def.LinkedIn.Timeout
	}

	if out.Autopilot.Enabled == nil {
		v := true
		out.Autopilot.Enabled = &v
	}
	if out.Autopilot.LookAheadMinutes < 0 {
		out.Autopilot.LookAheadMinutes = 0
	}
	if strings.TrimSpace(out.Autopilot.DefaultTimezone) == "" {
		out.Autopilot.DefaultTimezone = def.Autopilot.DefaultTimezone
	}
	if strings.TrimSpace(out.Autopilot.StepTimeout) == "" {
		out.Autopilot.StepTimeout = def.Autopilot.StepTimeout
	}
	if strings.TrimSpace(out.Autopilot.StuckRun) == "" {
		out.Autopilot.StuckRun = def.Autopilot.StuckRun
	}
	if strings.TrimSpace(out.Autopilot.MaxTimerDelay) == "" {
		out.Autopilot.MaxTimerDelay = def.Autopilot.MaxTimerDelay
	}

	if out.Notify.Enabled == nil {
		v := false
		out.Notify.Enabled = &v
	}
	if strings.TrimSpace(out.Notify.Email.SubjectPrefix) == "" {
		out.Notify.Email.SubjectPrefix = def.Notify.Email.SubjectPrefix
	}
	if out.Notify.Email.SMTP.Port <= 0 {
		out.Notify.Email.SMTP.Port = def.Notify.Email.SMTP.Port
	}

	if strings.TrimSpace(out.Log.Level) == "" {
		out.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(out.Log.Format) == "" {
		out.Log.Format = def.Log.Format
	}
	return out
}

// Load reads config.json and applies env overrides for secrets. A missing
// file is not an error: the defaults let read-only dashboard use proceed.
func Load(path string) (Config, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		p = "config.json"
	}
	var cfg Config
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		cfg = DefaultConfig()
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", p, err)
	}
	cfg = cfg.WithDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" && strings.TrimSpace(c.LLM.APIKey) == "" {
		c.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && strings.TrimSpace(c.LLM.APIKey) == "" {
		c.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKEDIN_ACCESS_TOKEN")); v != "" {
		c.LinkedIn.AccessToken = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKEDIN_AUTHOR_URN")); v != "" {
		c.LinkedIn.AuthorURN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" && strings.TrimSpace(c.Redis.URL) == "" {
		c.Redis.URL = v
	}
}

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.EmailAddress) == "" {
		return errors.New("email_address is required")
	}
	if strings.TrimSpace(c.AuthorizationCode) == "" {
		return errors.New("authorization_code is required")
	}
	if strings.TrimSpace(c.SMTP.Server) == "" {
		return errors.New("smtp.server is required")
	}
	if c.SMTP.Port <= 0 {
		return errors.New("smtp.port is required")
	}
	return nil
}

// ParseDurationOrDefault parses the duration-shaped config strings; blank or
// invalid values fall back.
func ParseDurationOrDefault(raw string, fallback time.Duration) time.Duration {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fallback
	}
	d, err := time.ParseDuration(text)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
