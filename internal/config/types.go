package config

import (
	"errors"
	"strings"
)

// Config is the full file config for the bot.
//
// All durations are Go duration strings (e.g. "500ms", "60s", "2h").
// The file may be JSON or YAML; YAML is coerced to JSON and decoded strictly,
// so unknown keys are rejected early.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Feed      FeedConfig      `json:"feed"`
	Search    SearchConfig    `json:"search,omitempty"`
	Generator GeneratorConfig `json:"generator"`
	Publisher PublisherConfig `json:"publisher"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Fallback  FallbackConfig  `json:"fallback,omitempty"`
	Ledger    LedgerConfig    `json:"ledger,omitempty"`
	Notifier  NotifierConfig  `json:"notifier,omitempty"`
	Server    ServerConfig    `json:"server,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// FeedConfig points at the trending-posts content source.
type FeedConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout is a Go duration string for outbound calls.
	Timeout string `json:"timeout,omitempty"`
	// TopK caps how many ranked candidates are retained (default 10).
	TopK int `json:"top_k,omitempty"`
	// CorpusLimit caps per-candidate corpus texts fetched by contract address (default 100).
	CorpusLimit int `json:"corpus_limit,omitempty"`
}

// SearchConfig points at the Serper-style search/news endpoint used to
// enrich prompt context. Optional; when api_key is empty the search stage
// is skipped.
type SearchConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	// Country is the "gl" query knob (e.g. "tw", "us").
	Country string `json:"country,omitempty"`
}

type GeneratorConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
	// Temperature defaults to 0.7 when zero.
	Temperature float64 `json:"temperature,omitempty"`
}

type PublisherConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
	// RatePerMin is the local pacing budget for outbound posts (default 1).
	RatePerMin int    `json:"rate_per_min,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type SchedulerConfig struct {
	// PollInterval is how often the loop checks for due jobs (default "60s").
	PollInterval string `json:"poll_interval,omitempty"`
	// StaggerUnit spaces staggered jobs apart (default "2h").
	StaggerUnit string `json:"stagger_unit,omitempty"`
}

type PipelineConfig struct {
	// Cron optionally re-runs the aggregation pass on a schedule
	// (cron spec or "@every 6h"). Empty means manual trigger only.
	Cron string `json:"cron,omitempty"`
	// RunOnStart triggers one pass right after startup.
	RunOnStart bool `json:"run_on_start,omitempty"`
	// Timezone for the cron trigger (IANA name). Empty means local.
	Timezone string `json:"timezone,omitempty"`
}

type FallbackConfig struct {
	// Messages override the built-in default rotation when non-empty.
	Messages []string `json:"messages,omitempty"`
}

// LedgerConfig controls the balance store.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the ledger is disabled.
type LedgerConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifierConfig controls operator alerts sent to Telegram.
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token,omitempty"`
	ChatID      int64  `json:"chat_id,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// ServerConfig controls the operator HTTP API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - Set a token if you bind anywhere else.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Validate checks cross-field requirements that strict decoding can't express.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Feed.BaseURL) == "" {
		return errors.New("feed.base_url is required")
	}
	if strings.TrimSpace(c.Publisher.BaseURL) == "" {
		return errors.New("publisher.base_url is required")
	}
	if strings.TrimSpace(c.Generator.Model) == "" {
		return errors.New("generator.model is required")
	}
	if c.Notifier.Enabled {
		if strings.TrimSpace(c.Notifier.Token) == "" {
			return errors.New("notifier.token is required when notifier is enabled")
		}
		if c.Notifier.ChatID == 0 {
			return errors.New("notifier.chat_id is required when notifier is enabled")
		}
	}
	for _, field := range []struct{ path, raw string }{
		{"feed.timeout", c.Feed.Timeout},
		{"publisher.timeout", c.Publisher.Timeout},
		{"scheduler.poll_interval", c.Scheduler.PollInterval},
		{"scheduler.stagger_unit", c.Scheduler.StaggerUnit},
		{"ledger.busy_timeout", c.Ledger.BusyTimeout},
		{"notifier.dedup_window", c.Notifier.DedupWindow},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	return nil
}
