// Package config loads the relay configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/sources"
)

const (
	defaultTimezone = "Asia/Kolkata"

	configPathEnv     = "NEWSRELAY_CONFIG"
	timezoneEnv       = "NEWSRELAY_TIMEZONE"
	channelEnvPrefix  = "NEWSRELAY_CHANNEL_"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramAdminEnv  = "TELEGRAM_ADMIN_CHAT_ID"
	telegraphTokenEnv = "TELEGRAPH_TOKEN"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Timezone  string          `yaml:"timezone"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Sources   []SourceConfig  `yaml:"sources"`
	Control   ControlConfig   `yaml:"control"`

	location *time.Location
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig describes the store connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines the slot width of the in-process scheduler.
type SchedulerConfig struct {
	IntervalHours int  `yaml:"intervalHours"`
	RunOnStart    bool `yaml:"runOnStart"`
}

// FetchConfig tunes feed fetching and the per-source breakers.
type FetchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
	BackoffBase      time.Duration `yaml:"backoffBase"`
	BackoffMax       time.Duration `yaml:"backoffMax"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
	UserAgent        string        `yaml:"userAgent"`
	MaxBodyBytes     int64         `yaml:"maxBodyBytes"`
}

// DedupConfig tunes duplicate suppression and freshness.
type DedupConfig struct {
	Similarity        float64  `yaml:"similarity"`
	HistoryDays       int      `yaml:"historyDays"`
	ExactLookbackDays int      `yaml:"exactLookbackDays"`
	FreshnessDays     int      `yaml:"freshnessDays"`
	Prefixes          []string `yaml:"prefixes"`
}

// DeliveryConfig tunes posting to channels.
type DeliveryConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	BackoffBase time.Duration `yaml:"backoffBase"`
	Pause       time.Duration `yaml:"pause"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken       string `yaml:"botToken"`
	AdminChatID    string `yaml:"adminChatId"`
	DisablePreview bool   `yaml:"disablePreview"`
	APIBase        string `yaml:"apiBase"`
}

// TelegraphConfig enables article pages when Token is set.
type TelegraphConfig struct {
	Token      string `yaml:"token"`
	AuthorName string `yaml:"authorName"`
	AuthorURL  string `yaml:"authorUrl"`
	Endpoint   string `yaml:"endpoint"`
}

// ChannelsConfig maps categories to chat ids.
type ChannelsConfig struct {
	Default string            `yaml:"default"`
	Chats   map[string]string `yaml:"chats"`
}

// SourceConfig describes a single feed.
type SourceConfig struct {
	Code     string `yaml:"code"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"`
	Label    string `yaml:"label"`
}

// ControlConfig configures the operator HTTP surface.
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration on top of the defaults, applies environment
// overrides and binds the timezone. path falls back to NEWSRELAY_CONFIG;
// with neither set only defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %w", domain.ErrConfig, path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", domain.ErrConfig, path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramAdminEnv); v != "" {
		c.Telegram.AdminChatID = v
	}
	if v := os.Getenv(telegraphTokenEnv); v != "" {
		c.Telegraph.Token = v
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, channelEnvPrefix) || value == "" {
			continue
		}
		category := strings.ToLower(strings.TrimPrefix(key, channelEnvPrefix))
		if category == "" {
			continue
		}
		if c.Channels.Chats == nil {
			c.Channels.Chats = map[string]string{}
		}
		c.Channels.Chats[category] = value
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone %q: %w", domain.ErrConfig, tz, err)
	}
	c.Timezone = tz
	c.location = loc
	return nil
}

// Location resolves the operating timezone.
func (c Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SourceList converts the configured sources, or returns the built-in
// catalog when none are configured.
func (c Config) SourceList() []domain.Source {
	if len(c.Sources) == 0 {
		return sources.Defaults()
	}
	out := make([]domain.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, domain.Source{
			Code:     strings.TrimSpace(s.Code),
			FeedURL:  strings.TrimSpace(s.URL),
			Category: domain.Category(strings.ToLower(strings.TrimSpace(s.Category))),
			Priority: s.Priority,
			Label:    s.Label,
		})
	}
	return out
}

// ChannelMap returns the category to chat id table.
func (c Config) ChannelMap() map[domain.Category]string {
	out := make(map[domain.Category]string, len(c.Channels.Chats))
	for k, v := range c.Channels.Chats {
		out[domain.Category(strings.ToLower(k))] = strings.TrimSpace(v)
	}
	return out
}

// DefaultCategory is the fallback routing category.
func (c Config) DefaultCategory() domain.Category {
	return domain.Category(strings.ToLower(strings.TrimSpace(c.Channels.Default)))
}

// Validate reports every startup problem at once, wrapped in domain.ErrConfig.
func (c Config) Validate() error {
	var problems []error

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, errors.New("database.dsn is empty"))
	}

	if h := c.Scheduler.IntervalHours; h < 1 || h > 24 || 24%h != 0 {
		problems = append(problems, fmt.Errorf("scheduler.intervalHours %d must divide 24", h))
	}
	if c.Fetch.Concurrency < 1 {
		problems = append(problems, errors.New("fetch.concurrency must be positive"))
	}
	if c.Delivery.Concurrency < 1 {
		problems = append(problems, errors.New("delivery.concurrency must be positive"))
	}
	if s := c.Dedup.Similarity; s <= 0 || s > 1 {
		problems = append(problems, fmt.Errorf("dedup.similarity %v must be in (0, 1]", s))
	}
	if c.Dedup.HistoryDays < 1 {
		problems = append(problems, errors.New("dedup.historyDays must be positive"))
	}
	if c.Dedup.FreshnessDays < 0 {
		problems = append(problems, errors.New("dedup.freshnessDays must not be negative"))
	}

	list := c.SourceList()
	if len(list) == 0 {
		problems = append(problems, errors.New("no sources configured"))
	}
	channels := c.ChannelMap()
	seen := make(map[string]bool, len(list))
	for i, s := range list {
		if s.Code == "" {
			problems = append(problems, fmt.Errorf("source #%d has no code", i))
			continue
		}
		if seen[s.Code] {
			problems = append(problems, fmt.Errorf("duplicate source code %s", s.Code))
		}
		seen[s.Code] = true
		if s.FeedURL == "" {
			problems = append(problems, fmt.Errorf("source %s has no url", s.Code))
		}
		if s.Category == "" {
			problems = append(problems, fmt.Errorf("source %s has no category", s.Code))
		} else if channels[s.Category] == "" {
			problems = append(problems, fmt.Errorf("category %s of source %s has no channel id", s.Category, s.Code))
		}
	}

	def := c.DefaultCategory()
	if def == "" {
		problems = append(problems, errors.New("channels.default is empty"))
	} else if channels[def] == "" {
		problems = append(problems, fmt.Errorf("default category %s has no channel id", def))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfig, errors.Join(problems...))
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Timezone:  defaultTimezone,
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "newsrelay.db"},
		Scheduler: SchedulerConfig{IntervalHours: 2},
		Fetch: FetchConfig{
			Concurrency:      16,
			Timeout:          25 * time.Second,
			Retries:          3,
			BackoffBase:      2 * time.Second,
			BackoffMax:       30 * time.Second,
			BreakerThreshold: 3,
			BreakerCooldown:  5 * time.Minute,
			MaxBodyBytes:     5 << 20,
		},
		Dedup: DedupConfig{
			Similarity:        0.85,
			HistoryDays:       7,
			ExactLookbackDays: 3,
			FreshnessDays:     1,
		},
		Delivery: DeliveryConfig{
			Concurrency: 1,
			Timeout:     20 * time.Second,
			Retries:     2,
			BackoffBase: 2 * time.Second,
			Pause:       2 * time.Second,
		},
		Telegraph: TelegraphConfig{AuthorName: "NewsRelay"},
		Channels:  ChannelsConfig{Default: string(domain.CategoryWorld), Chats: map[string]string{}},
		Control:   ControlConfig{Addr: "127.0.0.1:8089"},
	}
}

// String renders a redacted summary for logs.
func (c Config) String() string {
	return fmt.Sprintf("driver=%s tz=%s interval=%dh sources=%d channels=%d telegraph=%s",
		c.Database.Driver, c.Timezone, c.Scheduler.IntervalHours, len(c.SourceList()),
		len(c.Channels.Chats), strconv.FormatBool(c.Telegraph.Token != ""))
}
