package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRelay/internal/domain"
)

const sample = `
timezone: Europe/Berlin
database:
  driver: postgres
  dsn: postgres://relay@localhost/relay
scheduler:
  intervalHours: 4
fetch:
  timeout: 10s
  breakerCooldown: 2m
dedup:
  similarity: 0.9
  prefixes: ["EXCLUSIVE:"]
channels:
  default: world
  chats:
    world: "-1001"
    anime: "-1002"
sources:
  - code: BBC
    url: https://feeds.example.com/bbc.xml
    category: World
    priority: 10
  - code: ANN
    url: https://feeds.example.com/ann.xml
    category: anime
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Scheduler.IntervalHours)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Fetch.BreakerCooldown)
	assert.Equal(t, 16, cfg.Fetch.Concurrency, "unset keys keep defaults")
	assert.Equal(t, 0.9, cfg.Dedup.Similarity)
	assert.Equal(t, 7, cfg.Dedup.HistoryDays)
	assert.Equal(t, []string{"EXCLUSIVE:"}, cfg.Dedup.Prefixes)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())

	list := cfg.SourceList()
	require.Len(t, list, 2)
	assert.Equal(t, domain.CategoryWorld, list[0].Category)
	assert.Equal(t, "https://feeds.example.com/ann.xml", list[1].FeedURL)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(databaseDSNEnv, "file:env.db")
	t.Setenv(telegramTokenEnv, "bot-token")
	t.Setenv(telegramAdminEnv, "42")
	t.Setenv(telegraphTokenEnv, "tg-token")
	t.Setenv(timezoneEnv, "UTC")
	t.Setenv(channelEnvPrefix+"ANIME", "-2002")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "file:env.db", cfg.Database.DSN)
	assert.Equal(t, "bot-token", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.AdminChatID)
	assert.Equal(t, "tg-token", cfg.Telegraph.Token)
	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	assert.Equal(t, "-2002", cfg.ChannelMap()[domain.CategoryAnime])
	assert.Equal(t, "-1001", cfg.ChannelMap()[domain.CategoryWorld])
}

func TestLoad_PathFromEnv(t *testing.T) {
	t.Setenv(configPathEnv, writeConfig(t, "scheduler:\n  intervalHours: 6\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Scheduler.IntervalHours)
	assert.Equal(t, defaultTimezone, cfg.Timezone)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = Load(writeConfig(t, "scheduler: [unclosed"))
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = Load(writeConfig(t, "timezone: Mars/Olympus\n"))
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestDefault_UsesCatalog(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NotEmpty(t, cfg.SourceList())
	assert.Equal(t, domain.CategoryWorld, cfg.DefaultCategory())

	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrConfig, "catalog categories have no channel ids by default")
	assert.Contains(t, err.Error(), "has no channel id")

	cfg.Channels.Chats = map[string]string{"world": "-1", "anime": "-2"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		c := Default()
		c.Channels.Chats = map[string]string{"world": "-1"}
		c.Sources = []SourceConfig{{Code: "BBC", URL: "https://e.com/bbc", Category: "world"}}
		return c
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"duplicate codes": func(c *Config) {
			c.Sources = append(c.Sources, SourceConfig{Code: "BBC", URL: "https://e.com/2", Category: "world"})
		},
		"unrouted category": func(c *Config) {
			c.Sources = append(c.Sources, SourceConfig{Code: "ANN", URL: "https://e.com/ann", Category: "anime"})
		},
		"missing default channel":  func(c *Config) { c.Channels.Default = "sports" },
		"interval not dividing 24": func(c *Config) { c.Scheduler.IntervalHours = 5 },
		"unknown driver":           func(c *Config) { c.Database.Driver = "mysql" },
		"similarity out of range":  func(c *Config) { c.Dedup.Similarity = 1.5 },
		"source without url":       func(c *Config) { c.Sources[0].URL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := base()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), domain.ErrConfig)
		})
	}
}
