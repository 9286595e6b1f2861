package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRelay/internal/config"
	"NewsRelay/internal/control"
	"NewsRelay/internal/domain"
)

type botAPI struct {
	mu    sync.Mutex
	chats []string
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChatID string `json:"chat_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	b.mu.Lock()
	b.chats = append(b.chats, payload.ChatID)
	n := len(b.chats)
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d}}`, n)
}

func (b *botAPI) Chats() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.chats...)
}

func testConfig(t *testing.T) (config.Config, *botAPI) {
	t.Helper()

	published := time.Now().UTC().Format(time.RFC1123Z)
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<rss version="2.0"><channel>
<item><title>Storm floods northern coast villages</title><link>https://example.com/a</link><pubDate>%[1]s</pubDate></item>
<item><title>Central bank raises interest rates again</title><link>https://example.com/b</link><pubDate>%[1]s</pubDate></item>
</channel></rss>`, published)
	}))
	t.Cleanup(feedSrv.Close)

	bot := &botAPI{}
	botSrv := httptest.NewServer(bot)
	t.Cleanup(botSrv.Close)

	cfg := config.Default()
	cfg.Database.DSN = ":memory:"
	cfg.Sources = []config.SourceConfig{{Code: "BBC", URL: feedSrv.URL, Category: "world", Priority: 10}}
	cfg.Channels.Chats = map[string]string{"world": "-1001"}
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.APIBase = botSrv.URL
	cfg.Telegram.AdminChatID = "42"
	cfg.Fetch.Retries = 0
	cfg.Delivery.Pause = 0
	cfg.Control.Addr = "127.0.0.1:0"
	return cfg, bot
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplication_RunOnce(t *testing.T) {
	cfg, bot := testConfig(t)
	ctx := context.Background()

	application, err := New(ctx, cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	report, err := application.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, report.Run.Status)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, []string{"-1001", "-1001", "42"}, bot.Chats())

	again, err := application.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	forced, err := application.RunOnce(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, forced.Sent)

	health := application.Pipeline().Health(ctx)
	assert.Equal(t, "ok", health.Status)
	assert.Len(t, health.RecentRuns, 2)
}

func TestApplication_RequiresBotToken(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Telegram.BotToken = ""

	_, err := New(context.Background(), cfg, discard())
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestApplication_InvalidConfig(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Scheduler.IntervalHours = 5

	_, err := New(context.Background(), cfg, discard())
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestApplication_ServeRefusesSecondInstance(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg, _ := testConfig(t)
	cfg.Control.Addr = ln.Addr().String()
	application, err := New(context.Background(), cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	err = application.Serve(context.Background())
	assert.ErrorIs(t, err, control.ErrAlreadyRunning)
}

func TestApplication_ServeStopsOnCancel(t *testing.T) {
	cfg, _ := testConfig(t)
	application, err := New(context.Background(), cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
