package subscription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/smallbiznis/botquota/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type checkerFunc func(ctx context.Context, accountID int64) (bool, error)

func (f checkerFunc) IsSubscribed(ctx context.Context, accountID int64) (bool, error) {
	return f(ctx, accountID)
}

func TestFailClosed(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	assert.True(t, FailClosed(ctx, StaticChecker{Subscribed: true}, log, 1))
	assert.False(t, FailClosed(ctx, StaticChecker{Subscribed: false}, log, 1))
	assert.False(t, FailClosed(ctx, nil, log, 1))

	failing := checkerFunc(func(context.Context, int64) (bool, error) {
		return true, errors.New("boom")
	})
	assert.False(t, FailClosed(ctx, failing, log, 1))
}

func TestStaticCheckerRejectsInvalidID(t *testing.T) {
	_, err := StaticChecker{Subscribed: true}.IsSubscribed(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAccountID)
}

func newTelegramServer(t *testing.T, body string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		assert.Equal(t, "/botsecret-token/getChatMember", r.URL.Path)
		assert.Equal(t, "@channel", r.URL.Query().Get("chat_id"))
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTelegramChecker(t *testing.T, srv *httptest.Server) *TelegramChecker {
	t.Helper()
	checker, err := NewTelegramChecker(TelegramOptions{
		BaseURL:   srv.URL,
		BotToken:  "secret-token",
		ChannelID: "@channel",
		Client:    srv.Client(),
	})
	require.NoError(t, err)
	return checker
}

func TestTelegramCheckerStatuses(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"creator", `{"ok":true,"result":{"status":"creator"}}`, true},
		{"administrator", `{"ok":true,"result":{"status":"administrator"}}`, true},
		{"member", `{"ok":true,"result":{"status":"member"}}`, true},
		{"restricted member", `{"ok":true,"result":{"status":"restricted","is_member":true}}`, true},
		{"restricted non member", `{"ok":true,"result":{"status":"restricted","is_member":false}}`, false},
		{"left", `{"ok":true,"result":{"status":"left"}}`, false},
		{"kicked", `{"ok":true,"result":{"status":"kicked"}}`, false},
		{"user not found", `{"ok":false,"error_code":400,"description":"Bad Request: user not found"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := newTestTelegramChecker(t, newTelegramServer(t, tc.body, nil))
			got, err := checker.IsSubscribed(context.Background(), 42)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTelegramCheckerUpstreamError(t *testing.T) {
	body := `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`
	checker := newTestTelegramChecker(t, newTelegramServer(t, body, nil))

	got, err := checker.IsSubscribed(context.Background(), 42)
	assert.False(t, got)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.False(t, FailClosed(context.Background(), checker, zap.NewNop(), 42))
}

func TestTelegramCheckerRedactsToken(t *testing.T) {
	checker, err := NewTelegramChecker(TelegramOptions{
		BaseURL:   "http://127.0.0.1:1",
		BotToken:  "secret-token",
		ChannelID: "@channel",
	})
	require.NoError(t, err)

	_, err = checker.IsSubscribed(context.Background(), 42)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNewTelegramCheckerRequiresConfig(t *testing.T) {
	_, err := NewTelegramChecker(TelegramOptions{BotToken: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewCheckerLocalMode(t *testing.T) {
	checker, err := NewChecker(Params{
		Config: config.Config{Telegram: config.TelegramConfig{AssumeAllOK: true, BotToken: "x", ChannelID: "y"}},
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)

	ok, err := checker.IsSubscribed(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewCheckerRequiresTelegramInProduction(t *testing.T) {
	_, err := NewChecker(Params{
		Config: config.Config{Environment: "production"},
		Log:    zap.NewNop(),
	})
	assert.ErrorIs(t, err, errTelegramNotConfigured)

	checker, err := NewChecker(Params{
		Config: config.Config{Environment: "production", Telegram: config.TelegramConfig{AssumeAllOK: true}},
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)
	assert.NotNil(t, checker)
}

func TestNewCheckerWithoutRedisSkipsCache(t *testing.T) {
	var calls int32
	srv := newTelegramServer(t, `{"ok":true,"result":{"status":"member"}}`, &calls)

	checker, err := NewChecker(Params{
		Config: config.Config{Telegram: config.TelegramConfig{
			BotToken:   "secret-token",
			ChannelID:  "@channel",
			APIBaseURL: srv.URL,
		}},
		Log: zap.NewNop(),
	})
	require.NoError(t, err)
	_, isTelegram := checker.(*TelegramChecker)
	assert.True(t, isTelegram)

	for i := 0; i < 2; i++ {
		ok, err := checker.IsSubscribed(context.Background(), 42)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "botquota:sub:42", cacheKey(42))
}
