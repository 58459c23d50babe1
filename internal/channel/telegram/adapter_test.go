package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeBotAPI(t *testing.T, validToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasPrefix(r.URL.Path, "/bot"+validToken+"/") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
			return
		}
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Shop","username":"shop_bot"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAdapter_Validate(t *testing.T) {
	srv := fakeBotAPI(t, "123:good")
	a := New(uuid.New(), zap.NewNop(), WithServerURL(srv.URL))

	name, err := a.Validate(context.Background(), "123:good")
	require.NoError(t, err)
	assert.Equal(t, "@shop_bot", name)

	_, err = a.Validate(context.Background(), "123:bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthFailed))
}

func TestAdapter_ValidateEmptyToken(t *testing.T) {
	a := New(uuid.New(), zap.NewNop())
	_, err := a.Validate(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrAuthFailed))
}

func TestAdapter_StartWithoutTokenIsAuthFailure(t *testing.T) {
	a := New(uuid.New(), zap.NewNop())
	err := a.Start(context.Background(), channel.Credential{}, make(chan channel.Event, 1))
	assert.True(t, errors.Is(err, domain.ErrAuthFailed))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	text := "line one\nline two\nline three"
	parts := SplitMessage(text, 12)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 12)
	}
	assert.Equal(t, "line one\n", parts[0])
}

func TestKeyboard(t *testing.T) {
	kb := Keyboard([][]channel.Button{
		{{Text: "Prices", Token: "m:main_menu:1"}},
		{{Text: "Hours", Token: "m:main_menu:2"}, {Text: "Next", Token: "p:dt_x:2"}},
	})
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "m:main_menu:1", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Next", kb.InlineKeyboard[1][1].Text)
}

func TestAdapter_TokenRevokedWhilePollingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Shop","username":"shop_bot"}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	t.Cleanup(srv.Close)

	a := New(uuid.New(), zap.NewNop(), WithServerURL(srv.URL))
	sink := make(chan channel.Event, 4)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, channel.Credential{Secret: "123:revoked"}, sink))
	t.Cleanup(func() { _ = a.Stop(ctx, false) })

	ev := <-sink
	_, ok := ev.(channel.Connected)
	require.True(t, ok, "first event is %T", ev)

	select {
	case ev = <-sink:
		failure, ok := ev.(channel.Failure)
		require.True(t, ok, "got %T", ev)
		assert.True(t, errors.Is(failure.Err, domain.ErrAuthFailed))
	case <-time.After(5 * time.Second):
		t.Fatal("revoked token was not reported")
	}
}
