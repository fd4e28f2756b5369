package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/monforge/monapi/config"
	"github.com/itskum47/monforge/monapi/observability"
)

type wsMessage struct {
	Type      string                     `json:"type"`
	Remaining int                        `json:"remaining"`
	Anchor    int64                      `json:"anchor"`
	Charts    map[string]json.RawMessage `json:"charts"`
	Topic     string                     `json:"topic"`
	ScreenID  int64                      `json:"screen_id"`
}

func dialRefresh(t *testing.T, srv *httptest.Server, screenID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/api/screens/%d/refresh", screenID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) (wsMessage, []wsMessage) {
	t.Helper()
	var seen []wsMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg, seen
		}
		seen = append(seen, msg)
	}
}

func TestRefreshStream_CountdownAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	sc := env.screen(t)
	sub := env.subclass(t, sc.ID, "cpu")
	env.chart(t, sub.ID, `{"start":"1600000000000","end":"1600003600000"}`)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	conn := dialRefresh(t, srv, sc.ID)

	require.Eventually(t, func() bool { return env.api.wsHub.Count() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, conn.WriteJSON(refreshCommand{Action: actionAutoRefresh, Enabled: true}))

	msg, before := readUntil(t, conn, "refresh")
	require.NotEmpty(t, before)
	assert.Equal(t, "countdown", before[0].Type)
	assert.Equal(t, 1, before[0].Remaining)
	assert.NotZero(t, msg.Anchor)
	require.Contains(t, msg.Charts, fmt.Sprint(sub.ID))

	require.NoError(t, conn.WriteJSON(refreshCommand{Action: actionAutoRefresh, Enabled: false}))
	require.Eventually(t, func() bool { return !sessionRunning(env.api.wsHub) }, 2*time.Second, time.Millisecond)
}

func sessionRunning(h *RefreshHub) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if s.loop.Running() {
			return true
		}
	}
	return false
}

func TestRefreshStream_DisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t)
	sc := env.screen(t)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	conn := dialRefresh(t, srv, sc.ID)

	require.NoError(t, conn.WriteJSON(refreshCommand{Action: actionAutoRefresh, Enabled: true}))
	require.Eventually(t, func() bool { return sessionRunning(env.api.wsHub) }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return env.api.wsHub.Count() == 0 }, 2*time.Second, time.Millisecond)
}

func TestRefreshStream_UnknownScreen(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/screens/999/refresh"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshStream_ConnectionCap(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Refresh.MaxConnections = 1 })
	sc := env.screen(t)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	dialRefresh(t, srv, sc.ID)
	require.Eventually(t, func() bool { return env.api.wsHub.Count() == 1 }, time.Second, time.Millisecond)

	second := dialRefresh(t, srv, sc.ID)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))
	assert.Equal(t, 1, env.api.wsHub.Count())
}

func TestRefreshStream_ChangeNotification(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.api.wsHub.Watch(env.bus)
	require.NoError(t, err)
	sc := env.screen(t)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	conn := dialRefresh(t, srv, sc.ID)
	require.Eventually(t, func() bool { return env.api.wsHub.Count() == 1 }, time.Second, time.Millisecond)

	env.subclass(t, sc.ID, "cpu")

	msg, _ := readUntil(t, conn, "changed")
	assert.Equal(t, "screen.subclass.created", msg.Topic)
	assert.Equal(t, sc.ID, msg.ScreenID)
}

func TestRefreshStream_ChangeOnlyReachesEditedScreen(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.api.wsHub.Watch(env.bus)
	require.NoError(t, err)
	a := env.screen(t)
	b := env.screen(t)
	subA := env.subclass(t, a.ID, "cpu")

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	connA := dialRefresh(t, srv, a.ID)
	connB := dialRefresh(t, srv, b.ID)
	require.Eventually(t, func() bool { return env.api.wsHub.Count() == 2 }, time.Second, time.Millisecond)

	env.chart(t, subA.ID, `{"start":"1600000000000","end":"1600003600000"}`)
	msg, _ := readUntil(t, connA, "changed")
	assert.Equal(t, "screen.chart.created", msg.Topic)
	assert.Equal(t, a.ID, msg.ScreenID)

	env.subclass(t, b.ID, "mem")
	msg, _ = readUntil(t, connB, "changed")
	assert.Equal(t, "screen.subclass.created", msg.Topic)
	assert.Equal(t, b.ID, msg.ScreenID)
}

func TestRefreshSession_SendDropsWhenQueueFull(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &RefreshSession{hub: env.api.wsHub, screenID: 1, ctx: ctx, cancel: cancel, out: make(chan any, 1)}

	before := testutil.ToFloat64(observability.RefreshDropped)
	s.send(countdownMessage{Type: "countdown", Remaining: 2})
	s.send(countdownMessage{Type: "countdown", Remaining: 1})
	assert.Len(t, s.out, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.RefreshDropped))

	cancel()
	s.send(countdownMessage{Type: "countdown", Remaining: 0})
	assert.Len(t, s.out, 1)
}

func TestRefreshHub_RunShutsDownSessions(t *testing.T) {
	env := newTestEnv(t)
	sc := env.screen(t)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	conn := dialRefresh(t, srv, sc.ID)
	require.Eventually(t, func() bool { return env.api.wsHub.Count() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.api.wsHub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, env.api.wsHub.Count())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
