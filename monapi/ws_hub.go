package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itskum47/monforge/monapi/config"
	"github.com/itskum47/monforge/monapi/observability"
	"github.com/itskum47/monforge/monapi/refresh"
	"github.com/itskum47/monforge/monapi/store"
	"github.com/itskum47/monforge/monapi/streaming"
)

const (
	writeWait = 5 * time.Second

	// sendBuffer bounds the messages queued for one session. A client that
	// falls further behind loses messages rather than stalling others.
	sendBuffer = 32
)

var errHubFull = errors.New("refresh hub: connection limit reached")

// Client commands.
const actionAutoRefresh = "auto_refresh"

type refreshCommand struct {
	Action  string `json:"action"`
	Enabled bool   `json:"enabled"`
}

type countdownMessage struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
}

type refreshMessage struct {
	Type   string                   `json:"type"`
	Anchor int64                    `json:"anchor"`
	Charts map[int64][]*store.Chart `json:"charts"`
}

type changedMessage struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	ScreenID int64  `json:"screen_id"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// RefreshHub tracks the auto-refresh sessions of open screens. Every session
// owns its own countdown loop, so one slow screen never delays another.
type RefreshHub struct {
	screens *ScreenService
	cfg     config.RefreshConfig
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[*RefreshSession]struct{}
}

// RefreshSession is one websocket watching one screen.
type RefreshSession struct {
	hub      *RefreshHub
	conn     *websocket.Conn
	screenID int64
	loop     *refresh.Loop

	ctx    context.Context
	cancel context.CancelFunc

	out chan any
}

func NewRefreshHub(screens *ScreenService, cfg config.RefreshConfig, logger *zap.Logger) *RefreshHub {
	return &RefreshHub{
		screens:  screens,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[*RefreshSession]struct{}),
	}
}

// Run blocks until ctx ends, then closes every session.
func (h *RefreshHub) Run(ctx context.Context) {
	<-ctx.Done()
	h.shutdown()
}

// Watch forwards screen edits to the sessions open on the edited screens so
// clients can reload without waiting for the countdown.
func (h *RefreshHub) Watch(sub streaming.Subscriber) (streaming.Subscription, error) {
	return sub.Subscribe("*", func(e streaming.Event) {
		var change struct {
			ScreenIDs []int64 `json:"screen_ids"`
		}
		if err := json.Unmarshal(e.Payload, &change); err != nil {
			h.logger.Debug("ignore event without screens", zap.String("topic", e.Topic), zap.Error(err))
			return
		}
		for _, id := range change.ScreenIDs {
			h.notify(id, changedMessage{Type: "changed", Topic: e.Topic, ScreenID: id})
		}
	})
}

// notify queues v on every session watching screenID. It never blocks.
func (h *RefreshHub) notify(screenID int64, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if s.screenID == screenID {
			s.send(v)
		}
	}
}

// Register attaches conn to the hub. At the connection cap the hub refuses
// the session and the caller must close conn.
func (h *RefreshHub) Register(conn *websocket.Conn, screenID int64) (*RefreshSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.MaxConnections > 0 && len(h.sessions) >= h.cfg.MaxConnections {
		observability.RefreshSessionsRejected.Inc()
		h.logger.Warn("refresh session rejected", zap.Int("max_connections", h.cfg.MaxConnections))
		return nil, errHubFull
	}

	loop := refresh.NewLoop(h.cfg.Countdown)
	if h.cfg.Step > 0 {
		loop.Step = h.cfg.Step
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &RefreshSession{
		hub:      h,
		conn:     conn,
		screenID: screenID,
		loop:     loop,
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan any, sendBuffer),
	}
	go s.writePump()
	h.sessions[s] = struct{}{}
	observability.RefreshSessions.Inc()
	h.logger.Debug("refresh session registered",
		zap.Int64("screen_id", screenID),
		zap.Int("total", len(h.sessions)))
	return s, nil
}

// Unregister stops the session's loop and closes its connection.
func (h *RefreshHub) Unregister(s *RefreshSession) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	observability.RefreshSessions.Dec()
	h.logger.Debug("refresh session unregistered",
		zap.Int64("screen_id", s.screenID),
		zap.Int("total", total))
}

// Count returns the number of open sessions.
func (h *RefreshHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *RefreshHub) shutdown() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[*RefreshSession]struct{})
	h.mu.Unlock()

	h.logger.Info("shutting down refresh hub", zap.Int("sessions", len(sessions)))
	for s := range sessions {
		s.close()
		observability.RefreshSessions.Dec()
	}
}

func (s *RefreshSession) close() {
	s.cancel()
	s.loop.Stop()
	s.conn.Close()
}

// Handle applies one client command.
func (s *RefreshSession) Handle(cmd refreshCommand) {
	if cmd.Action != actionAutoRefresh {
		s.send(errorMessage{Type: "error", Error: "unknown action " + cmd.Action})
		return
	}
	if !cmd.Enabled {
		s.loop.Stop()
		s.send(countdownMessage{Type: "countdown", Remaining: s.loop.Remaining()})
		return
	}
	if s.loop.Running() {
		return
	}
	s.send(countdownMessage{Type: "countdown", Remaining: s.loop.Remaining()})
	s.loop.Start(s.ctx, s.onTick, s.onCount)
}

func (s *RefreshSession) onCount(remaining int) {
	s.send(countdownMessage{Type: "countdown", Remaining: remaining})
}

func (s *RefreshSession) onTick(anchor time.Time) {
	observability.RefreshTicks.Inc()
	_, charts, err := s.hub.screens.Anchored(s.ctx, s.screenID, anchor)
	if err != nil {
		s.hub.logger.Error("refresh screen",
			zap.Int64("screen_id", s.screenID),
			zap.Error(err))
		s.send(errorMessage{Type: "error", Error: "refresh failed"})
		return
	}
	s.send(refreshMessage{Type: "refresh", Anchor: anchor.UnixMilli(), Charts: charts})
}

// send queues one message for the write pump. A full queue drops the message.
func (s *RefreshSession) send(v any) {
	select {
	case <-s.ctx.Done():
	case s.out <- v:
	default:
		observability.RefreshDropped.Inc()
		s.hub.logger.Warn("refresh session queue full, dropping message", zap.Int64("screen_id", s.screenID))
	}
}

// writePump is the only writer of data frames. A failed write closes the
// connection, which ends the read pump and unregisters the session.
func (s *RefreshSession) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case v := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(v); err != nil {
				s.hub.logger.Debug("refresh write failed", zap.Int64("screen_id", s.screenID), zap.Error(err))
				s.conn.Close()
				return
			}
		}
	}
}
