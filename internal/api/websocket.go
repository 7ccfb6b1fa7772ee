package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gatewayctl/internal/infrastructure/config"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/logging"
)

// Event channels a client can follow. ChannelAll follows every channel.
const (
	ChannelSceneStarted   = "scene.started"
	ChannelSceneCompleted = "scene.completed"
	ChannelAll            = "*"
)

// Frame types. Clients send subscribe, unsubscribe and ping; the server
// answers with ack, pong or error and pushes event frames.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameAck         = "ack"
	FrameEvent       = "event"
	FrameError       = "error"
)

// outboxSize is the number of frames buffered per client before events are dropped.
const outboxSize = 64

var knownChannels = []string{ChannelSceneStarted, ChannelSceneCompleted, ChannelAll}

// Frame is one WebSocket message in either direction.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	At       string   `json:"at,omitempty"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Hub fans scene events out to WebSocket clients. A slow client loses
// events rather than delaying a scene run.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Int64
}

// subscriber is one connected client and the channels it follows.
type subscriber struct {
	hub      *Hub
	conn     *websocket.Conn
	out      chan []byte
	mu       sync.Mutex
	channels map[string]bool
	closed   bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// NewHub creates an event hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
	if len(subs) > 0 {
		h.logger.Debug("websocket clients disconnected on shutdown", "clients", len(subs))
	}
}

// Broadcast pushes payload to every client following channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		if s.follows(channel) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded because a client's outbox was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) attach(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	s.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

func newSubscriber(h *Hub, conn *websocket.Conn, channels []string) *subscriber {
	s := &subscriber{
		hub:      h,
		conn:     conn,
		out:      make(chan []byte, outboxSize),
		channels: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		s.channels[ch] = true
	}
	return s
}

func (s *subscriber) follows(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[ChannelAll] || s.channels[channel]
}

// enqueue queues data without blocking. It reports false when the frame was
// dropped because the outbox is full or the client is gone.
func (s *subscriber) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the outbox once; the write loop then sends a close frame.
func (s *subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *subscriber) reply(f Frame) {
	f.At = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	s.enqueue(data)
}

// handleWebSocket upgrades the connection. Channels listed in the
// "channels" query parameter are followed from the start; otherwise the
// client receives nothing until it subscribes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial []string
	if q := r.URL.Query().Get("channels"); q != "" {
		initial = strings.Split(q, ",")
		if bad := unknownChannels(initial); len(bad) > 0 {
			writeBadRequest(w, "unknown channels: "+strings.Join(bad, ","))
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(s.hub, conn, initial)
	s.hub.attach(sub)

	go sub.writeLoop(s.wsCfg)
	go sub.readLoop(s.wsCfg)
}

func (s *subscriber) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		s.hub.detach(s)
		s.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return s.conn.SetReadDeadline(time.Now().Add(idle)) }

	s.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend()
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if isMalformedFrame(err) {
				s.reply(Frame{Type: FrameError, Error: "invalid JSON frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = extend()
		s.handle(f)
	}
}

func (s *subscriber) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) handle(f Frame) {
	switch f.Type {
	case FramePing:
		s.reply(Frame{Type: FramePong, ID: f.ID})
	case FrameSubscribe, FrameUnsubscribe:
		if len(f.Channels) == 0 {
			s.reply(Frame{Type: FrameError, ID: f.ID, Error: "channels is required"})
			return
		}
		if bad := unknownChannels(f.Channels); len(bad) > 0 {
			s.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown channels: " + strings.Join(bad, ",")})
			return
		}
		s.mu.Lock()
		for _, ch := range f.Channels {
			if f.Type == FrameSubscribe {
				s.channels[ch] = true
			} else {
				delete(s.channels, ch)
			}
		}
		s.mu.Unlock()
		s.reply(Frame{Type: FrameAck, ID: f.ID, Channels: f.Channels})
	default:
		s.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown frame type: " + f.Type})
	}
}

// isMalformedFrame reports whether err came from decoding a frame rather
// than from the connection.
func isMalformedFrame(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func unknownChannels(channels []string) []string {
	var bad []string
	for _, ch := range channels {
		if !slices.Contains(knownChannels, ch) {
			bad = append(bad, ch)
		}
	}
	return bad
}
