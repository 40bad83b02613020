package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
)

// Push event names.
const (
	EventAlert  = "weather_alert"
	EventDigest = "weather_digest"
	EventReport = "weather_report"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrHubClosed is returned by Broadcast after Close.
var ErrHubClosed = errors.New("push hub closed")

// Envelope is the wire format of every pushed event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type listener struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub holds connected websocket listeners and broadcasts events to all of them.
// Listeners whose buffer is full are disconnected rather than blocking a broadcast.
type Hub struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    bool
	buffer    int
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewHub creates a Hub. buffer is the per-listener queue length.
func NewHub(logger *zap.Logger, buffer int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		listeners: make(map[*listener]struct{}),
		buffer:    buffer,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and registers the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	l := &listener{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.register(l) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	go h.writePump(l)
	h.readPump(l)
}

func (h *Hub) register(l *listener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.listeners[l] = struct{}{}
	observability.PushListeners.Inc()
	return true
}

// remove must be called with h.mu held.
func (h *Hub) remove(l *listener) {
	if _, ok := h.listeners[l]; !ok {
		return
	}
	delete(h.listeners, l)
	close(l.send)
	observability.PushListeners.Dec()
}

func (h *Hub) unregister(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(l)
}

// readPump discards inbound frames; it exists to process control frames and detect disconnects.
func (h *Hub) readPump(l *listener) {
	defer func() {
		h.unregister(l)
		_ = l.conn.Close()
	}()
	l.conn.SetReadLimit(512)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(l *listener) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = l.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = l.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends {event, data} to every connected listener without waiting
// for acknowledgment. It returns the number of listeners the event was queued for.
func (h *Hub) Broadcast(event string, data any) (int, error) {
	raw, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", event, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrHubClosed
	}
	queued := 0
	for l := range h.listeners {
		select {
		case l.send <- raw:
			queued++
		default:
			h.logger.Warn("dropping slow push listener", zap.String("remote", l.conn.RemoteAddr().String()))
			h.remove(l)
		}
	}
	return queued, nil
}

// Len returns the number of connected listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close disconnects every listener and rejects further broadcasts.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for l := range h.listeners {
		h.remove(l)
	}
}

// PushNotifier adapts a Hub to the Notifier interface.
type PushNotifier struct {
	hub *Hub
}

func NewPushNotifier(hub *Hub) *PushNotifier {
	return &PushNotifier{hub: hub}
}

func (p *PushNotifier) Channel() string { return ChannelPush }

// Notify broadcasts the payload to all listeners; it is not location-scoped.
func (p *PushNotifier) Notify(ctx context.Context, msg Message) error {
	if _, err := p.hub.Broadcast(eventFor(msg.Payload.Kind), msg.Payload); err != nil {
		return fmt.Errorf("%w: push: %w", ErrChannel, err)
	}
	return nil
}

func eventFor(kind models.PayloadKind) string {
	switch kind {
	case models.KindDigest:
		return EventDigest
	case models.KindReport:
		return EventReport
	default:
		return EventAlert
	}
}
