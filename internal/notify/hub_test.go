package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForListeners(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastReachesEveryListener(t *testing.T) {
	hub := NewHub(nil, 4)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a, b := dial(t, srv), dial(t, srv)
	waitForListeners(t, hub, 2)

	n, err := hub.Broadcast(EventAlert, map[string]string{"title": "Rain", "body": "soon"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var env struct {
			Event string            `json:"event"`
			Data  map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, EventAlert, env.Event)
		assert.Equal(t, "Rain", env.Data["title"])
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil, 4)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitForListeners(t, hub, 1)
	require.NoError(t, conn.Close())
	waitForListeners(t, hub, 0)
}

func TestHub_ClosedRejectsBroadcast(t *testing.T) {
	hub := NewHub(nil, 1)
	hub.Close()
	_, err := hub.Broadcast(EventDigest, nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestPushNotifier_EventByKind(t *testing.T) {
	hub := NewHub(nil, 4)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	waitForListeners(t, hub, 1)

	p := NewPushNotifier(hub)
	assert.Equal(t, ChannelPush, p.Channel())
	msg := Message{Payload: models.AlertPayload{Kind: models.KindDigest, Title: "Next 6 hours"}}
	require.NoError(t, p.Notify(context.Background(), msg))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"weather_digest"`)
	assert.Contains(t, string(raw), `"title":"Next 6 hours"`)
}

func TestPushNotifier_NoListenersIsNotAnError(t *testing.T) {
	hub := NewHub(nil, 4)
	defer hub.Close()
	err := NewPushNotifier(hub).Notify(context.Background(), Message{})
	assert.NoError(t, err)
}
