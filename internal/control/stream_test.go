package control

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/gndl/talkgraph/internal/events"
)

func TestEventStreamBroadcastsToConnectedClient(t *testing.T) {
	t.Parallel()

	es := newEventStream()
	e := echo.New()
	e.GET("/ws", es.handle)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		es.mu.Lock()
		defer es.mu.Unlock()
		return len(es.clients) == 1
	}, time.Second, 10*time.Millisecond)

	es.broadcast(events.Notification{Kind: events.NotificationSessionSaved, ID: "demo.tg"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "demo.tg")
}

func TestEventStreamDropsClientOnDisconnect(t *testing.T) {
	t.Parallel()

	es := newEventStream()
	e := echo.New()
	e.GET("/ws", es.handle)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		es.mu.Lock()
		defer es.mu.Unlock()
		return len(es.clients) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		es.mu.Lock()
		defer es.mu.Unlock()
		return len(es.clients) == 0
	}, time.Second, 10*time.Millisecond)
}
