package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/gridsentry/gridwatch/internal/monitor"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, monitor.Update) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string         `json:"type"`
		Payload monitor.Update `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg.Type, msg.Payload
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	first := dialHub(t, srv)
	second := dialHub(t, srv)

	// Registration happens server-side after the handshake completes.
	require.Eventually(t, func() bool {
		return hub.clientCount() == 2
	}, time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate(monitor.Update{Mode: monitor.ModeTheft, Connected: true})

	for _, conn := range []*websocket.Conn{first, second} {
		typ, payload := readEnvelope(t, conn)
		require.Equal(t, "update", typ)
		require.Equal(t, monitor.ModeTheft, payload.Mode)
		require.True(t, payload.Connected)
	}
}

func TestHub_EveryUpdateInOrder(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool {
		return hub.clientCount() == 1
	}, time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate(monitor.Update{Mode: monitor.ModeNormal})
	hub.BroadcastUpdate(monitor.Update{Mode: monitor.ModeTheft})

	_, firstPayload := readEnvelope(t, conn)
	require.Equal(t, monitor.ModeNormal, firstPayload.Mode)
	_, secondPayload := readEnvelope(t, conn)
	require.Equal(t, monitor.ModeTheft, secondPayload.Mode)
}

func TestHub_ClosedClientIsDroppedWithoutBlocking(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	gone := dialHub(t, srv)
	alive := dialHub(t, srv)
	require.Eventually(t, func() bool {
		return hub.clientCount() == 2
	}, time.Second, 5*time.Millisecond)

	gone.Close()

	// Broadcasts after the close must return promptly and still reach the
	// surviving client; the dead connection is shed either by its read
	// goroutine or by the write-error path on the next broadcast.
	done := make(chan struct{})
	go func() {
		hub.BroadcastUpdate(monitor.Update{Mode: monitor.ModeNormal})
		hub.BroadcastUpdate(monitor.Update{Mode: monitor.ModeNormal})
		close(done)
	}()
	// The hub's write deadline caps any single stuck write at 5s; only a
	// missing deadline would block longer than this.
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("broadcast blocked on a closed client")
	}

	typ, _ := readEnvelope(t, alive)
	require.Equal(t, "update", typ)

	require.Eventually(t, func() bool {
		return hub.clientCount() == 1
	}, time.Second, 5*time.Millisecond)
}
