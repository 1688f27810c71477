package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/events"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestClientReceivesWelcome(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	conn := dialHub(t, hub)

	msg := readMessage(t, conn)
	assert.Equal(t, "connected", msg.Type)
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	conn := dialHub(t, hub)
	readMessage(t, conn) // welcome

	hub.BroadcastEvent(&events.Event{
		ID:       "evt_1",
		RuleID:   "CADE-00124",
		RuleName: "Brute Force Login",
		Severity: events.SeverityHigh,
		Action:   events.DispositionBlocked,
	})

	msg := readMessage(t, conn)
	require.Equal(t, "event", msg.Type)

	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var e events.Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "evt_1", e.ID)
	assert.Equal(t, events.SeverityHigh, e.Severity)
}

func TestBroadcastWithNoClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)

	// Must not panic or block.
	hub.BroadcastEvent(&events.Event{ID: "evt_1"})
}
