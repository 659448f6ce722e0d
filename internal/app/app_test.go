package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groovesync/server/internal/bus"
	"github.com/groovesync/server/internal/controller"
	"github.com/groovesync/server/internal/mediaproxy"
	connInmemory "github.com/groovesync/server/internal/repository/connection/inmemory"
	roomInmemory "github.com/groovesync/server/internal/repository/room/inmemory"
	"github.com/groovesync/server/internal/service/room"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	roomService := room.NewService(roomInmemory.NewRepo(), connInmemory.NewRepo())
	mediaProxy := mediaproxy.NewClient(&mediaproxy.Config{BaseURL: "http://127.0.0.1:0"})
	ctrl := controller.NewController(roomService, mediaProxy, bus.Noop{}, "test-instance", slog.Default())

	srv := httptest.NewServer(ctrl.Mux())
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}))
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestRelayFlow(t *testing.T) {
	srv := newTestServer(t)

	conn1 := dialWS(t, srv)
	send(t, conn1, "join-room", map[string]any{"roomId": "r1", "mediaRef": "track-x"})

	ev := readEvent(t, conn1)
	require.Equal(t, "room-state", ev.Type)
	var snapshot struct {
		RoomID      string  `json:"roomId"`
		MediaRef    string  `json:"mediaRef"`
		IsPlaying   bool    `json:"isPlaying"`
		IsHost      bool    `json:"isHost"`
		MemberCount int     `json:"memberCount"`
		Position    float64 `json:"positionSeconds"`
		Queue       []any   `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &snapshot))
	assert.Equal(t, "r1", snapshot.RoomID)
	assert.Equal(t, "track-x", snapshot.MediaRef)
	assert.True(t, snapshot.IsHost)
	assert.NotNil(t, snapshot.Queue)

	ev = readEvent(t, conn1)
	require.Equal(t, "member-count", ev.Type)
	assert.JSONEq(t, `{"count":1}`, string(ev.Payload))

	conn2 := dialWS(t, srv)
	send(t, conn2, "join-room", map[string]any{"roomId": "r1"})

	ev = readEvent(t, conn2)
	require.Equal(t, "room-state", ev.Type)
	require.NoError(t, json.Unmarshal(ev.Payload, &snapshot))
	assert.False(t, snapshot.IsHost)
	assert.Equal(t, 2, snapshot.MemberCount)
	assert.Equal(t, "track-x", snapshot.MediaRef)

	ev = readEvent(t, conn2)
	require.Equal(t, "member-count", ev.Type)
	ev = readEvent(t, conn1)
	require.Equal(t, "member-count", ev.Type)
	assert.JSONEq(t, `{"count":2}`, string(ev.Payload))

	// play from conn1 reaches only conn2
	send(t, conn1, "play", map[string]any{"roomId": "r1", "time": 5.0})
	ev = readEvent(t, conn2)
	require.Equal(t, "play", ev.Type)
	assert.JSONEq(t, `{"time":5}`, string(ev.Payload))

	// change-media from conn2 reaches everyone, conn2 included; for
	// conn1 it is also proof the play above was never echoed back
	send(t, conn2, "change-media", map[string]any{"roomId": "r1", "mediaRef": "track-y"})
	ev = readEvent(t, conn1)
	require.Equal(t, "media-changed", ev.Type)
	ev = readEvent(t, conn2)
	require.Equal(t, "media-changed", ev.Type)

	// chat echoes to the sender too
	send(t, conn2, "send-message", map[string]any{"roomId": "r1", "text": "hi"})
	ev = readEvent(t, conn1)
	require.Equal(t, "new-message", ev.Type)
	var msg struct {
		DisplayName string `json:"displayName"`
		Text        string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &msg))
	assert.Equal(t, "Anonymous", msg.DisplayName)
	assert.Equal(t, "hi", msg.Text)
	ev = readEvent(t, conn2)
	require.Equal(t, "new-message", ev.Type)
}

func TestHostReassignmentOnLeave(t *testing.T) {
	srv := newTestServer(t)

	conn1 := dialWS(t, srv)
	send(t, conn1, "join-room", map[string]any{"roomId": "r1", "mediaRef": "track-x"})
	readEvent(t, conn1) // room-state
	readEvent(t, conn1) // member-count

	conn2 := dialWS(t, srv)
	send(t, conn2, "join-room", map[string]any{"roomId": "r1"})
	readEvent(t, conn2) // room-state
	readEvent(t, conn2) // member-count
	readEvent(t, conn1) // member-count

	send(t, conn1, "leave-room", map[string]any{"roomId": "r1"})

	ev := readEvent(t, conn2)
	require.Equal(t, "member-count", ev.Type)
	assert.JSONEq(t, `{"count":1}`, string(ev.Payload))

	ev = readEvent(t, conn2)
	require.Equal(t, "host-assigned", ev.Type)
}

func TestStaleRoomActionsAreDropped(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv)
	send(t, conn, "play", map[string]any{"roomId": "nowhere", "time": 1.0})
	send(t, conn, "enqueue", map[string]any{"roomId": "nowhere", "item": map[string]any{"mediaRef": "q1"}})

	// the connection survives and keeps working
	send(t, conn, "join-room", map[string]any{"roomId": "r1", "mediaRef": "track-x"})
	ev := readEvent(t, conn)
	assert.Equal(t, "room-state", ev.Type)
}

func TestQueueFlowOverWire(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv)
	send(t, conn, "join-room", map[string]any{"roomId": "r1", "mediaRef": "track-x"})
	readEvent(t, conn) // room-state
	readEvent(t, conn) // member-count

	send(t, conn, "enqueue", map[string]any{"roomId": "r1", "item": map[string]any{"mediaRef": "q1", "title": "Next"}})
	ev := readEvent(t, conn)
	require.Equal(t, "queue-updated", ev.Type)

	// advancing an empty queue later is silent; this one pops q1
	send(t, conn, "advance-queue", map[string]any{"roomId": "r1"})
	ev = readEvent(t, conn)
	require.Equal(t, "media-changed", ev.Type)
	assert.Contains(t, string(ev.Payload), "q1")
	ev = readEvent(t, conn)
	require.Equal(t, "current-item-updated", ev.Type)
	ev = readEvent(t, conn)
	require.Equal(t, "queue-updated", ev.Type)
	assert.JSONEq(t, `{"queue":[]}`, string(ev.Payload))

	// empty queue: nothing comes back, the next action's reply arrives first
	send(t, conn, "advance-queue", map[string]any{"roomId": "r1"})
	send(t, conn, "clear-queue", map[string]any{"roomId": "r1"})
	ev = readEvent(t, conn)
	assert.Equal(t, "queue-updated", ev.Type)
}

func TestRESTEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/room/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn := dialWS(t, srv)
	send(t, conn, "join-room", map[string]any{"roomId": "r1", "mediaRef": "track-x"})
	readEvent(t, conn) // room-state

	resp, err = http.Get(srv.URL + "/api/room/r1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info struct {
		RoomID      string `json:"roomId"`
		MediaRef    string `json:"mediaRef"`
		MemberCount int    `json:"memberCount"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "r1", info.RoomID)
	assert.Equal(t, "track-x", info.MediaRef)
	assert.Equal(t, 1, info.MemberCount)
}

func TestConfigValidate(t *testing.T) {
	cfg := &AppConfig{Host: "0.0.0.0", Port: 4000, LogLevel: "INFO", MediaAPIBaseURL: "https://api.example.com"}
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 4000
	cfg.MediaAPIBaseURL = ""
	assert.Error(t, cfg.Validate())
}
