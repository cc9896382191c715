package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylift-io/dispatch-go/internal/controller"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/eventbus"
	"github.com/skylift-io/dispatch-go/internal/infra/config"
)

func testServerConfig() *config.Config {
	return &config.Config{
		Environment:             "testing",
		LogLevel:                "WARN",
		Port:                    6660,
		WebSocketPort:           6661,
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            5 * time.Second,
		IdleTimeout:             30 * time.Second,
		HealthEnabled:           true,
		HealthPath:              "/health",
		MetricsEnabled:          true,
		MetricsPath:             "/metrics",
		WebSocketPath:           "/ws",
		WebSocketWriteTimeout:   2 * time.Second,
		WebSocketReadTimeout:    10 * time.Second,
		WebSocketPingInterval:   5 * time.Second,
		WebSocketStatusInterval: 20 * time.Millisecond,
	}
}

func newTestController(t *testing.T) *controller.Controller {
	t.Helper()
	ctrl, err := controller.New(controller.Config{
		FloorTravelDuration: 30 * time.Millisecond,
		AccelerateDuration:  10 * time.Millisecond,
		DoorMoveDuration:    10 * time.Millisecond,
		DoorStayDuration:    30 * time.Millisecond,
		Floors:              []string{"-1", "1", "2", "3"},
		DefaultFloor:        "1",
		ElevatorCount:       2,
		Strategy:            domain.StrategyGreedy,
	}, eventbus.New())
	require.NoError(t, err)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)
	return ctrl
}

func TestServerStatusEndpoint(t *testing.T) {
	ctrl := newTestController(t)
	server := NewServer(testServerConfig(), 0, ctrl, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []domain.CabinStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "1", statuses[0].CurrentFloor)
}

func TestServerCommandEndpoint(t *testing.T) {
	ctrl := newTestController(t)
	server := NewServer(testServerConfig(), 0, ctrl, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	body, err := json.Marshal(CommandRequestBody{Command: "select_floor@2#1"})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.Accepted)

	// The command reached the core: the cabin services the selection.
	select {
	case msg := <-ctrl.Events():
		assert.Contains(t, msg, "floor_arrived@2#1")
	case <-time.After(5 * time.Second):
		t.Fatal("no arrival event after command")
	}
}

func TestServerCommandPlainText(t *testing.T) {
	ctrl := newTestController(t)
	server := NewServer(testServerConfig(), 0, ctrl, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/command", "text/plain", strings.NewReader("open_door#1\n"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServerCommandRejectsBadRequests(t *testing.T) {
	ctrl := newTestController(t)
	server := NewServer(testServerConfig(), 0, ctrl, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/command")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/v1/command", "text/plain", strings.NewReader(""))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerHealthEndpoint(t *testing.T) {
	ctrl := newTestController(t)
	server := NewServer(testServerConfig(), 0, ctrl, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Contains(t, body.Checks, "fleet")
}

func TestWebSocketChannelRoundTrip(t *testing.T) {
	ctrl := newTestController(t)
	cfg := testServerConfig()
	ws := NewWebSocketServer(cfg, 0, ctrl)
	go ws.pumpEvents()
	t.Cleanup(func() { ws.cancel() })

	ts := httptest.NewServer(ws.server.Handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.WebSocketPath
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	// A command line in; the resulting event lines out.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("select_floor@2#1")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "floor_arrived@2#1", string(payload))
}

func TestWebSocketStatusStream(t *testing.T) {
	ctrl := newTestController(t)
	cfg := testServerConfig()
	ws := NewWebSocketServer(cfg, 0, ctrl)
	t.Cleanup(func() { ws.cancel() })

	ts := httptest.NewServer(ws.server.Handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.WebSocketPath + "/status"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var statuses []domain.CabinStatus
	require.NoError(t, conn.ReadJSON(&statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "stopped_door_closed", statuses[0].State)
}
