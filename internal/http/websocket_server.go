package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/controller"
	"github.com/skylift-io/dispatch-go/internal/infra/config"
)

// WebSocketServer serves the length-delimited command/event channel over
// WebSocket text frames: incoming frames are command lines, outgoing frames
// are event lines. A second endpoint streams periodic cabin status documents
// for visualisers.
type WebSocketServer struct {
	ctrl        *controller.Controller
	server      *http.Server
	cfg         *config.Config
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	connMutex   sync.RWMutex
	connections map[*websocket.Conn]chan string
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
}

// NewWebSocketServer creates a WebSocket server on its own port.
func NewWebSocketServer(cfg *config.Config, port int, ctrl *controller.Controller) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	ws := &WebSocketServer{
		ctrl:        ctrl,
		cfg:         cfg,
		logger:      slog.With(slog.String("component", constants.ComponentWebSocket)),
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[*websocket.Conn]chan string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WebSocketPath, ws.channelHandler)
	mux.HandleFunc(cfg.WebSocketPath+"/status", ws.statusHandler)

	ws.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return ws
}

// pumpEvents fans the controller's outgoing event stream out to every
// connected channel client.
func (ws *WebSocketServer) pumpEvents() {
	for {
		msg, err := ws.ctrl.NextEvent(ws.ctx)
		if err != nil {
			return
		}

		ws.connMutex.RLock()
		for _, ch := range ws.connections {
			select {
			case ch <- msg:
			default:
				// Slow consumer; skip rather than stall the pump.
			}
		}
		ws.connMutex.RUnlock()
	}
}

func (ws *WebSocketServer) addConnection(conn *websocket.Conn) chan string {
	ch := make(chan string, 64)
	ws.connMutex.Lock()
	ws.connections[conn] = ch
	ws.connMutex.Unlock()
	return ch
}

func (ws *WebSocketServer) removeConnection(conn *websocket.Conn) {
	ws.connMutex.Lock()
	delete(ws.connections, conn)
	ws.connMutex.Unlock()
}

// channelHandler is the bidirectional command/event channel.
func (ws *WebSocketServer) channelHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			ws.logger.Debug("failed to close WebSocket connection", slog.String("error", err.Error()))
		}
	}()

	events := ws.addConnection(conn)
	defer ws.removeConnection(conn)

	ws.logger.Info("channel connection established", slog.String("remote", r.RemoteAddr))

	done := make(chan struct{})

	// Reader: every incoming text line is a command.
	go func() {
		defer close(done)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					ws.logger.Warn("channel connection closed unexpectedly", slog.String("error", err.Error()))
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			command := string(payload)
			ws.logger.Debug("command received over channel", slog.String("command", command))
			ws.ctrl.HandleCommand(command)
		}
	}()

	pingTicker := time.NewTicker(ws.cfg.WebSocketPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ws.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
				time.Now().Add(time.Second))
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.cfg.WebSocketWriteTimeout)); err != nil {
				return
			}
		case msg := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(ws.cfg.WebSocketWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				ws.logger.Error("failed to send event", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// statusHandler streams periodic cabin status documents.
func (ws *WebSocketServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			ws.logger.Debug("failed to close WebSocket connection", slog.String("error", err.Error()))
		}
	}()

	ws.logger.Info("status connection established", slog.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	statusTicker := time.NewTicker(ws.cfg.WebSocketStatusInterval)
	defer statusTicker.Stop()

	if err := conn.WriteJSON(ws.ctrl.Statuses()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ws.ctx.Done():
			return
		case <-statusTicker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(ws.cfg.WebSocketWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(ws.ctrl.Statuses()); err != nil {
				return
			}
		}
	}
}

// Start starts the WebSocket server and the event pump.
func (ws *WebSocketServer) Start() error {
	go ws.pumpEvents()
	ws.logger.Info("starting WebSocket server", slog.String("addr", ws.server.Addr))
	return ws.server.ListenAndServe()
}

// Shutdown gracefully shuts down the WebSocket server.
func (ws *WebSocketServer) Shutdown(ctx context.Context) error {
	ws.cancel()

	ws.connMutex.Lock()
	for conn := range ws.connections {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	ws.connections = make(map[*websocket.Conn]chan string)
	ws.connMutex.Unlock()

	return ws.server.Shutdown(ctx)
}
