package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxhall/livebridge/pkg/gateway/apierror"
	"github.com/voxhall/livebridge/pkg/gateway/config"
	"github.com/voxhall/livebridge/pkg/gateway/lifecycle"
	"github.com/voxhall/livebridge/pkg/gateway/live/protocol"
	"github.com/voxhall/livebridge/pkg/gateway/live/session"
	"github.com/voxhall/livebridge/pkg/gateway/metrics"
	"github.com/voxhall/livebridge/pkg/gateway/mw"
)

var errTransportClosed = errors.New("client transport closed")

// wsTransport adapts one WebSocket connection to the session.Transport
// contract. Data writes go through a single mutex so the coordinator, the
// pumps, and the read loop never interleave frames on the wire; control
// frames use gorilla's concurrency-safe WriteControl.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) SendJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return errTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) SendBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return errTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) Connected() bool {
	return !t.closed.Load()
}

func (t *wsTransport) markClosed() {
	t.closed.Store(true)
}

func (t *wsTransport) ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) closePolicyViolation(message string) {
	data := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message)
	_ = t.conn.WriteControl(websocket.CloseMessage, data, time.Now().Add(t.writeTimeout))
}

// LiveHandler owns the live WebSocket endpoint: one browser client at a
// time, JSON control frames in, binary audio in both directions. A second
// concurrent client is turned away with a busy frame and a policy-violation
// close; session lifecycle itself belongs to the coordinator.
type LiveHandler struct {
	Config      config.Config
	Coordinator *session.Coordinator
	Logger      *slog.Logger
	Lifecycle   *lifecycle.Lifecycle
	Metrics     *metrics.Metrics

	mu     sync.Mutex
	client *wsTransport
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, r, http.StatusMethodNotAllowed, apierror.TypeInvalidRequest, "method not allowed")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, r, http.StatusServiceUnavailable, apierror.TypeOverloaded, "gateway is draining")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.Config.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade rejected", "error", err, "origin", r.Header.Get("Origin"))
		}
		return
	}
	defer conn.Close()

	transport := newWSTransport(conn, h.Config.LiveWSWriteTimeout)

	if !h.admit(transport) {
		h.recordError("admission")
		_ = transport.SendJSON(protocol.Error(protocol.MsgSessionBusy))
		transport.closePolicyViolation(protocol.MsgSessionBusy)
		return
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("request_id", reqID, "remote_addr", r.RemoteAddr)
	logger.Info("live client connected")

	if h.Config.LiveMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxMessageBytes)
	}
	if h.Config.LiveWSReadTimeout > 0 {
		readTimeout := h.Config.LiveWSReadTimeout
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}

	pingDone := make(chan struct{})
	go h.keepAlive(transport, pingDone, logger)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("live handler panic", "panic", rec)
			h.recordError("panic")
			_ = transport.SendJSON(protocol.ServerFailure(rec))
		}
		close(pingDone)
		// A session left behind by this client dies with the connection.
		if h.Coordinator.BoundTo(transport) {
			if err := h.Coordinator.Stop(context.Background(), false); err != nil {
				logger.Warn("session teardown after disconnect failed", "error", err)
			}
		}
		transport.markClosed()
		h.release(transport)
		logger.Info("live client disconnected")
	}()

	h.readLoop(r, transport, logger)
}

func (h *LiveHandler) readLoop(r *http.Request, transport *wsTransport, logger *slog.Logger) {
	for {
		messageType, data, err := transport.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("client websocket closed unexpectedly", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			h.handleCommand(r, transport, data, logger)
		case websocket.BinaryMessage:
			if !h.Coordinator.EnqueueAudio(data) {
				_ = transport.SendJSON(protocol.Warning(protocol.MsgSessionNotActive))
			}
		}
	}
}

func (h *LiveHandler) handleCommand(r *http.Request, transport *wsTransport, data []byte, logger *slog.Logger) {
	cmd, decErr := protocol.DecodeCommand(data)
	if decErr != nil {
		h.recordError("protocol")
		logger.Debug("rejected client command", "code", decErr.Code)
		_ = transport.SendJSON(protocol.Error(decErr.Message))
		return
	}

	switch cmd.Command {
	case protocol.CommandStartSession:
		// The session context derives from the request so a dropped
		// connection always takes its session down with it.
		if h.Coordinator.Start(r.Context(), transport) == session.StartAlreadyActive {
			_ = transport.SendJSON(protocol.Info(protocol.MsgSessionAlreadyActive))
		}
	case protocol.CommandStopSession:
		if err := h.Coordinator.Stop(r.Context(), true); err != nil {
			logger.Warn("stop request did not finish cleanly", "error", err)
		}
	}
}

func (h *LiveHandler) keepAlive(transport *wsTransport, done <-chan struct{}, logger *slog.Logger) {
	interval := h.Config.LiveWSPingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := transport.ping(); err != nil {
				logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

// admit reserves the single client slot for this transport.
func (h *LiveHandler) admit(t *wsTransport) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return false
	}
	h.client = t
	return true
}

func (h *LiveHandler) release(t *wsTransport) {
	h.mu.Lock()
	if h.client == t {
		h.client = nil
	}
	h.mu.Unlock()
}

func (h *LiveHandler) recordError(stage string) {
	if h.Metrics != nil {
		h.Metrics.RecordError(stage)
	}
}
