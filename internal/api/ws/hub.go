package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message is the envelope for everything sent to a subscriber
type Message struct {
	Type    string              `json:"type"`
	Message string              `json:"message,omitempty"`
	Span    *tracing.SpanExport `json:"span,omitempty"`
}

type inbound struct {
	Type string `json:"type"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	traceID string
	tenant  string
	once    sync.Once
}

func (c *client) wants(s tracing.Span) bool {
	if c.traceID != "" && s.TraceID != c.traceID {
		return false
	}
	if c.tenant != "" {
		v, ok := s.Tags[tracing.TagTenantID]
		if !ok || v.AsString() != c.tenant {
			return false
		}
	}
	return true
}

// Hub streams finished spans to WebSocket subscribers. It implements
// tracing.Exporter.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced by the HTTP middleware
			},
		},
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// ExportSpan implements tracing.Exporter. Slow subscribers miss spans
// rather than block the tracer.
func (h *Hub) ExportSpan(s tracing.Span) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	export := tracing.ExportSpan(s)
	data, err := sonic.Marshal(Message{Type: "span", Span: &export})
	if err != nil {
		h.logger.Error("encode span event", zap.Error(err), zap.String("span_id", s.SpanID))
		return
	}

	for c := range h.clients {
		if !c.wants(s) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping span for slow subscriber", zap.String("span_id", s.SpanID))
		}
	}
}

// HandleConnection upgrades the request and streams spans until the client
// disconnects. The traceId and tenantId query parameters narrow the feed.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		traceID: c.Query("traceId"),
		tenant:  c.Query("tenantId"),
	}
	if !h.register(cl) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	defer h.unregister(cl)

	go h.writePump(cl)

	h.enqueue(cl, Message{Type: "system", Message: "connected"})
	h.readPump(cl)
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	return true
}

func (h *Hub) unregister(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		close(c.send)
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
	})
}

func (h *Hub) enqueue(c *client, msg Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", "text")
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.enqueue(c, Message{Type: "error", Message: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.enqueue(c, Message{Type: "pong"})
		default:
			h.enqueue(c, Message{Type: "error", Message: "unknown message type"})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.RecordWSMessage("out", "text")
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
