package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// wsBroadcastGroup is the consumer group the alert bridge reads new_alerts
// with. Each API instance uses its own consumer name so every instance
// sees every alert.
const wsBroadcastGroup = "ws_broadcast_group"

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub tracks connected websocket clients and fans alert announcements out
// to all of them.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsConn]bool
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*wsConn]bool),
	}
}

// Handle upgrades the request and keeps the connection open. Incoming
// client messages are answered with a heartbeat.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsConn{conn: conn}
	h.mu.Lock()
	h.conns[c] = true
	n := len(h.conns)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("websocket client connected")

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		conn.Close()
		log.Info().Msg("websocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if err := c.writeJSON(map[string]string{"type": "heartbeat", "status": "ok"}); err != nil {
			return
		}
	}
}

// Broadcast sends one message to every connected client. Clients that fail
// to accept the write are dropped.
func (h *Hub) Broadcast(v interface{}) {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.writeJSON(v); err != nil {
			log.Warn().Err(err).Msg("websocket write failed, dropping client")
			h.mu.Lock()
			delete(h.conns, c)
			h.mu.Unlock()
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// RunAlertBridge consumes new_alerts and broadcasts each announcement to
// the websocket clients. Blocks until the context is cancelled.
func (s *Server) RunAlertBridge(ctx context.Context, bus *stream.RedisBus, consumerName string) error {
	consumer := stream.NewConsumer(bus, stream.ConsumerConfig{
		Stream:   models.StreamNewAlerts,
		Group:    wsBroadcastGroup,
		Consumer: consumerName,
	}, func(_ context.Context, rec stream.Record) error {
		record := models.NewAlertFromFields(rec.Fields)
		s.hub.Broadcast(map[string]interface{}{
			"type":          "new_alert",
			"alert_id":      record.AlertID,
			"severity_band": record.SeverityBand,
			"risk_score":    record.RiskScore,
			"title":         record.Title,
		})
		return nil
	})
	return consumer.Run(ctx)
}
