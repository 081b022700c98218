// internal/server/handlers/websocket.go

package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"brandpulse/internal/adapter/events"
	"brandpulse/internal/logging"
)

// EventSource subscribes to NATS subjects
type EventSource interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 4096,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventClient relays pipeline events to one WebSocket connection
type eventClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	subs   []*nats.Subscription
	config WebSocketConfig
	logger logging.Logger
}

// EventsWebSocketHandler streams batch.completed and topics.refreshed events
func EventsWebSocketHandler(source EventSource, prefix string, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			respondWithError(w, logger, http.StatusServiceUnavailable, "Event stream unavailable", nil)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("Failed to upgrade to WebSocket")
			return
		}

		client := &eventClient{
			conn:   conn,
			send:   make(chan []byte, 256),
			done:   make(chan struct{}),
			config: DefaultWebSocketConfig(),
			logger: logger,
		}

		for _, eventType := range []string{events.TypeBatchCompleted, events.TypeTopicsRefreshed} {
			sub, err := source.Subscribe(events.Subject(prefix, eventType), func(msg *nats.Msg) {
				client.enqueue(msg.Data)
			})
			if err != nil {
				logger.WithError(err).Warn("Failed to subscribe to pipeline events")
				client.close()
				return
			}
			client.subs = append(client.subs, sub)
		}

		go client.writePump()
		go client.readPump()

		logger.WithField("remote", r.RemoteAddr).Debug("Event stream client connected")
	}
}

// enqueue drops the event when the client is too slow to keep up
func (c *eventClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Debug("Dropping event for slow WebSocket client")
	}
}

// readPump discards client messages and tracks liveness
func (c *eventClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("WebSocket closed")
			}
			return
		}
	}
}

// writePump pumps events to the WebSocket connection
func (c *eventClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *eventClient) close() {
	c.once.Do(func() {
		close(c.done)
		for _, sub := range c.subs {
			_ = sub.Unsubscribe()
		}
		_ = c.conn.Close()
	})
}
