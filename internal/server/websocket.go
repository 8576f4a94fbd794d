package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nullwave/polystep/internal/streamregistry"
	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/obslog"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4096
	wsBufferSize       = 1024
	incomingBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// subscribeRequest is the one message shape a client may send: which
// stream scope to observe. Sending a second subscribeRequest replaces
// the first
type subscribeRequest struct {
	Stream  string `json:"stream"`
	GroupID string `json:"groupId"`
	ID      string `json:"id,omitempty"`
}

// Client is one live WebSocket connection subscribed to at most one
// stream scope at a time
type Client struct {
	conn    *websocket.Conn
	streams *streamregistry.Registry
	sub     *streamregistry.Subscriber
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", obslog.Error(err))
		return
	}

	client := &Client{conn: conn, streams: s.streams}
	s.registerClient(client)
	defer s.unregisterClient(client)

	client.run()
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.Close()
}

// Close releases the subscription (if any) and the socket
func (c *Client) Close() {
	if c.sub != nil {
		c.streams.Unsubscribe(c.sub)
	}
	_ = c.conn.Close()
}

func (c *Client) run() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var receive <-chan api.StreamItem
		if c.sub != nil {
			receive = c.sub.Receive()
		}

		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleSubscribe(message)

		case item, ok := <-receive:
			if !ok {
				return
			}
			if !c.send(item) {
				return
			}

		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan []byte) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

func (c *Client) handleSubscribe(message []byte) {
	var req subscribeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return
	}

	if c.sub != nil {
		c.streams.Unsubscribe(c.sub)
		c.sub = nil
	}

	sub, err := c.streams.Subscribe(req.Stream, req.GroupID, req.ID)
	if err != nil {
		_ = c.conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	c.sub = sub
}

func (c *Client) send(item any) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(item) == nil
}

func (c *Client) ping() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}
