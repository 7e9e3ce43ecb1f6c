package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ripple/internal/domain"
)

// Client is one live authenticated connection. Writes are serialized with a
// mutex because pushes originate from other connections' goroutines.
type Client struct {
	ID       string
	UserID   string
	Username string

	conn *websocket.Conn
	mu   sync.Mutex
}

func NewClient(user *domain.User, conn *websocket.Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		Username: user.Username,
		conn:     conn,
	}
}

// Send writes one JSON payload to the connection.
func (c *Client) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(payload)
}

// ReadJSON reads the next client event. Only the connection's own handler
// goroutine calls this.
func (c *Client) ReadJSON(v any) error {
	return c.conn.ReadJSON(v)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
