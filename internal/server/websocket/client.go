package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tuncanbit/paylink/internal/domain/interfaces"
	"github.com/tuncanbit/paylink/internal/domain/models"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrClientInactive = errors.New("client is inactive")
	ErrSendBufferFull = errors.New("send channel full")
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// Client implements the WebSocketClient interface
type Client struct {
	id         string
	conn       *websocket.Conn
	send       chan *models.StatusUpdate
	done       chan struct{}
	closeOnce  sync.Once
	pingPeriod time.Duration
}

// NewClient starts the read and write pumps for conn. A zero pingPeriod
// falls back to 54s.
func NewClient(conn *websocket.Conn, pingPeriod time.Duration) interfaces.WebSocketClient {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}

	client := &Client{
		id:         uuid.New().String(),
		conn:       conn,
		send:       make(chan *models.StatusUpdate, 256),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (c *Client) GetID() string {
	return c.id
}

// Send queues a message. A full queue drops the message rather than block
// the broadcaster.
func (c *Client) Send(message *models.StatusUpdate) error {
	select {
	case <-c.done:
		return ErrClientInactive
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrClientInactive
	default:
		log.Warn().Str("client_id", c.id).Msg("WebSocket client send channel full, dropping message")
		return ErrSendBufferFull
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *Client) IsActive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// HandleConnection blocks until the connection is closed.
func (c *Client) HandleConnection() {
	<-c.done
}

func (c *Client) readPump() {
	defer c.Close()

	pongWait := c.pingPeriod * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.id).Msg("Unexpected WebSocket close error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(message)
			if err != nil {
				log.Error().Err(err).Str("client_id", c.id).Msg("Failed to marshal WebSocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
