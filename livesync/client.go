package livesync

import (
	"sync/atomic"
	"time"

	log "recipeserver/cloudlog"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Tracker is the session-scoped counter surface a client carries. One
// tracker per connected device session; see sessionstats.Tracker.
type Tracker interface {
	RecipeViewed(ownerID, recipeID string)
	RecipeCopied(ownerID, recipeID string)
	CollectionViewed(collectionID string)
	CollectionRecipeCopied(collectionID string)
}

// Client is a middleman between one device's websocket connection and the
// caller's hub.
type Client struct {
	userID string

	hub *Hub

	// Session-scoped counter dedup, discarded with the client.
	stats Tracker

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan *Message

	// Set by either pump on exit, read by the hub goroutine.
	closed int32
}

// IsClosed returns true if the client is closed and shouldn't be interacted
// with anymore.
func (c *Client) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) markClosed() {
	atomic.StoreInt32(&c.closed, 1)
}

// readPump pumps messages from the websocket connection to the hub.
//
// The application runs readPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.markClosed()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var message Message
		err := c.conn.ReadJSON(&message)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read pump error: %v", err)
			}
			break
		}
		message.client = c
		c.hub.inbound <- &message
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.markClosed()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins the read and write goroutines for hub <-> client
// communication.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// NewClient returns a newly instantiated client for one device connection.
func NewClient(userID string, conn *websocket.Conn, stats Tracker) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		stats:  stats,
		send:   make(chan *Message, 256),
	}
}
