// Package session implements the client side of a shared listening room:
// the broker channel, the local queue view, and the leader/follower
// playback controllers.
package session

import (
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auxroom/auxroom/room"
)

const (
	ReconnectDelay   = 5 * time.Second
	HandshakeTimeout = 45 * time.Second
	PublishWait      = 5 * time.Second
)

// ConnState is the observable lifecycle state of a channel.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MessageChannel is the transport a RoomSession publishes and receives
// room-scoped messages through. Fakes implement it in tests.
type MessageChannel interface {
	RoomID() string
	OnMessage(op string, h func(*room.Message))
	OnStateChange(fn func(ConnState))
	Connect() error
	Publish(op string, payload interface{})
	Close()
}

// Channel owns one websocket session to the broker for one room. Handler
// registration must happen before Connect; handlers run sequentially on
// the channel's read goroutine. Publishing while disconnected drops the
// message: delivery is at-most-once, best-effort.
type Channel struct {
	addr           string
	roomID         string
	key            string
	username       string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	handlers map[string]func(*room.Message)
	stateFn  func(ConnState)

	mu        sync.Mutex // guards conn and connected
	conn      *websocket.Conn
	connected bool

	closing   chan struct{}
	closeOnce sync.Once
}

// NewChannel creates an unconnected channel for one room membership.
func NewChannel(dialer *websocket.Dialer, addr, roomID, key, username string) *Channel {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: HandshakeTimeout,
			Subprotocols:     []string{room.WebsocketSubprotocolMagicV1},
		}
	}
	return &Channel{
		addr:           addr,
		roomID:         roomID,
		key:            key,
		username:       username,
		dialer:         dialer,
		reconnectDelay: ReconnectDelay,
		handlers:       make(map[string]func(*room.Message)),
		closing:        make(chan struct{}),
	}
}

func (c *Channel) RoomID() string { return c.roomID }

// OnMessage registers the handler for one operation. Registrations
// survive reconnects; re-registering replaces the previous handler.
func (c *Channel) OnMessage(op string, h func(*room.Message)) {
	c.handlers[op] = h
}

// OnStateChange registers the lifecycle observer.
func (c *Channel) OnStateChange(fn func(ConnState)) {
	c.stateFn = fn
}

func (c *Channel) setState(s ConnState) {
	if c.stateFn != nil {
		c.stateFn(s)
	}
}

func (c *Channel) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.addr)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("rid", c.roomID)
	q.Set("key", c.key)
	q.Set("user", c.username)
	u.RawQuery = q.Encode()
	conn, _, err := c.dialer.Dial(u.String(), nil)
	return conn, err
}

// Connect establishes the transport session and starts the read loop.
// On transport failure the channel reconnects by itself with a fixed
// delay until Close is called; the broker re-sends the room snapshot on
// every join, which makes resubscription idempotent.
func (c *Channel) Connect() error {
	c.setState(StateConnecting)
	conn, err := c.dial()
	if err != nil {
		c.setState(StateError)
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.setState(StateConnected)
	go c.readLoop()
	return nil
}

func (c *Channel) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			conn.Close()
			select {
			case <-c.closing:
				return
			default:
			}
			c.setState(StateDisconnected)
			if !c.reconnect() {
				return
			}
			continue
		}

		var m room.Message
		if err := room.Deserialise(data, &m); err != nil {
			log.Println("Invalid message:", string(data))
			continue
		}
		c.dispatch(&m)
	}
}

// reconnect redials with a fixed delay until it succeeds or the channel
// is closed. Reports whether the channel is connected again.
func (c *Channel) reconnect() bool {
	for {
		select {
		case <-c.closing:
			return false
		case <-time.After(c.reconnectDelay):
		}
		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			log.Printf("reconnect to room %s failed: %v", c.roomID, err)
			c.setState(StateError)
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.mu.Unlock()
		c.setState(StateConnected)
		return true
	}
}

func (c *Channel) dispatch(m *room.Message) {
	rid, op, err := room.SplitTopic(m.Topic)
	if err != nil || rid != c.roomID {
		return
	}
	if h, ok := c.handlers[op]; ok {
		h(m)
	}
}

// Publish sends a structured message to the room's /app destination.
// Messages published while the session is down are dropped and logged,
// never queued: the periodic sync heartbeat re-establishes consistency.
func (c *Channel) Publish(op string, payload interface{}) {
	m := &room.Message{
		Topic:   room.AppTopic(c.roomID, op),
		Payload: payload,
	}
	b, err := m.Serialise()
	if err != nil {
		log.Printf("dropping unserialisable %s message: %v", op, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		log.Printf("dropping %s publish for room %s: not connected", op, c.roomID)
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(PublishWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Printf("publish %s for room %s failed: %v", op, c.roomID, err)
	}
}

// Close tears down the transport, safe to call multiple times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()
	})
}
