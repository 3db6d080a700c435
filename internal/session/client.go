package session

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

const (
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 5 * time.Second
)

// Client is one accepted game connection. Frames queued with Send are
// delivered by a dedicated writer goroutine; the send counter is
// assigned at enqueue time so frames go out in counter order.
type Client struct {
	conn net.Conn
	ip   string
	role string

	sendMu  sync.Mutex
	counter uint32

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration

	mu     sync.Mutex
	player *model.Player
}

// NewClient wraps an accepted connection. The first frame sent will
// carry counter 1.
func NewClient(conn net.Conn, role string) (*Client, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, fmt.Errorf("splitting host port: %w", err)
	}
	return &Client{
		conn:         conn,
		ip:           host,
		role:         role,
		sendCh:       make(chan []byte, defaultSendQueueSize),
		closeCh:      make(chan struct{}),
		writeTimeout: defaultWriteTimeout,
	}, nil
}

// IP returns the client's remote IP address.
func (c *Client) IP() string {
	return c.ip
}

// Role returns the service role this connection arrived on.
func (c *Client) Role() string {
	return c.role
}

// LocalPort returns the listener port this connection arrived on.
func (c *Client) LocalPort() int {
	if addr, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Player returns the player bound to this connection, nil before login.
func (c *Client) Player() *model.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// SetPlayer binds a player to this connection.
func (c *Client) SetPlayer(p *model.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = p
}

// Send queues one frame for delivery. Non-blocking: a full queue
// means a client that stopped reading, so the connection is dropped.
func (c *Client) Send(opcode uint16, body []byte) {
	c.sendMu.Lock()
	c.counter++
	f := protocol.New(opcode, c.counter, body)
	wire := f.Append(make([]byte, 0, protocol.FrameOverhead+len(body)))
	protocol.Obfuscate(wire, 0)

	select {
	case c.sendCh <- wire:
		c.sendMu.Unlock()
	default:
		c.sendMu.Unlock()
		slog.Warn("send queue full, disconnecting slow client",
			"role", c.role, "remote", c.ip)
		c.closeAsync()
	}
}

// writePump delivers queued frames until Close is signalled or a
// write fails. It owns the socket close: frames queued before Close
// are flushed first, so an error frame still reaches the client.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case wire := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("set write deadline failed", "remote", c.ip, "error", err)
				return
			}
			if _, err := c.conn.Write(wire); err != nil {
				slog.Warn("write failed", "remote", c.ip, "error", err)
				return
			}
		case <-c.closeCh:
			for {
				select {
				case wire := <-c.sendCh:
					c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
					if _, err := c.conn.Write(wire); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// closeAsync signals the writer to flush and stop. Safe to call
// multiple times.
func (c *Client) closeAsync() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
}

// Close asks the writer to flush queued frames and close the
// connection. The read loop unblocks once the socket is closed.
func (c *Client) Close() {
	c.closeAsync()
}
