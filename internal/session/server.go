package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/fiveserver/fiveserver/internal/protocol"
)

const heartbeatOpcode uint16 = 0x0005

// Handler processes decoded frames for one service role.
type Handler interface {
	// Handle reacts to one frame. f.Body aliases the connection read
	// buffer and is only valid until Handle returns. Returned errors
	// are logged; the connection stays open unless the handler closed
	// it.
	Handle(ctx context.Context, c *Client, f protocol.Frame) error
	// ConnectionLost runs after the read loop ends, exactly once per
	// connection that passed admission.
	ConnectionLost(ctx context.Context, c *Client)
}

// Monitor observes connection admission and frame flow. Methods are
// called from per-connection goroutines and must be safe for
// concurrent use.
type Monitor interface {
	ConnectionOpened(role string)
	ConnectionClosed(role string)
	ConnectionRefused(role string)
	FrameReceived(role string)
	HandlerError(role string)
}

type nopMonitor struct{}

func (nopMonitor) ConnectionOpened(string)  {}
func (nopMonitor) ConnectionClosed(string)  {}
func (nopMonitor) ConnectionRefused(string) {}
func (nopMonitor) FrameReceived(string)     {}
func (nopMonitor) HandlerError(string)      {}

// Option configures a Server.
type Option func(*Server)

// WithAdmission installs a connect-time gate. A refused connection is
// closed before any frame is read.
func WithAdmission(admit func(ip string) bool) Option {
	return func(s *Server) {
		s.admit = admit
	}
}

// WithMonitor installs connection and frame counters.
func WithMonitor(m Monitor) Option {
	return func(s *Server) {
		if m != nil {
			s.monitor = m
		}
	}
}

// Server accepts framed game connections on one port and feeds them
// to a role handler.
type Server struct {
	role    string
	addr    string
	handler Handler
	admit   func(ip string) bool
	monitor Monitor

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a server for one service role.
func NewServer(role, addr string, h Handler, opts ...Option) *Server {
	s := &Server{role: role, addr: addr, handler: h, monitor: nopMonitor{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Addr returns the listen address, nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops accepting.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections from a ready listener. Split out so tests
// can pass their own listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("service listening", "role", s.role, "address", ln.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept failed", "role", s.role, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		slog.Error("failed to split host port", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	if s.admit != nil && !s.admit(host) {
		slog.Info("connection refused", "role", s.role, "remote", host)
		s.monitor.ConnectionRefused(s.role)
		conn.Close()
		return
	}

	client, err := NewClient(conn, s.role)
	if err != nil {
		slog.Error("failed to create client", "role", s.role, "error", err)
		conn.Close()
		return
	}
	slog.Debug("new connection", "role", s.role, "remote", host)
	s.monitor.ConnectionOpened(s.role)
	defer s.monitor.ConnectionClosed(s.role)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	go client.writePump()
	defer client.Close()
	defer s.handler.ConnectionLost(ctx, client)

	buf := make([]byte, protocol.MaxFrameSize)
	for {
		f, err := protocol.ReadFrame(conn, buf)
		if err != nil {
			if errors.Is(err, protocol.ErrBadDigest) {
				slog.Warn("bad frame digest, closing", "role", s.role, "remote", host)
			}
			return
		}
		s.monitor.FrameReceived(s.role)
		if f.Header.Opcode == heartbeatOpcode {
			client.Send(heartbeatOpcode, f.Body)
			continue
		}
		if err := s.handler.Handle(ctx, client, f); err != nil {
			s.monitor.HandlerError(s.role)
			slog.Error("handler error",
				"role", s.role,
				"remote", host,
				"opcode", fmt.Sprintf("0x%04X", f.Header.Opcode),
				"error", err)
		}
	}
}
