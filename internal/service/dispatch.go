package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
	"github.com/fiveserver/fiveserver/internal/session"
)

// Conn is one client connection as the handlers see it. The session
// layer implements it.
type Conn interface {
	Send(opcode uint16, body []byte)
	Close()
	Player() *model.Player
	SetPlayer(p *model.Player)
	IP() string
	LocalPort() int
}

// HandlerFunc reacts to one frame on one connection. The world lock
// is held for the duration of the call.
type HandlerFunc func(ctx context.Context, c Conn, f protocol.Frame) error

// Dispatcher routes frames to per-opcode handlers for one service
// role. Opcodes nobody registered are acknowledged with a four-zero
// status payload, and a failed handler is answered with its wire code
// (the generic code when it carries none), so clients never hang
// waiting for a reply.
type Dispatcher struct {
	world    *World
	role     string
	handlers map[uint16]HandlerFunc
	lost     func(ctx context.Context, c Conn)
}

// NewDispatcher creates an empty dispatcher for one role.
func NewDispatcher(w *World, role string) *Dispatcher {
	return &Dispatcher{
		world:    w,
		role:     role,
		handlers: make(map[uint16]HandlerFunc),
	}
}

// Register installs the handler for an opcode, replacing any previous
// one. Role layers override base behavior this way.
func (d *Dispatcher) Register(opcode uint16, h HandlerFunc) {
	d.handlers[opcode] = h
}

// OnConnectionLost installs the disconnect hook.
func (d *Dispatcher) OnConnectionLost(f func(ctx context.Context, c Conn)) {
	d.lost = f
}

// Handle implements session.Handler. Handlers run serialized under
// the world lock; the room and lobby bookkeeping depends on that.
func (d *Dispatcher) Handle(ctx context.Context, c *session.Client, f protocol.Frame) error {
	return d.dispatch(ctx, c, f)
}

func (d *Dispatcher) dispatch(ctx context.Context, c Conn, f protocol.Frame) error {
	d.world.Lock()
	defer d.world.Unlock()
	if d.world.Debug() {
		slog.Debug("frame in",
			"role", d.role,
			"opcode", fmt.Sprintf("0x%04x", f.Header.Opcode),
			"payload", hex.EncodeToString(f.Body))
	}
	h, ok := d.handlers[f.Header.Opcode]
	if !ok {
		slog.Info("unhandled opcode",
			"role", d.role,
			"opcode", fmt.Sprintf("0x%04x", f.Header.Opcode))
		c.Send(f.Header.Opcode+1, zeros(4))
		return nil
	}
	if err := h(ctx, c, f); err != nil {
		var we *model.WireError
		if !errors.As(err, &we) {
			we = model.ErrServerError
		}
		c.Send(f.Header.Opcode+1, wireCode(we))
		return err
	}
	return nil
}

// ConnectionLost implements session.Handler.
func (d *Dispatcher) ConnectionLost(ctx context.Context, c *session.Client) {
	d.connectionLost(ctx, c)
}

func (d *Dispatcher) connectionLost(ctx context.Context, c Conn) {
	if d.lost == nil {
		return
	}
	d.world.Lock()
	defer d.world.Unlock()
	d.lost(ctx, c)
}

// zeros returns an all-zero payload of the given size. Most
// acknowledgements on this protocol are four zero bytes.
func zeros(n int) []byte {
	return make([]byte, n)
}

// errorCode renders a four-byte status payload.
func errorCode(code uint32) []byte {
	b := make([]byte, 4)
	protocol.PutUint32(b, code)
	return b
}

// wireCode renders the status payload of a wire error.
func wireCode(e *model.WireError) []byte {
	return errorCode(e.Code)
}

// int32Payload renders a signed 32-bit value as a four-byte payload.
func int32Payload(v int32) []byte {
	b := make([]byte, 4)
	protocol.PutUint32(b, uint32(v))
	return b
}
