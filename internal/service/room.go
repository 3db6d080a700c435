package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// roomHandlers covers the room operations both game generations share:
// match timing, exit bookkeeping, peer address exchange and the
// challenge answer flow.
type roomHandlers struct {
	world *World
	wire  wire
}

func (h *roomHandlers) setMatchTime(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("match time from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("match time: payload too short: %d", len(f.Body))
	}
	matchTime := int32(f.Body[0]) * 5
	slog.Debug("match time set", "minutes", matchTime)
	if room := p.Room; room != nil {
		room.MatchTime = matchTime
		h.wire.roomUpdate(room)
	}
	c.Send(0x4365, zeros(4))
	return nil
}

func (h *roomHandlers) matchExit(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("match exit from unauthenticated connection")
	}
	if room := p.Room; room != nil && room.Match != nil {
		if len(f.Body) < 2 {
			return fmt.Errorf("match exit: payload too short: %d", len(f.Body))
		}
		exitType := int8(f.Body[1])
		home := f.Body[0] == 0
		switch m := room.Match.(type) {
		case *model.Match:
			if home {
				m.HomeExit = exitType
			} else {
				m.AwayExit = exitType
			}
		case *model.Match6:
			if home {
				m.HomeExit = exitType
			} else {
				m.AwayExit = exitType
			}
		}
	}
	c.Send(0x4371, zeros(4))
	return nil
}

// ping hands out the UDP endpoints of another lobby occupant so the
// clients can measure latency between themselves directly.
func (h *roomHandlers) ping(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("ping request from player without a lobby")
	}
	if len(f.Body) < 4 {
		return fmt.Errorf("ping request: payload too short: %d", len(f.Body))
	}
	target := p.Lobby.PlayerByProfileID(protocol.Int32(f.Body[0:4]))
	if target == nil {
		c.Send(0x4b01, []byte{0xff, 0xff, 0xff, 0xff})
		return nil
	}
	wr := protocol.NewWriter(44)
	wr.WriteZeros(4)
	wr.WriteString(target.IP1, 16)
	wr.WriteUint16(target.Port1)
	wr.WriteString(target.IP2, 16)
	wr.WriteUint16(target.Port2)
	wr.WriteInt32(target.Profile.ID)
	c.Send(0x4b01, wr.Bytes())
	return nil
}

func (h *roomHandlers) challengeResponse(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("challenge response from player without a lobby")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("challenge response: payload too short: %d", len(f.Body))
	}
	challenger := p.Challenger
	if challenger == nil {
		slog.Warn("challenge response without a pending challenger",
			"profile", p.Profile.Name)
		return nil
	}
	if f.Body[0] == 1 {
		return h.acceptChallenge(ctx, c, p, challenger)
	}
	return h.declineChallenge(ctx, p, challenger)
}

func (h *roomHandlers) acceptChallenge(ctx context.Context, c Conn, p, challenger *model.Player) error {
	challenger.NeedsChatReplay = true
	// The client only checks the leading zero status; the climbing
	// byte pattern matches what retail servers sent here.
	wr := protocol.NewWriter(80)
	wr.WriteZeros(4)
	for b := byte(5); b <= 0x50; b++ {
		wr.WriteByte(b)
	}
	challenger.Send(0x4321, wr.Bytes())

	room := p.Room
	if room == nil {
		slog.Warn("challenge accepted outside a room",
			"profile", p.Profile.Name)
		return nil
	}
	nw := protocol.NewWriter(48)
	nw.WriteString(challenger.Profile.Name, 16)
	nw.WriteString(room.Name, 32)
	c.Send(0x4330, nw.Bytes())

	p.NoLobbyChat = 0
	challenger.NoLobbyChat = 0
	selfInfo, err := h.wire.playerInfo(ctx, p, room.ID)
	if err != nil {
		return err
	}
	challengerInfo, err := h.wire.playerInfo(ctx, challenger, room.ID)
	if err != nil {
		return err
	}
	for _, usr := range room.Lobby.Players {
		usr.Send(0x4222, selfInfo)
		usr.Send(0x4222, challengerInfo)
	}
	return nil
}

func (h *roomHandlers) declineChallenge(ctx context.Context, p, challenger *model.Player) error {
	room := p.Room
	if room == nil {
		slog.Warn("challenge declined outside a room",
			"profile", p.Profile.Name)
		return nil
	}
	room.Exit(challenger)
	h.wire.challengeRoomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.wire, room.Lobby, challenger, 0); err != nil {
		return err
	}
	challenger.Send(0x4321, []byte{0, 0, 0, 1})
	return nil
}

func (h *roomHandlers) cancelChallenge(ctx context.Context, c Conn, _ protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("challenge cancel from unauthenticated connection")
	}
	room := p.Room
	if room == nil {
		slog.Warn("challenge cancel outside a room")
		c.Send(0x4326, zeros(4))
		return nil
	}
	room.Exit(p)
	if !room.IsEmpty() {
		room.Owner.Send(0x4324, zeros(4))
	}
	h.wire.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.wire, room.Lobby, p, room.ID); err != nil {
		return err
	}
	c.Send(0x4326, zeros(4))
	if room.IsEmpty() {
		roomGone(room.Lobby, room)
	}
	return nil
}
