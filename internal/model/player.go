package model

import (
	"fmt"
	"log/slog"
	"time"
)

// Conn is the transport side of an online player. The session layer
// implements it; model code only ever pushes packets through it.
type Conn interface {
	Send(opcode uint16, body []byte)
	Close()
}

// Player is one authenticated connection to a lobby-carrying service.
// Everything mutable on it is guarded by the world lock.
type Player struct {
	User        *User
	Profile     *Profile
	GameVersion byte
	LobbyID     int
	Lobby       *Lobby
	Room        *Room
	Spectator   bool
	NoLobbyChat int32
	// NeedsChatReplay is set on lobby enter and cleared once the
	// recent chat history has been pushed to the client.
	NeedsChatReplay bool

	IP1   string
	Port1 uint16
	IP2   string
	Port2 uint16
	Aux   uint16

	// TeamID is the side pick sent ahead of a match. Room update
	// frames echo it next to the profile id.
	TeamID uint16

	// Challenger is the player whose match challenge this player, as
	// a room owner, has not yet answered.
	Challenger *Player

	CancelledParticipationAt time.Time

	Addr string
	Conn Conn
}

// Send pushes a packet to the player's connection, if any.
func (p *Player) Send(opcode uint16, body []byte) {
	if p.Conn == nil {
		slog.Warn("cannot send to player without connection",
			"hash", p.User.Hash,
			"opcode", fmt.Sprintf("0x%04X", opcode))
		return
	}
	p.Conn.Send(opcode, body)
}

// RoomID returns the id of the room the player is in, or 0.
func (p *Player) RoomID() int32 {
	if p.Room == nil {
		return 0
	}
	return p.Room.ID
}

// InRoom returns the 1-byte room flag used in player status payloads.
func (p *Player) InRoom() byte {
	if p.Room != nil {
		return 1
	}
	return 0
}
