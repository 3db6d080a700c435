package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// slotSelectTail trails the profile id in the slot-select response.
// The client reads it as a feature mask; these bytes enable every
// online menu.
var slotSelectTail = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x80,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xc0,
	0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x01,
	0x00,
}

// netmenuHandlers serves the lobby browser: profile slots, lobby
// rosters, room lists and the search stubs.
type netmenuHandlers struct {
	world *World
	wire  wire
}

// sendPlayerUpdate fans the player's current room binding to everybody
// in the lobby.
func sendPlayerUpdate(ctx context.Context, d wire, lobby *model.Lobby, p *model.Player, roomID int32) error {
	body, err := d.playerInfo(ctx, p, roomID)
	if err != nil {
		return err
	}
	for _, usr := range lobby.Players {
		usr.Send(0x4222, body)
	}
	return nil
}

// roomGone removes the room and tells the lobby it no longer exists.
func roomGone(lobby *model.Lobby, room *model.Room) {
	for _, usr := range lobby.Players {
		usr.Send(0x4305, int32Payload(room.ID))
	}
	lobby.DeleteRoom(room)
}

func (h *netmenuHandlers) selectProfileSlot(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("slot select from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("slot select: payload too short: %d", len(f.Body))
	}
	index := int(f.Body[0])
	if index >= len(p.User.Profiles) {
		return fmt.Errorf("slot select: bad profile index %d", index)
	}
	p.Profile = p.User.Profiles[index]

	wr := protocol.NewWriter(8 + len(slotSelectTail))
	wr.WriteZeros(4)
	wr.WriteInt32(p.Profile.ID)
	wr.Write(slotSelectTail)
	c.Send(0x4101, wr.Bytes())

	return h.sendProfileInfo(ctx, c, p.Profile.ID)
}

func (h *netmenuHandlers) getProfile(ctx context.Context, c Conn, f protocol.Frame) error {
	if len(f.Body) < 4 {
		return fmt.Errorf("profile request: payload too short: %d", len(f.Body))
	}
	return h.sendProfileInfo(ctx, c, protocol.Int32(f.Body[0:4]))
}

func (h *netmenuHandlers) sendProfileInfo(ctx context.Context, c Conn, profileID int32) error {
	profile, err := h.world.PlayerProfile(ctx, profileID)
	if err != nil {
		return err
	}
	if profile == nil {
		c.Send(0x4103, nil)
		return nil
	}
	info, err := h.wire.profileInfo(ctx, profile)
	if err != nil {
		return err
	}
	wr := protocol.NewWriter(4 + len(info))
	wr.WriteZeros(4)
	wr.Write(info)
	c.Send(0x4103, wr.Bytes())
	return nil
}

func (h *netmenuHandlers) getLobbies(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("lobby list request from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("lobby list request: payload too short: %d", len(f.Body))
	}
	p.GameVersion = f.Body[0]

	lobbies := h.world.Lobbies()
	wr := protocol.NewWriter(2 + len(lobbies)*35)
	wr.WriteUint16(uint16(len(lobbies)))
	for _, l := range lobbies {
		wr.WriteByte(l.TypeCode)
		wr.WriteString(l.Name, 32)
		wr.WriteUint16(uint16(len(l.Players)))
	}
	c.Send(0x4201, wr.Bytes())
	return nil
}

func (h *netmenuHandlers) selectLobby(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Profile == nil {
		return errors.New("lobby select without a selected profile")
	}
	if len(f.Body) < 39 {
		return fmt.Errorf("lobby select: payload too short: %d", len(f.Body))
	}
	data := f.Body
	p.Room = nil
	p.Spectator = false
	p.NoLobbyChat = 0
	p.NeedsChatReplay = false
	p.TeamID = 0
	p.Challenger = nil
	p.CancelledParticipationAt = time.Time{}
	p.LobbyID = int(data[0])
	p.IP1 = protocol.StripZeros(data[1:17])
	p.Port1 = protocol.Uint16(data[17:19])
	p.IP2 = protocol.StripZeros(data[19:35])
	p.Port2 = protocol.Uint16(data[35:37])
	p.Aux = protocol.Uint16(data[37:39])

	lobby := h.world.Lobby(p.LobbyID)
	if lobby == nil {
		return fmt.Errorf("selecting lobby %d: %w", p.LobbyID, model.ErrUnknownLobby)
	}
	c.Send(0x4203, zeros(4))
	if p.Lobby != nil && p.Lobby != lobby {
		p.Lobby.Exit(p)
	}
	slog.Info("player entering lobby",
		"profile", p.Profile.Name, "lobby", lobby.Name)
	lobby.Enter(p)

	body, err := h.wire.playerInfo(ctx, p, 0)
	if err != nil {
		return err
	}
	for _, usr := range lobby.Players {
		usr.Send(0x4220, body)
	}
	scheduleChatReplay(h.world, h.wire, lobby, p)
	return nil
}

func (h *netmenuHandlers) getUserList(ctx context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x4211, zeros(4))
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return nil
	}
	for _, usr := range p.Lobby.Players {
		body, err := h.wire.playerInfo(ctx, usr, usr.RoomID())
		if err != nil {
			return err
		}
		c.Send(0x4212, body)
	}
	c.Send(0x4213, zeros(4))
	return nil
}

func (h *netmenuHandlers) getRoomList(_ context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x4301, zeros(4))
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return nil
	}
	for _, room := range p.Lobby.Rooms {
		c.Send(0x4302, h.wire.roomListEntry(room))
	}
	c.Send(0x4303, zeros(4))
	return nil
}

func (h *netmenuHandlers) ack3080(_ context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x3082, zeros(4))
	c.Send(0x3086, nil)
	return nil
}

func (h *netmenuHandlers) getFriends(_ context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x4581, zeros(4))
	c.Send(0x4583, zeros(4))
	return nil
}

func (h *netmenuHandlers) setFavouriteTeam(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Profile == nil {
		return errors.New("favourite team without a selected profile")
	}
	if len(f.Body) < 2 {
		return fmt.Errorf("favourite team: payload too short: %d", len(f.Body))
	}
	p.Profile.FavTeam = int32(protocol.Uint16(f.Body[0:2]))
	if _, err := h.world.StoreProfile(ctx, p.Profile); err != nil {
		return err
	}
	c.Send(0x4112, zeros(4))
	return nil
}

func (h *netmenuHandlers) setFavouritePlayer(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Profile == nil {
		return errors.New("favourite player without a selected profile")
	}
	if len(f.Body) < 4 {
		return fmt.Errorf("favourite player: payload too short: %d", len(f.Body))
	}
	p.Profile.FavPlayer = protocol.Int32(f.Body[0:4])
	if _, err := h.world.StoreProfile(ctx, p.Profile); err != nil {
		return err
	}
	c.Send(0x4116, zeros(4))
	return nil
}

func (h *netmenuHandlers) searchPlayers(_ context.Context, c Conn, f protocol.Frame) error {
	end := min(len(f.Body), 17)
	var name string
	if end > 1 {
		name = protocol.StripZeros(f.Body[1:end])
	}
	slog.Info("player search", "name", name)
	c.Send(0x4601, zeros(4))
	c.Send(0x4603, zeros(4))
	return nil
}

func (h *netmenuHandlers) getInboxMessages(_ context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x4781, zeros(4))
	c.Send(0x4783, zeros(4))
	return nil
}

// quickMatchSearch has no matchmaking pool behind it: the client gets
// a "no results" answer right away and drops back to the menu, so the
// lobby membership is released here.
func (h *netmenuHandlers) quickMatchSearch(_ context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x4a01, []byte{0, 0, 0, 1})
	p := c.Player()
	if p == nil || p.Profile == nil || p.Lobby == nil {
		slog.Info("quick match search from player without a lobby")
		return nil
	}
	lobby := p.Lobby
	slog.Info("player exiting lobby",
		"profile", p.Profile.Name, "lobby", lobby.Name)
	lobby.Exit(p)
	for _, usr := range lobby.Players {
		usr.Send(0x4221, int32Payload(p.Profile.ID))
	}
	return nil
}

func (h *netmenuHandlers) disconnect(_ context.Context, c Conn, _ protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Profile == nil || p.Lobby == nil {
		slog.Info("disconnect request from player without a lobby")
		return nil
	}
	lobby := p.Lobby
	slog.Info("player exiting lobby",
		"profile", p.Profile.Name, "lobby", lobby.Name)
	lobby.Exit(p)
	h.world.UserOffline(p)
	for _, usr := range lobby.Players {
		usr.Send(0x4221, int32Payload(p.Profile.ID))
	}
	return nil
}

func (h *netmenuHandlers) connectionLost(ctx context.Context, c Conn) {
	p := c.Player()
	if p == nil {
		return
	}
	h.world.UserOffline(p)
	lobby := p.Lobby
	if lobby == nil {
		return
	}
	if room := p.Room; room != nil {
		h.leaveRoomOnLost(ctx, lobby, room, p)
	}
	lobby.Exit(p)
	for _, usr := range lobby.Players {
		usr.Send(0x4221, int32Payload(p.Profile.ID))
	}
}

// leaveRoomOnLost pulls a vanished player out of their room. A match
// in progress counts the disconnect against them; the forfeit score is
// applied when configured, otherwise the match is discarded.
func (h *netmenuHandlers) leaveRoomOnLost(ctx context.Context, lobby *model.Lobby, room *model.Room, p *model.Player) {
	if match, ok := room.Match.(*model.Match); ok {
		if match.HomeTeamID >= 0 && match.AwayTeamID >= 0 {
			p.Profile.Disconnects++
			if _, err := h.world.StoreProfile(ctx, p.Profile); err != nil {
				slog.Error("storing disconnect count", "error", err)
			}
		}
		if cal := h.world.Config().CountAsLoss; cal.Enabled {
			switch {
			case match.HomeProfile == nil || match.AwayProfile == nil:
				slog.Warn("match without both profiles, skipping forfeit score",
					"room", room.Name)
			case match.HomeProfile.ID == p.Profile.ID:
				match.ScoreHome = cal.Score.Player
				match.ScoreAway = cal.Score.Opponent
			default:
				match.ScoreHome = cal.Score.Opponent
				match.ScoreAway = cal.Score.Player
			}
		} else {
			room.Match = nil
		}
	}
	room.Exit(p)
	if !room.IsEmpty() {
		wr := protocol.NewWriter(48)
		wr.WriteString(p.Profile.Name, 16)
		wr.WriteString(room.Name, 32)
		room.Owner.Send(0x4331, wr.Bytes())
	}
	h.wire.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.wire, lobby, p, room.ID); err != nil {
		slog.Error("sending player update", "error", err)
	}
	if room.IsEmpty() {
		roomGone(lobby, room)
	}
}
