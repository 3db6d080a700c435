package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// mainFiveHandlers runs the first-generation room flow: two-player
// rooms entered through lobby challenges, with the match bookkeeping
// driven by the room owner's client.
type mainFiveHandlers struct {
	world *World
	five  *fiveWire
}

// checkHashes reports whether two players may face each other under
// the roster comparison rule. Missing roster info counts as a
// mismatch.
func checkHashes(w *World, a, b *model.Player) bool {
	if !w.RosterChecks().CompareHash {
		return true
	}
	ia := w.UserInfo(a.User.Username)
	ib := w.UserInfo(b.User.Username)
	if ia == nil || ib == nil {
		return false
	}
	if ia.RosterHash != ib.RosterHash {
		slog.Info("roster hashes differ",
			"a", a.Profile.Name, "b", b.Profile.Name)
		return false
	}
	return true
}

func (h *mainFiveHandlers) createRoom(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("room create from player without a lobby")
	}
	lobby := p.Lobby
	name := protocol.StripZeros(f.Body[:min(len(f.Body), 32)])
	if lobby.HasRoom(name) {
		c.Send(0x4311, wireCode(model.ErrRoomNameTaken))
		return nil
	}
	if len(f.Body) < 34 {
		return fmt.Errorf("room create: payload too short: %d", len(f.Body))
	}
	room := model.NewRoom(lobby)
	room.Name = name
	room.UsePassword = f.Body[33] == 1
	if room.UsePassword {
		room.Password = protocol.StripZeros(f.Body[34:min(len(f.Body), 50)])
	}
	room.Enter(p)
	lobby.AddRoom(room)
	slog.Info("room created", "room", room.Name, "lobby", lobby.Name)

	h.five.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.five, lobby, p, room.ID); err != nil {
		return err
	}
	c.Send(0x4311, zeros(4))
	return nil
}

func (h *mainFiveHandlers) exitRoom(ctx context.Context, c Conn, _ protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("room exit from unauthenticated connection")
	}
	room := p.Room
	if room == nil {
		slog.Warn("room exit from player not in a room")
		c.Send(0x432b, zeros(4))
		return nil
	}
	room.Exit(p)
	if !room.IsEmpty() {
		wr := protocol.NewWriter(48)
		wr.WriteString(p.Profile.Name, 16)
		wr.WriteString(room.Name, 32)
		room.Owner.Send(0x4331, wr.Bytes())
		p.NeedsChatReplay = true
	}
	h.five.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.five, room.Lobby, p, room.ID); err != nil {
		return err
	}
	c.Send(0x432b, zeros(4))
	if room.IsEmpty() {
		roomGone(room.Lobby, room)
	}
	if p.NeedsChatReplay {
		p.NeedsChatReplay = false
		scheduleChatReplay(h.world, h.five, room.Lobby, p)
	}
	return nil
}

// selectTeam starts a fresh match record for the series. Sides and
// team picks of the previous match carry over until overwritten, so
// a rematch keeps the pairing.
func (h *mainFiveHandlers) selectTeam(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("team select from unauthenticated connection")
	}
	if len(f.Body) < 2 {
		return fmt.Errorf("team select: payload too short: %d", len(f.Body))
	}
	team := protocol.Uint16(f.Body[0:2])
	room := p.Room
	if room == nil {
		return errors.New("team select from player not in a room")
	}
	prev, _ := room.Match.(*model.Match)
	match := model.NewMatch(prev)
	room.Match = match
	if room.IsOwner(p) {
		match.HomeProfile = p.Profile
		match.HomeTeamID = int32(team)
	} else {
		match.AwayProfile = p.Profile
		match.AwayTeamID = int32(team)
	}
	if match.HomeProfile != nil && match.AwayProfile != nil {
		slog.Info("match starting",
			"homeTeam", match.HomeTeamID, "home", match.HomeProfile.Name,
			"awayTeam", match.AwayTeamID, "away", match.AwayProfile.Name)
	}
	c.Send(0x4367, []byte{0, 0, 0, 1})
	return nil
}

func (h *mainFiveHandlers) goalScored(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("goal from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("goal: payload too short: %d", len(f.Body))
	}
	room := p.Room
	if room == nil {
		return errors.New("goal from player not in a room")
	}
	match, ok := room.Match.(*model.Match)
	if !ok {
		return errors.New("goal in a room without an active match")
	}
	if f.Body[0] == 0 {
		match.ScoreHome++
	} else {
		match.ScoreAway++
	}
	slog.Info("score update", "room", room.Name,
		"home", match.ScoreHome, "away", match.ScoreAway)
	c.Send(0x4369, zeros(4))
	return nil
}

func (h *mainFiveHandlers) chat(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("chat from player without a lobby")
	}
	if len(f.Body) < 10 {
		return fmt.Errorf("chat: payload too short: %d", len(f.Body))
	}
	lobby := p.Lobby
	message := protocol.StripZeros(f.Body[10:])
	message = filterBannedWords(h.world.Config().BannedWords, message)
	payload := h.five.chatPayload(f.Body[0:1], f.Body[2:6], p.Profile, message)
	switch {
	case f.Body[0] == 0 && f.Body[1] == 1:
		lobby.AddChat(&model.ChatMessage{
			From: p.Profile, Text: message, When: time.Now()})
		for _, usr := range lobby.Players {
			usr.Send(0x4402, payload)
		}
	case f.Body[0] == 1 && f.Body[1] == 2:
		if room := p.Room; room != nil {
			for _, usr := range room.Players {
				usr.Send(0x4402, payload)
			}
		}
	case f.Body[0] == 0 && f.Body[1] == 2:
		profileID := protocol.Int32(f.Body[6:10])
		target := lobby.PlayerByProfileID(profileID)
		if target == nil {
			slog.Warn("private chat to unknown profile", "profile", profileID)
			return nil
		}
		lobby.AddChat(&model.ChatMessage{
			From:    p.Profile,
			To:      target.Profile,
			Special: bytes.Clone(f.Body[2:6]),
			Text:    message,
			When:    time.Now(),
		})
		target.Send(0x4402, payload)
		if target != p {
			p.Send(0x4402, payload)
		}
	}
	return nil
}

// challenge asks a room owner for a match. The challenger is put into
// the room right away; a decline backs them out again.
func (h *mainFiveHandlers) challenge(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("challenge from player without a lobby")
	}
	if len(f.Body) < 4 {
		return fmt.Errorf("challenge: payload too short: %d", len(f.Body))
	}
	roomID := protocol.Int32(f.Body[0:4])
	var ping []byte
	if len(f.Body) > 20 {
		ping = f.Body[20:21]
	}
	lobby := p.Lobby
	room := lobby.RoomByID(roomID)
	if room == nil {
		slog.Error("challenged room does not exist", "room", roomID)
		c.Send(0x4321, []byte{0, 0, 0, 1})
		return nil
	}
	owner := room.Owner
	switch {
	case owner == nil:
		slog.Error("challenged room has no owner", "room", roomID)
		c.Send(0x4321, []byte{0, 0, 0, 1})
	case !h.world.SameGame(p, owner):
		slog.Info("game version mismatch, challenge cancelled")
		c.Send(0x4321, []byte{0, 0, 0, 1})
	case room.Lobby.CheckRosterHash && !checkHashes(h.world, p, owner):
		slog.Info("roster mismatch, challenge cancelled")
		c.Send(0x4321, []byte{0, 0, 0, 1})
	default:
		room.Enter(p)
		h.five.challengeRoomUpdate(room)
		if err := sendPlayerUpdate(ctx, h.five, lobby, p, room.ID); err != nil {
			return err
		}
		info, err := h.five.profileInfo(ctx, p.Profile)
		if err != nil {
			return err
		}
		wr := protocol.NewWriter(0x5a)
		wr.Write(info)
		wr.WriteZeros(0x57 - len(info))
		wr.Write(ping)
		wr.WriteZeros(2)
		owner.Send(0x4322, wr.Bytes())
		owner.Challenger = p
	}
	return nil
}

func (h *mainFiveHandlers) relayRoomSettings(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("room settings from unauthenticated connection")
	}
	room := p.Room
	if room == nil {
		return nil
	}
	for _, usr := range room.Players {
		if usr == p {
			continue
		}
		usr.Send(0x4350, f.Body)
	}
	return nil
}

func (h *mainFiveHandlers) toggleReady(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("ready toggle from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("ready toggle: payload too short: %d", len(f.Body))
	}
	ready := f.Body[0] == 1
	room := p.Room
	if room == nil {
		c.Send(0x4361, zeros(4))
		return errors.New("ready toggle from player not in a room")
	}
	if ready {
		room.ReadyCount++
	} else {
		room.ReadyCount--
	}
	for _, usr := range room.Players {
		if usr == p {
			continue
		}
		usr.Send(0x4362, f.Body)
	}
	c.Send(0x4361, zeros(4))

	if room.ReadyCount == 2 {
		for _, usr := range room.Players {
			usr.Send(0x4344, []byte{4})
			usr.NeedsChatReplay = true
		}
		room.ReadyCount = 0
		if match, ok := room.Match.(*model.Match); ok && match.Started.IsZero() {
			match.Started = time.Now()
		}
	}
	return nil
}
