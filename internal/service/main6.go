package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// mainSixHandlers runs the second-generation room flow: rooms of up
// to four players joined from the room list, a participation list
// picked inside the room and a phase machine the clients drive from
// side-select to the final whistle.
type mainSixHandlers struct {
	world *World
	six   *sixWire
}

// stunPayload renders one player's UDP endpoints with their
// participation slot. The two in-room exchanges use the same layout
// behind different zero-pad widths.
func stunPayload(pad int, usr *model.Player, participate byte) []byte {
	wr := protocol.NewWriter(pad + 43)
	wr.WriteZeros(pad)
	wr.WriteString(usr.IP1, 16)
	wr.WriteUint16(usr.Port1)
	wr.WriteString(usr.IP2, 16)
	wr.WriteUint16(usr.Port2)
	wr.WriteInt32(usr.Profile.ID)
	wr.WriteUint16(0)
	wr.WriteByte(participate)
	return wr.Bytes()
}

// shareStunInfo pushes the player's own endpoints to everybody else
// in the room.
func (h *mainSixHandlers) shareStunInfo(p *model.Player, room *model.Room) {
	body := stunPayload(36, p, room.PlayerParticipate(p))
	for _, usr := range room.Players {
		if usr == p {
			continue
		}
		usr.Send(0x4330, body)
	}
}

// broadcastRoomChat drops a system line into the room chat. It is not
// recorded in the lobby history.
func (h *mainSixHandlers) broadcastRoomChat(room *model.Room, text string) {
	body := h.six.chatPayload([]byte{1, 8}, []byte{0, 0, 0, 0}, model.SystemProfile, text)
	for _, usr := range room.Players {
		usr.Send(0x4402, body)
	}
}

func (h *mainSixHandlers) quickGameSearch(_ context.Context, c Conn, _ protocol.Frame) error {
	c.Send(0x6021, nil)
	return nil
}

func (h *mainSixHandlers) setComment(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Profile == nil {
		return errors.New("comment update without a selected profile")
	}
	p.Profile.Comment = protocol.StripZeros(f.Body)
	if _, err := h.world.StoreProfile(ctx, p.Profile); err != nil {
		return err
	}
	c.Send(0x4111, zeros(4))
	return nil
}

func (h *mainSixHandlers) getStunInfo(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("stun info request from player without a lobby")
	}
	c.Send(0x4346, nil)
	if len(f.Body) < 4 {
		return fmt.Errorf("stun info request: payload too short: %d", len(f.Body))
	}
	roomID := protocol.Int32(f.Body[0:4])
	if room := p.Lobby.RoomByID(roomID); room != nil {
		// clients expect the room share repeated alongside each entry
		for _, usr := range room.Players {
			c.Send(0x4347, stunPayload(32, usr, room.PlayerParticipate(usr)))
			h.shareStunInfo(p, room)
		}
	}
	c.Send(0x4348, nil)
	return nil
}

func (h *mainSixHandlers) chat(_ context.Context, c Conn, f protocol.Frame) error {
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
	payload := h.six.chatPayload(f.Body[0:2], f.Body[2:6], p.Profile, message)
	t0, t1 := f.Body[0], f.Body[1]
	switch {
	case t0 == 0 && t1 == 1:
		lobby.AddChat(&model.ChatMessage{
			From: p.Profile, Text: message, When: time.Now()})
		for _, usr := range lobby.Players {
			usr.Send(0x4402, payload)
		}
	case t0 == 1 && (t1 == 8 || t1 == 5 || t1 == 7):
		// room, match and stadium chat all stay within the room
		if room := p.Room; room != nil {
			for _, usr := range room.Players {
				usr.Send(0x4402, payload)
			}
		}
	case t0 == 0 && t1 == 2:
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

func (h *mainSixHandlers) createRoom(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("room create from player without a lobby")
	}
	lobby := p.Lobby
	name := protocol.StripZeros(f.Body[:min(len(f.Body), 64)])
	if lobby.HasRoom(name) {
		c.Send(0x4311, wireCode(model.ErrRoomNameTaken))
		return nil
	}
	if len(f.Body) < 65 {
		return fmt.Errorf("room create: payload too short: %d", len(f.Body))
	}
	room := model.NewRoom(lobby)
	room.Name = name
	room.UsePassword = f.Body[64] == 1
	if room.UsePassword {
		room.Password = protocol.StripZeros(f.Body[65:min(len(f.Body), 80)])
	}
	room.Enter(p)
	lobby.AddRoom(room)
	slog.Info("room created", "room", room.Name, "lobby", lobby.Name)

	h.six.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.six, lobby, p, room.ID); err != nil {
		return err
	}
	c.Send(0x4311, zeros(4))
	return nil
}

func (h *mainSixHandlers) setOwner(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("owner change from player without a lobby")
	}
	if len(f.Body) < 4 {
		return fmt.Errorf("owner change: payload too short: %d", len(f.Body))
	}
	if room := p.Room; room != nil {
		profileID := protocol.Int32(f.Body[0:4])
		usr := p.Lobby.PlayerByProfileID(profileID)
		if usr == nil || room.PlayerPosition(usr) < 0 {
			slog.Warn("new owner is not in the room", "profile", profileID)
		} else {
			room.SetOwner(usr)
			h.six.roomUpdate(room)
		}
	}
	c.Send(0x434a, zeros(4))
	return nil
}

func (h *mainSixHandlers) setRoomName(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("room rename from unauthenticated connection")
	}
	newName := protocol.StripZeros(f.Body[:min(len(f.Body), 63)])
	payload := zeros(4)
	if room := p.Room; room != nil {
		if newName != room.Name {
			if room.Lobby.HasRoom(newName) {
				payload = []byte{0xff, 0xff, 0xff, 0xff}
			} else {
				room.Lobby.RenameRoom(room, newName)
			}
		}
		if len(f.Body) < 65 {
			return fmt.Errorf("room rename: payload too short: %d", len(f.Body))
		}
		room.UsePassword = f.Body[64] == 1
		if room.UsePassword {
			room.Password = protocol.StripZeros(f.Body[65:min(len(f.Body), 80)])
		}
		h.six.roomUpdate(room)
	}
	c.Send(0x434e, payload)
	return nil
}

func (h *mainSixHandlers) joinRoom(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("room join from player without a lobby")
	}
	if len(f.Body) < 4 {
		return fmt.Errorf("room join: payload too short: %d", len(f.Body))
	}
	roomID := protocol.Int32(f.Body[0:4])
	lobby := p.Lobby
	room := lobby.RoomByID(roomID)
	if room == nil {
		slog.Error("joined room does not exist", "room", roomID)
		c.Send(0x4321, []byte{0, 0, 0, 1})
		return nil
	}
	if room.UsePassword {
		entered := protocol.StripZeros(f.Body[4:min(len(f.Body), 19)])
		if entered != room.Password {
			slog.Error("room password does not match", "room", roomID)
			c.Send(0x4321, wireCode(model.ErrWrongRoomPassword))
			return nil
		}
	}
	room.Enter(p)
	h.six.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.six, lobby, p, room.ID); err != nil {
		return err
	}
	wr := protocol.NewWriter(5)
	wr.WriteZeros(4)
	if room.Settings != nil {
		wr.WriteByte(room.Settings.MatchTime)
	}
	c.Send(0x4321, wr.Bytes())

	// endpoint exchange: the room learns the joiner, the joiner
	// learns the room
	h.shareStunInfo(p, room)
	c.Send(0x4346, nil)
	for _, usr := range room.Players {
		if usr == p {
			continue
		}
		c.Send(0x4347, stunPayload(32, usr, room.PlayerParticipate(usr)))
	}
	c.Send(0x4348, nil)
	return nil
}

func (h *mainSixHandlers) exitingRoom(ctx context.Context, room *model.Room, p *model.Player) error {
	room.Exit(p)
	h.six.roomUpdate(room)
	if err := sendPlayerUpdate(ctx, h.six, room.Lobby, p, room.ID); err != nil {
		return err
	}
	p.Send(0x432b, zeros(4))
	if room.IsEmpty() {
		roomGone(room.Lobby, room)
	}
	return nil
}

func (h *mainSixHandlers) exitRoom(ctx context.Context, c Conn, _ protocol.Frame) error {
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
	return h.exitingRoom(ctx, room, p)
}

func (h *mainSixHandlers) toggleParticipate(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("participation toggle from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("participation toggle: payload too short: %d", len(f.Body))
	}
	participate := f.Body[0] == 1
	room := p.Room
	if room == nil {
		return errors.New("participation toggle from player not in a room")
	}
	payload := zeros(4)
	if participate {
		var host *model.Player
		if len(room.ParticipatingPlayers) > 0 {
			host = room.ParticipatingPlayers[0]
		}
		switch {
		case host != nil && room.Lobby.CheckRosterHash && !checkHashes(h.world, host, p):
			payload = []byte{0, 0, 0, 1}
			text := fmt.Sprintf("Roster mismatch: %s vs %s. Player %s cannot participate.",
				host.Profile.Name, p.Profile.Name, p.Profile.Name)
			slog.Info(text)
			h.broadcastRoomChat(room, text)
		case room.ForcedCancelActive(p, time.Now()):
			payload = errorCode(model.CodeStillCancelled)
		default:
			if room.Participate(p) == model.NotParticipating {
				payload = errorCode(model.CodeOnlyFour)
			}
		}
	} else {
		room.CancelParticipation(p)
	}
	status := h.six.participationStatus(room)
	for _, usr := range room.Players {
		usr.Send(0x4365, status)
	}
	wr := protocol.NewWriter(6)
	wr.Write(payload)
	wr.WriteByte(byteBool(participate))
	wr.WriteByte(room.PlayerParticipate(p))
	c.Send(0x4364, wr.Bytes())
	return nil
}

func (h *mainSixHandlers) forcedCancelParticipation(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Lobby == nil {
		return errors.New("forced cancel from player without a lobby")
	}
	if len(f.Body) < 4 {
		return fmt.Errorf("forced cancel: payload too short: %d", len(f.Body))
	}
	if room := p.Room; room != nil {
		profileID := protocol.Int32(f.Body[0:4])
		usr := p.Lobby.PlayerByProfileID(profileID)
		if usr == nil {
			return fmt.Errorf("forced cancel: no player with profile %d in the lobby", profileID)
		}
		room.CancelParticipation(usr)
		usr.CancelledParticipationAt = time.Now()
		status := h.six.participationStatus(room)
		for _, player := range room.Players {
			player.Send(0x4365, status)
		}
	}
	c.Send(0x4381, zeros(4))
	return nil
}

func (h *mainSixHandlers) startMatch(_ context.Context, c Conn, _ protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("match start from unauthenticated connection")
	}
	if room := p.Room; room != nil {
		wr := protocol.NewWriter(37)
		wr.WriteByte(2)
		for _, usr := range room.ParticipatingPlayers {
			wr.WriteInt32(usr.Profile.ID)
		}
		wr.WriteZeros(36 - len(room.ParticipatingPlayers)*4)
		body := wr.Bytes()
		for _, usr := range room.Players {
			usr.Send(0x4362, body)
		}
		room.Phase = model.RoomSideSelect
		room.SetMatchStarter(p)
		room.ReadyCount = 0
		h.six.roomUpdate(room)
	}
	c.Send(0x4361, zeros(4))
	return nil
}

// updateRoomPhase moves the room to the next pregame screen once all
// participants have confirmed the current one.
func (h *mainSixHandlers) updateRoomPhase(room *model.Room) {
	if room.ReadyCount != int32(len(room.ParticipatingPlayers)) {
		return
	}
	room.Phase++
	for _, usr := range room.Players {
		usr.Send(0x4344, []byte{byte(room.Phase)})
	}
	room.ReadyCount = 0
	h.six.roomUpdate(room)
}

func (h *mainSixHandlers) toggleReady(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("ready toggle from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("ready toggle: payload too short: %d", len(f.Body))
	}
	room := p.Room
	if room != nil {
		switch {
		case room.AtPregameSettings():
			switch f.Body[0] {
			case 1:
				room.ReadyCount++
			case 0:
				room.ReadyCount--
			}
		case room.Phase > model.RoomFormationSelect:
			switch f.Body[0] {
			case 0:
				// player leaves the post-match screen
				room.CancelParticipation(p)
				if len(room.ParticipatingPlayers) == 0 {
					room.Phase = model.RoomIdle
					room.Match = nil
				} else {
					room.Phase = model.RoomSeriesEnding
				}
			case 3:
				// rematch with different teams
				room.Phase = model.RoomTeamSelect
				room.Match = nil
			case 4:
				// rematch with the same teams
				room.Phase = model.RoomFormationSelect
				room.Match = nil
			}
			h.six.roomUpdate(room)
		}
		wr := protocol.NewWriter(5)
		wr.WriteInt32(p.Profile.ID)
		wr.WriteByte(f.Body[0])
		body := wr.Bytes()
		for _, usr := range room.Players {
			if usr == p {
				continue
			}
			usr.Send(0x4371, body)
		}
	}
	c.Send(0x4370, zeros(4))
	if room == nil {
		return errors.New("ready toggle from player not in a room")
	}
	if room.AtPregameSettings() {
		h.updateRoomPhase(room)
	}
	return nil
}

func (h *mainSixHandlers) setPlayerSettings(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("player settings from unauthenticated connection")
	}
	c.Send(0x436a, zeros(4))
	room := p.Room
	if room == nil {
		return errors.New("player settings from player not in a room")
	}
	wr := protocol.NewWriter(1 + len(f.Body))
	wr.WriteByte(0)
	wr.Write(f.Body)
	body := wr.Bytes()
	for _, usr := range room.Players {
		usr.Send(0x436b, body)
	}
	room.TeamSelection = model.NewTeamSelection()
	if len(f.Body) < 32 {
		return fmt.Errorf("player settings: payload too short: %d", len(f.Body))
	}
	for x := 0; x < 4; x++ {
		profileID := protocol.Int32(f.Body[x*8 : x*8+4])
		away := f.Body[x*8+4] == 1
		if profileID == 0 {
			continue
		}
		profile, err := h.world.PlayerProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if profile == nil {
			slog.Warn("lined-up profile not found", "profile", profileID)
			continue
		}
		sel := room.TeamSelection
		switch {
		case x < 2 && !away:
			sel.HomeCaptain = profile
		case x < 2:
			sel.AwayCaptain = profile
		case !away:
			sel.HomeMorePlayers = append(sel.HomeMorePlayers, profile)
		default:
			sel.AwayMorePlayers = append(sel.AwayMorePlayers, profile)
		}
	}
	h.six.roomUpdate(room)
	return nil
}

func (h *mainSixHandlers) setGameSettings(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("game settings from unauthenticated connection")
	}
	c.Send(0x436d, zeros(4))
	room := p.Room
	if room == nil {
		return errors.New("game settings from player not in a room")
	}
	settings := model.NewMatchSettings(f.Body)
	if settings == nil {
		return fmt.Errorf("game settings: payload too short: %d", len(f.Body))
	}
	room.Settings = settings
	for _, usr := range room.Players {
		usr.Send(0x436e, f.Body)
	}
	h.six.roomUpdate(room)
	return nil
}

func (h *mainSixHandlers) goalScored(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("goal from unauthenticated connection")
	}
	room := p.Room
	if room == nil {
		return errors.New("goal from player not in a room")
	}
	if m := match6(room); m == nil {
		slog.Error("goal reported, but no match in the room", "room", room.Name)
	} else {
		if len(f.Body) < 1 {
			return fmt.Errorf("goal: payload too short: %d", len(f.Body))
		}
		if f.Body[0] == 0 {
			m.GoalHome()
		} else {
			m.GoalAway()
		}
		slog.Info("score update", "room", room.Name,
			"home", m.HomeScore(), "away", m.AwayScore())
	}
	c.Send(0x4376, zeros(4))
	h.six.roomUpdate(room)
	return nil
}

func (h *mainSixHandlers) matchClockUpdate(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("clock update from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("clock update: payload too short: %d", len(f.Body))
	}
	room := p.Room
	var m *model.Match6
	if room != nil {
		m = match6(room)
	}
	if m == nil {
		slog.Error("clock update, but no match in the room")
	} else {
		m.Clock = int32(f.Body[0])
	}
	c.Send(0x4386, zeros(4))
	if room == nil {
		return errors.New("clock update from player not in a room")
	}
	h.six.roomUpdate(room)
	return nil
}

func (h *mainSixHandlers) recordMatchResult(ctx context.Context, room *model.Room) error {
	m := match6(room)
	if m == nil {
		return errors.New("no match to record")
	}
	if m.Started.IsZero() {
		return errors.New("match has no start time, result disregarded")
	}
	duration := time.Since(m.Started)
	slog.Info("match finished",
		"home", m.HomeScore(), "away", m.AwayScore(), "duration", duration)
	if room.Lobby.TypeCode == config.LobbyTypeNoStats {
		return nil
	}
	if err := h.world.StoreMatch6(ctx, m); err != nil {
		return err
	}
	sel := m.TeamSelection
	if sel == nil {
		return nil
	}
	participants := []*model.Profile{sel.HomeCaptain, sel.AwayCaptain}
	participants = append(participants, sel.HomeMorePlayers...)
	participants = append(participants, sel.AwayMorePlayers...)
	for _, profile := range participants {
		if profile == nil {
			continue
		}
		profile.PlayTime += int32(duration.Seconds())
		stats, err := h.world.Stats(ctx, profile.ID)
		if err != nil {
			return err
		}
		profile.Points = h.world.Rating().Points(stats.Wins, stats.Draws, stats.Losses)
		if _, err := h.world.StoreProfile(ctx, profile); err != nil {
			return err
		}
	}
	return nil
}

func (h *mainSixHandlers) matchStateUpdate(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("match state from unauthenticated connection")
	}
	if len(f.Body) < 1 {
		return fmt.Errorf("match state: payload too short: %d", len(f.Body))
	}
	state := int32(f.Body[0])
	room := p.Room
	if room == nil || room.TeamSelection == nil {
		slog.Error("match state update without a room or team selection")
	} else {
		if m := match6(room); m != nil {
			m.State = state
		}
		switch {
		case state == model.MatchFirstHalf:
			m := model.NewMatch6(room.TeamSelection)
			m.Started = time.Now()
			m.State = state
			room.Match = m
			slog.Info("new match started",
				"homeTeam", room.TeamSelection.HomeTeamID,
				"awayTeam", room.TeamSelection.AwayTeamID)
		case state == model.MatchFinished && match6(room) != nil:
			room.Phase = model.RoomMatchFinished
			if err := h.recordMatchResult(ctx, room); err != nil {
				slog.Error("recording match result", "error", err)
			}
		}
		h.six.roomUpdate(room)
	}
	c.Send(0x4378, zeros(4))
	return nil
}

func (h *mainSixHandlers) teamSelected(_ context.Context, c Conn, f protocol.Frame) error {
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
	ts := room.TeamSelection
	switch {
	case ts == nil:
		slog.Error("room has no team selection", "room", room.Name)
	case ts.HomeCaptain == nil:
		return errors.New("team selection has no home captain")
	case ts.HomeCaptain.ID == p.Profile.ID:
		ts.HomeTeamID = int32(team)
	case ts.AwayCaptain == nil:
		return errors.New("team selection has no away captain")
	case ts.AwayCaptain.ID == p.Profile.ID:
		ts.AwayTeamID = int32(team)
	}
	c.Send(0x4374, zeros(4))
	h.six.roomUpdate(room)
	return nil
}

func (h *mainSixHandlers) becomeSpectator(_ context.Context, c Conn, _ protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("spectator switch from unauthenticated connection")
	}
	p.Spectator = true
	c.Send(0x4367, zeros(4))
	return nil
}

// relaySpectatorInfo forwards the host's connection details for the
// playing side to everyone watching.
func (h *mainSixHandlers) relaySpectatorInfo(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("spectator info from unauthenticated connection")
	}
	if room := p.Room; room != nil {
		for _, usr := range room.Players {
			if room.PlayerParticipate(usr) != model.NotParticipating {
				continue
			}
			usr.Send(0x4351, f.Body)
		}
	}
	c.Send(0x4352, zeros(4))
	return nil
}

func (h *mainSixHandlers) backToMatchMenu(_ context.Context, c Conn, _ protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return errors.New("match menu return from unauthenticated connection")
	}
	room := p.Room
	if room == nil {
		return errors.New("match menu return from player not in a room")
	}
	n := len(room.ParticipatingPlayers)
	wr := protocol.NewWriter(4 + 4*22 + 20)
	wr.WriteZeros(4)
	for _, usr := range room.ParticipatingPlayers {
		wr.WriteInt32(usr.Profile.ID)
		wr.WriteZeros(18)
	}
	wr.WriteZeros(22 * (4 - n))
	wr.WriteZeros(20)
	c.Send(0x4384, wr.Bytes())
	return nil
}

func (h *mainSixHandlers) relayRoomSettings(_ context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		return nil
	}
	room := p.Room
	if room == nil {
		return nil
	}
	if len(f.Body) >= 4 && bytes.Equal(f.Body[0:4], []byte{0, 0, 1, 3}) {
		if len(f.Body) < 13 {
			return fmt.Errorf("room settings: payload too short: %d", len(f.Body))
		}
		room.MatchTime = 5 * (int32(f.Body[12]) + 1)
		slog.Info("match time set", "minutes", room.MatchTime)
	}
	for _, usr := range room.Players {
		if usr == p {
			continue
		}
		usr.Send(0x4350, f.Body)
	}
	return nil
}

func (h *mainSixHandlers) connectionLost(ctx context.Context, c Conn) {
	p := c.Player()
	if p == nil {
		return
	}
	h.world.UserOffline(p)
	if room := p.Room; room != nil {
		room.CancelParticipation(p)
		if err := h.exitingRoom(ctx, room, p); err != nil {
			slog.Error("room exit after lost connection", "error", err)
		}
		status := h.six.participationStatus(room)
		for _, usr := range room.Players {
			usr.Send(0x4365, status)
		}
	}
	lobby := p.Lobby
	if lobby == nil {
		return
	}
	lobby.Exit(p)
	for _, usr := range lobby.Players {
		usr.Send(0x4221, int32Payload(p.Profile.ID))
	}
}
