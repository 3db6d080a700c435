package service

import (
	"context"
	"fmt"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
	"github.com/fiveserver/fiveserver/internal/rating"
)

// sixWire renders the second-generation payloads: 48-byte names,
// group fields and the richer room records of the PES6-era clients.
type sixWire struct {
	w *World
}

func newSixWire(w *World) *sixWire {
	return &sixWire{w: w}
}

// match6 returns the room's match when it is a per-period one.
func match6(room *model.Room) *model.Match6 {
	m, _ := room.Match.(*model.Match6)
	return m
}

func (d *sixWire) playerInfo(ctx context.Context, p *model.Player, roomID int32) ([]byte, error) {
	stats, err := d.w.Stats(ctx, p.Profile.ID)
	if err != nil {
		return nil, err
	}
	wr := protocol.NewWriter(128)
	wr.WriteInt32(p.Profile.ID)
	wr.WriteString(p.Profile.Name, 48)
	wr.WriteInt32(0)
	wr.WriteZeros(48)
	wr.WriteByte(0)
	wr.WriteByte(byte(rating.Division(p.Profile.Points)))
	wr.WriteInt32(roomID)
	wr.WriteInt32(p.Profile.Points)
	wr.WriteUint16(0)
	wr.WriteUint16(uint16(stats.Games()))
	wr.WriteUint16(uint16(stats.Wins))
	wr.WriteUint16(uint16(stats.Losses))
	wr.WriteUint16(uint16(stats.Draws))
	wr.WriteZeros(3)
	return wr.Bytes(), nil
}

func (d *sixWire) profileInfo(ctx context.Context, profile *model.Profile) ([]byte, error) {
	stats, err := d.w.Stats(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	if !d.w.ShowStats() {
		profile = pristineProfile(profile)
	}
	comment := profile.Comment
	if comment == "" {
		comment = fmt.Sprintf("%s rules!", d.w.Config().ServerName)
	}
	wr := protocol.NewWriter(448)
	wr.WriteInt32(profile.ID)
	wr.WriteString(profile.Name, 48)
	wr.WriteInt32(0)
	wr.WriteString("Playmakers", 48)
	wr.WriteByte(1)
	wr.WriteByte(byte(rating.Division(profile.Points)))
	wr.WriteInt32(profile.Points)
	wr.WriteUint16(uint16(profile.Rating))
	wr.WriteUint16(uint16(stats.Games()))
	wr.WriteUint16(uint16(stats.Wins))
	wr.WriteUint16(uint16(stats.Losses))
	wr.WriteUint16(uint16(stats.Draws))
	wr.WriteUint16(uint16(stats.StreakCurrent))
	wr.WriteUint16(uint16(stats.StreakBest))
	wr.WriteUint16(uint16(profile.Disconnects))
	wr.WriteInt32(stats.GoalsScored)
	wr.WriteInt32(stats.GoalsAllowed)
	wr.WriteString(comment, 256)
	wr.WriteInt32(profile.Rank)
	for i := 0; i < 6; i++ {
		wr.WriteUint16(0)
	}
	wr.WriteByte(0)
	wr.WriteByte(0)
	for _, team := range stats.Teams {
		wr.WriteUint16(uint16(team))
	}
	for i := len(stats.Teams); i < 5; i++ {
		wr.WriteUint16(0xffff)
	}
	return wr.Bytes(), nil
}

func (d *sixWire) rosterHash(decrypted []byte) []byte {
	if len(decrypted) < 74 {
		return nil
	}
	return decrypted[58:74]
}

func (d *sixWire) profileRecord(p *model.Profile, games int32) []byte {
	wr := protocol.NewWriter(72)
	wr.WriteByte(byte(p.Index))
	wr.WriteInt32(p.ID)
	wr.WriteString(p.Name, 48)
	wr.WriteInt32(p.PlayTime)
	wr.WriteByte(byte(rating.Division(p.Points)))
	wr.WriteInt32(p.Points)
	wr.WriteUint16(uint16(p.Rating))
	wr.WriteUint16(uint16(games))
	return wr.Bytes()
}

func (d *sixWire) chatPayload(chatType, special []byte, from *model.Profile, text string) []byte {
	if len(text) > 126 {
		text = text[:126]
	}
	wr := protocol.NewWriter(64 + len(text))
	wr.Write(chatType)
	wr.Write(special)
	wr.WriteInt32(from.ID)
	wr.WriteString(from.Name, 48)
	wr.Write([]byte(text))
	wr.WriteZeros(2)
	return wr.Bytes()
}

func (d *sixWire) replayChatType() []byte {
	return []byte{0, 1}
}

func (d *sixWire) homeOrAway(room *model.Room, p *model.Player) byte {
	if room.TeamSelection == nil {
		return 0xff
	}
	return room.TeamSelection.HomeOrAway(p.Profile.ID)
}

func (d *sixWire) writeTeamsAndGoals(wr *protocol.Writer, room *model.Room) {
	home, away := uint16(0xffff), uint16(0xffff)
	if ts := room.TeamSelection; ts != nil {
		if ts.HomeTeamID >= 0 {
			home = uint16(ts.HomeTeamID)
		}
		if ts.AwayTeamID >= 0 {
			away = uint16(ts.AwayTeamID)
		}
	}
	m := match6(room)
	wr.WriteUint16(home)
	if m != nil {
		wr.WriteByte(byte(m.ScoreHome1st))
		wr.WriteByte(byte(m.ScoreHome2nd))
		wr.WriteByte(byte(m.ScoreHomeET1))
		wr.WriteByte(byte(m.ScoreHomeET2))
		wr.WriteByte(byte(m.ScoreHomePen))
	} else {
		wr.WriteZeros(5)
	}
	wr.WriteUint16(away)
	if m != nil {
		wr.WriteByte(byte(m.ScoreAway1st))
		wr.WriteByte(byte(m.ScoreAway2nd))
		wr.WriteByte(byte(m.ScoreAwayET1))
		wr.WriteByte(byte(m.ScoreAwayET2))
		wr.WriteByte(byte(m.ScoreAwayPen))
	} else {
		wr.WriteZeros(5)
	}
}

// roomInfo is the 0x4306/0x4302 room body: phase, match state, up to
// four player records and the current score line.
func (d *sixWire) roomInfo(room *model.Room) []byte {
	var state, clock int32
	if m := match6(room); m != nil {
		state, clock = m.State, m.Clock
	}
	wr := protocol.NewWriter(160)
	wr.WriteInt32(room.ID)
	wr.WriteByte(byte(room.Phase))
	wr.WriteByte(byte(state))
	wr.WriteString(room.Name, 64)
	wr.WriteByte(byte(clock))
	for _, p := range room.Players {
		wr.WriteInt32(p.Profile.ID)
		wr.WriteByte(byteBool(room.IsOwner(p)))
		wr.WriteByte(byteBool(room.IsMatchStarter(p)))
		wr.WriteByte(d.homeOrAway(room, p))
		wr.WriteByte(byteBool(p.Spectator))
		wr.WriteByte(byte(room.PlayerPosition(p)))
		wr.WriteByte(room.PlayerParticipate(p))
	}
	for i := len(room.Players); i < 4; i++ {
		wr.Write([]byte{0, 0, 0, 0, 0, 0, 0xff, 0, 0, 0xff})
	}
	d.writeTeamsAndGoals(wr, room)
	wr.WriteByte(0)
	wr.WriteByte(byteBool(room.UsePassword))
	wr.Write([]byte{0, 0x02, 0, 0})
	return wr.Bytes()
}

func (d *sixWire) roomUpdate(room *model.Room) {
	body := d.roomInfo(room)
	for _, p := range room.Lobby.Players {
		p.Send(0x4306, body)
	}
}

// challengeRoomUpdate exists for the shared challenge handlers; the
// second generation has no short-pad variant.
func (d *sixWire) challengeRoomUpdate(room *model.Room) {
	d.roomUpdate(room)
}

func (d *sixWire) roomListEntry(room *model.Room) []byte {
	return d.roomInfo(room)
}

// participationStatus is the 0x4365 body: who sits where and who is
// on the participants list.
func (d *sixWire) participationStatus(room *model.Room) []byte {
	wr := protocol.NewWriter(24)
	for _, p := range room.Players {
		wr.WriteInt32(p.Profile.ID)
		wr.WriteByte(byte(room.PlayerPosition(p)))
		wr.WriteByte(room.PlayerParticipate(p))
	}
	for i := len(room.Players); i < 4; i++ {
		wr.Write([]byte{0, 0, 0, 0, 0, 0xff})
	}
	return wr.Bytes()
}

func (d *sixWire) greeting() string {
	return fmt.Sprintf("Welcome to %s -\r\n"+
		"independent community server\r\n"+
		"supporting PES6/WE2007 games.\r\n"+
		"Have a good time, play some nice\r\n"+
		"football and try to score goals.\r\n"+
		"\r\n"+
		"Credits:\r\n"+
		"Protocol analysis: reddwarf, juce\r\n"+
		"Server programming: juce, reddwarf", d.w.Config().ServerName)
}

var sixAnnouncements = map[string][2]string{
	"0.4.1": {
		"NEW features in 0.4.1:",
		"* introducing PES6 support!\r\n",
	},
}

func (d *sixWire) newFeatures(version string) (string, string, bool) {
	a, ok := sixAnnouncements[version]
	if !ok {
		return "", "", false
	}
	return a[0], a[1], true
}

func (d *sixWire) serverList(gameName string) []byte {
	cfg := d.w.Config()
	ip := d.w.ServerIP()
	wr := protocol.NewWriter(3 * serverEntrySize)
	writeServerEntry(wr, 2, "LOGIN", ip,
		cfg.NetworkServer.LoginService[gameName], 0)
	writeServerEntry(wr, 3, cfg.ServerName, ip,
		cfg.NetworkServer.MainService, onlineButMe(d.w))
	writeServerEntry(wr, 8, "NETWORK_MENU", ip,
		cfg.NetworkServer.NetworkMenuService, 0)
	return wr.Bytes()
}
