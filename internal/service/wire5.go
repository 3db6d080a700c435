package service

import (
	"context"
	"fmt"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
	"github.com/fiveserver/fiveserver/internal/rating"
)

// fiveWire renders the first-generation payloads: 16-byte names and
// the compact room records the PES5-era clients expect.
type fiveWire struct {
	w *World
}

func newFiveWire(w *World) *fiveWire {
	return &fiveWire{w: w}
}

func (d *fiveWire) playerInfo(_ context.Context, p *model.Player, roomID int32) ([]byte, error) {
	wr := protocol.NewWriter(32)
	wr.WriteInt32(p.Profile.ID)
	wr.WriteString(p.Profile.Name, 16)
	wr.WriteByte(p.InRoom())
	wr.WriteInt32(roomID)
	wr.WriteInt32(p.NoLobbyChat)
	wr.WriteZeros(2)
	return wr.Bytes(), nil
}

func (d *fiveWire) profileInfo(ctx context.Context, profile *model.Profile) ([]byte, error) {
	stats, err := d.w.Stats(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	if !d.w.ShowStats() {
		profile = pristineProfile(profile)
	}
	wr := protocol.NewWriter(64)
	wr.WriteInt32(profile.ID)
	wr.WriteString(profile.Name, 16)
	wr.WriteByte(byte(rating.Division(profile.Points)))
	wr.WriteInt32(profile.Points)
	wr.WriteUint16(uint16(stats.Games()))
	wr.WriteUint16(uint16(stats.Wins))
	wr.WriteUint16(uint16(stats.Losses))
	wr.WriteUint16(uint16(stats.Draws))
	wr.WriteUint16(uint16(stats.StreakCurrent))
	wr.WriteUint16(uint16(stats.StreakBest))
	wr.WriteUint16(uint16(profile.Disconnects))
	wr.WriteZeros(2)
	wr.WriteUint16(uint16(stats.GoalsScored))
	wr.WriteZeros(2)
	wr.WriteUint16(uint16(stats.GoalsAllowed))
	wr.WriteUint16(uint16(profile.FavTeam))
	wr.WriteInt32(profile.FavPlayer)
	wr.WriteInt32(profile.Rank)
	return wr.Bytes(), nil
}

func (d *fiveWire) rosterHash(decrypted []byte) []byte {
	if len(decrypted) < 64 {
		return nil
	}
	return decrypted[48:64]
}

func (d *fiveWire) profileRecord(p *model.Profile, games int32) []byte {
	wr := protocol.NewWriter(32)
	wr.WriteByte(byte(p.Index))
	wr.WriteInt32(p.ID)
	wr.WriteString(p.Name, 16)
	wr.WriteInt32(p.PlayTime)
	wr.WriteByte(byte(rating.Division(p.Points)))
	wr.WriteInt32(p.Points)
	wr.WriteUint16(uint16(games))
	return wr.Bytes()
}

func (d *fiveWire) chatPayload(chatType, special []byte, from *model.Profile, text string) []byte {
	if len(text) > 126 {
		text = text[:126]
	}
	wr := protocol.NewWriter(32 + len(text))
	wr.Write(chatType)
	wr.Write(special)
	wr.WriteInt32(from.ID)
	wr.WriteString(from.Name, 16)
	wr.Write([]byte(text))
	wr.WriteZeros(2)
	return wr.Bytes()
}

func (d *fiveWire) replayChatType() []byte {
	return []byte{0}
}

// legacyRoomInfo is the 0x4306 room body. Player records are 11 bytes
// each, but two spots in the challenge flow pad the tail as if they
// were 4, so the pad width is the caller's.
func (d *fiveWire) legacyRoomInfo(room *model.Room, pad int) []byte {
	wr := protocol.NewWriter(96)
	wr.WriteInt32(room.ID)
	wr.WriteByte(1)
	wr.WriteByte(byteBool(room.UsePassword))
	wr.WriteString(room.Name, 32)
	wr.WriteByte(byte(room.MatchTime / 5))
	for _, p := range room.Players {
		wr.WriteInt32(p.Profile.ID)
		wr.WriteUint16(p.TeamID)
		wr.WriteZeros(5)
	}
	wr.WriteZeros(pad)
	return wr.Bytes()
}

func (d *fiveWire) roomUpdate(room *model.Room) {
	body := d.legacyRoomInfo(room, 48-len(room.Players)*11)
	for _, p := range room.Lobby.Players {
		p.Send(0x4306, body)
	}
}

// challengeRoomUpdate is roomUpdate with the short tail pad used when
// a challenger joins or is declined.
func (d *fiveWire) challengeRoomUpdate(room *model.Room) {
	body := d.legacyRoomInfo(room, 48-len(room.Players)*4)
	for _, p := range room.Lobby.Players {
		p.Send(0x4306, body)
	}
}

// roomListEntry is the room-list flavour of the room body: occupants
// shrink to bare profile ids.
func (d *fiveWire) roomListEntry(room *model.Room) []byte {
	wr := protocol.NewWriter(96)
	wr.WriteInt32(room.ID)
	wr.WriteByte(1)
	wr.WriteByte(byteBool(room.UsePassword))
	wr.WriteString(room.Name, 32)
	wr.WriteByte(byte(room.MatchTime / 5))
	for _, p := range room.Players {
		wr.WriteInt32(p.Profile.ID)
	}
	wr.WriteZeros(48 - len(room.Players)*4)
	return wr.Bytes()
}

func (d *fiveWire) greeting() string {
	return fmt.Sprintf("Welcome to %s -\r\n"+
		"independent community server\r\n"+
		"supporting PES5/WE9/WE9LE games.\r\n"+
		"Have a good time, play some nice\r\n"+
		"football and try to score goals.\r\n"+
		"\r\n"+
		"Credits:\r\n"+
		"Protocol analysis: reddwarf, juce\r\n"+
		"Server programming: juce, reddwarf", d.w.Config().ServerName)
}

func (d *fiveWire) newFeatures(string) (string, string, bool) {
	return "", "", false
}

func (d *fiveWire) serverList(gameName string) []byte {
	cfg := d.w.Config()
	ip := d.w.ServerIP()
	wr := protocol.NewWriter(3 * serverEntrySize)
	writeServerEntry(wr, 2, cfg.ServerName, ip,
		cfg.NetworkServer.MainService, onlineButMe(d.w))
	writeServerEntry(wr, 3, "NETWORK_MENU", ip,
		cfg.NetworkServer.NetworkMenuService, 0)
	writeServerEntry(wr, 1, "LOGIN", ip,
		cfg.NetworkServer.LoginService[gameName], 0)
	return wr.Bytes()
}

const serverEntrySize = 61

func writeServerEntry(wr *protocol.Writer, tag int32, name, ip string, port int, users uint16) {
	wr.WriteInt32(-1)
	wr.WriteInt32(tag)
	wr.WriteString(name, 32)
	wr.WriteString(ip, 15)
	wr.WriteUint16(uint16(port))
	wr.WriteUint16(users)
	wr.WriteUint16(uint16(tag))
}

// onlineButMe is the user count shown next to the main service: one
// less than the online count, floored at zero.
func onlineButMe(w *World) uint16 {
	if n := w.NumUsersOnline(); n > 1 {
		return uint16(n - 1)
	}
	return 0
}

// pristineProfile is the stats-hidden rendition of a profile: name
// and id survive, everything else reads as a fresh start.
func pristineProfile(p *model.Profile) *model.Profile {
	return &model.Profile{ID: p.ID, Name: p.Name, Index: p.Index}
}
