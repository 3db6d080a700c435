package service

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// loginHandlers authenticate users and manage their three profile
// slots. gameName is set on the per-build login ports and empty on
// the network-menu and main services, where both sides of a match
// have already authenticated elsewhere.
type loginHandlers struct {
	world    *World
	wire     wire
	gameName string
}

func (h *loginHandlers) hello(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3002, zeros(16))
	return nil
}

func (h *loginHandlers) authenticate(ctx context.Context, c Conn, f protocol.Frame) error {
	if len(f.Body) < 48 {
		return fmt.Errorf("auth payload too short: %d bytes", len(f.Body))
	}
	decrypted, err := h.world.Cipher().Decrypt(f.Body)
	if err != nil {
		return fmt.Errorf("decrypting auth payload: %w", err)
	}
	roster := h.wire.rosterHash(decrypted)
	if len(roster) > 0 {
		slog.Info("client roster hash", "hash", hex.EncodeToString(roster))
	}
	userHash := hex.EncodeToString(f.Body[32:48])
	u, err := h.world.GetUser(ctx, userHash)
	if err != nil {
		if errors.Is(err, model.ErrUnknownUser) {
			slog.Info("authentication failed: unknown user", "hash", userHash)
			c.Send(0x3004, wireCode(model.ErrUnknownUser))
			return nil
		}
		return err
	}
	slog.Info("user authenticated", "username", u.Username, "hash", u.Hash)
	if h.world.IsUserOnline(u.Hash) {
		slog.Info("user already logged in", "username", u.Username)
		c.Send(0x3004, wireCode(model.ErrAlreadyOnline))
		return nil
	}
	if h.world.RosterChecks().EnforceHash && bytes.Contains(roster, []byte{0, 0, 0, 0}) {
		// A run of four zero bytes is very unlikely in a real MD5
		// digest, so the client did not send one.
		slog.Info("roster hash check failed", "username", u.Username)
		c.Send(0x3004, wireCode(model.ErrRosterRejected))
		return nil
	}
	p := &model.Player{User: u, Conn: c, Addr: c.IP()}
	c.SetPlayer(p)
	h.world.UserOnline(p)
	if len(roster) > 0 {
		h.world.SetUserInfo(u.Username, &model.UserInfo{
			GameName:   h.gameName,
			RosterHash: string(bytes.Clone(roster)),
		})
	}
	c.Send(0x3004, zeros(4))
	return nil
}

func (h *loginHandlers) getProfiles(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil {
		slog.Warn("profile list requested before authentication")
		return nil
	}
	wr := protocol.NewWriter(128)
	wr.WriteZeros(4)
	for _, slot := range p.User.Profiles {
		games, err := h.world.Games(ctx, slot.ID)
		if err != nil {
			return err
		}
		rec := slot
		if !h.world.ShowStats() {
			rec = pristineProfile(slot)
		}
		wr.Write(h.wire.profileRecord(rec, games))
	}
	c.Send(0x3012, wr.Bytes())
	return nil
}

func (h *loginHandlers) createProfile(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || len(f.Body) < 2 {
		slog.Warn("malformed profile creation request")
		return nil
	}
	index := int(f.Body[0])
	if index >= len(p.User.Profiles) {
		return fmt.Errorf("profile slot %d out of range", index)
	}
	name := protocol.StripZeros(f.Body[1:])
	exists, err := h.world.ProfileNameExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		slog.Info("profile name taken", "name", name)
		c.Send(0x3022, wireCode(model.ErrProfileNameTaken))
		return nil
	}
	slot := p.User.Profiles[index]
	slot.Name = name
	slot.Points = 0
	stored, err := h.world.StoreProfile(ctx, slot)
	if err != nil {
		return err
	}
	p.User.Profiles[index] = stored
	c.Send(0x3022, zeros(4))
	return nil
}

func (h *loginHandlers) deleteProfile(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || len(f.Body) < 1 {
		slog.Warn("malformed profile deletion request")
		return nil
	}
	index := int(f.Body[0])
	if index >= len(p.User.Profiles) {
		return fmt.Errorf("profile slot %d out of range", index)
	}
	slot := p.User.Profiles[index]
	if slot.ID != 0 {
		if err := h.world.DeleteProfile(ctx, slot.ID); err != nil {
			return err
		}
	}
	fresh := model.NewProfile(int32(index))
	fresh.UserID = slot.UserID
	p.User.Profiles[index] = fresh
	c.Send(0x3032, zeros(4))
	return nil
}

func (h *loginHandlers) selectProfile(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || len(f.Body) < 4 {
		slog.Warn("malformed profile selection request")
		return nil
	}
	id := protocol.Int32(f.Body[0:4])
	profile, _ := p.User.ProfileByID(id)
	if profile == nil {
		slog.Error("user profile not found", "id", id)
		c.Send(0x3041, zeros(4))
		return nil
	}
	p.Profile = profile
	wr := protocol.NewWriter(0x18e)
	wr.WriteZeros(4)
	wr.WriteString(profile.Name, 16)
	wr.WriteZeros(0x18e - 20)
	c.Send(0x3042, wr.Bytes())
	return nil
}

func (h *loginHandlers) ack3050(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3052, zeros(0x47))
	return nil
}

func (h *loginHandlers) ack3060(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3062, zeros(1))
	return nil
}

func (h *loginHandlers) getMatchResults(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3072, zeros(4))
	return nil
}

func (h *loginHandlers) getMatchResults6(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3071, zeros(4))
	c.Send(0x3073, zeros(4))
	return nil
}

func (h *loginHandlers) askForSettings(ctx context.Context, c Conn, f protocol.Frame) error {
	if !h.world.StoreSettings() {
		c.Send(0x3087, errorCode(model.CodeNoSettings))
		return nil
	}
	p := c.Player()
	if p == nil || p.Profile == nil {
		slog.Warn("settings requested without a selected profile")
		return nil
	}
	settings, err := h.world.ProfileSettings(ctx, p.Profile.ID)
	if err != nil {
		return err
	}
	if settings == nil || settings.Settings1 == nil || settings.Settings2 == nil {
		c.Send(0x3087, errorCode(model.CodeNoSettings))
		return nil
	}
	wr := protocol.NewWriter(8)
	wr.WriteZeros(4)
	wr.WriteUint32(uint32(p.Profile.ID))
	c.Send(0x3087, wr.Bytes())
	for _, blob := range [][]byte{settings.Settings1, settings.Settings2} {
		data, err := inflate(blob)
		if err != nil {
			return fmt.Errorf("inflating stored settings: %w", err)
		}
		c.Send(0x3088, data)
	}
	c.Send(0x3089, nil)
	return nil
}

// exitMatchSeries finalizes a first-generation series: the match is
// detached from the room and, unless both sides bailed out together,
// recorded with updated play time and points for both profiles.
func (h *loginHandlers) exitMatchSeries(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Room == nil || p.Room.Match == nil {
		return nil
	}
	room := p.Room
	match, ok := room.Match.(*model.Match)
	if !ok {
		slog.Warn("series exit for a foreign match type", "room", room.Name)
		return nil
	}
	room.Match = nil
	if match.Started.IsZero() {
		slog.Warn("series exit for a match that never started", "room", room.Name)
		return nil
	}
	duration := time.Since(match.Started)
	if match.HomeExit == 1 && match.AwayExit == 1 {
		slog.Info("mutual disconnect, match disregarded",
			"home", match.HomeProfile.Name, "away", match.AwayProfile.Name,
			"score", fmt.Sprintf("%d:%d", match.ScoreHome, match.ScoreAway))
		return nil
	}
	countAsLoss := h.world.Config().CountAsLoss.Enabled
	if !countAsLoss && (match.HomeExit != model.ExitUnset || match.AwayExit != model.ExitUnset) {
		return nil
	}
	slog.Info("match finished",
		"homeTeam", match.HomeTeamID, "home", match.HomeProfile.Name,
		"awayTeam", match.AwayTeamID, "away", match.AwayProfile.Name,
		"score", fmt.Sprintf("%d:%d", match.ScoreHome, match.ScoreAway),
		"duration", duration)
	if room.Lobby != nil && room.Lobby.TypeCode == config.LobbyTypeNoStats {
		return nil
	}
	if err := h.world.StoreMatch(ctx, match); err != nil {
		return err
	}
	for _, profile := range []*model.Profile{match.HomeProfile, match.AwayProfile} {
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

func (h *loginHandlers) noop(ctx context.Context, c Conn, f protocol.Frame) error {
	return nil
}

func (h *loginHandlers) uploadSettings(ctx context.Context, c Conn, f protocol.Frame) error {
	p := c.Player()
	if p == nil || p.Profile == nil || len(f.Body) < 3 {
		slog.Warn("settings upload without a selected profile")
		return nil
	}
	if p.Profile.Settings == nil {
		p.Profile.Settings = &model.ProfileSettings{}
	}
	if f.Body[2] == 3 {
		p.Profile.Settings.Settings1 = deflate(f.Body)
	} else {
		p.Profile.Settings.Settings2 = deflate(f.Body)
	}
	return nil
}

func (h *loginHandlers) saveSettings(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x308b, zeros(4))
	if !h.world.StoreSettings() {
		return nil
	}
	p := c.Player()
	if p == nil || p.Profile == nil || p.Profile.Settings == nil {
		slog.Warn("settings save without uploaded settings")
		return nil
	}
	return h.world.StoreProfileSettings(ctx, p.Profile.ID, p.Profile.Settings)
}

func (h *loginHandlers) ack3090(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3091, zeros(4))
	return nil
}

func (h *loginHandlers) ack3100(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3101, zeros(4))
	return nil
}

func (h *loginHandlers) ack3120(ctx context.Context, c Conn, f protocol.Frame) error {
	c.Send(0x3121, zeros(4))
	c.Send(0x3123, nil)
	return nil
}

func (h *loginHandlers) disconnect(ctx context.Context, c Conn, f protocol.Frame) error {
	if p := c.Player(); p != nil {
		h.world.UserOffline(p)
	}
	return nil
}

func (h *loginHandlers) connectionLost(ctx context.Context, c Conn) {
	if p := c.Player(); p != nil {
		h.world.UserOffline(p)
	}
}

// deflate compresses an uploaded settings blob for storage.
func deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

// inflate restores a stored settings blob.
func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
