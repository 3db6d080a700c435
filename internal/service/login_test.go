package service

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

// seedUser stores an account and loads it back the way the auth flow
// does, with all three profile slots filled in.
func seedUser(t *testing.T, tw *testWorld, username, hash string) *model.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, tw.users.Store(ctx, &model.User{Username: username, Hash: hash}))
	u, err := tw.GetUser(ctx, hash)
	require.NoError(t, err)
	return u
}

// bindPlayer attaches an authenticated player to a fresh connection,
// skipping the crypto handshake.
func bindPlayer(u *model.User) (*model.Player, *fakeConn) {
	conn := newFakeConn()
	p := &model.Player{User: u, Conn: conn, Addr: conn.ip}
	conn.player = p
	return p, conn
}

func TestHello(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World), gameName: "pes5"}
	conn := newFakeConn()

	require.NoError(t, h.hello(context.Background(), conn, frame(0x3001, nil)))
	assert.Equal(t, zeros(16), conn.last(t, 0x3002))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World), gameName: "pes5"}
	conn := newFakeConn()

	body := make([]byte, 64)
	for i := range body {
		body[i] = byte(i*3 + 1)
	}
	require.NoError(t, h.authenticate(context.Background(), conn, frame(0x3003, body)))

	assert.Equal(t, errorCode(model.CodeGenericFailure), conn.last(t, 0x3004))
	assert.Nil(t, conn.Player())
	assert.Zero(t, tw.NumUsersOnline())
}

func TestAuthenticateBindsPlayer(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World), gameName: "pes5"}
	conn := newFakeConn()

	body := make([]byte, 64)
	for i := range body {
		body[i] = byte(i*3 + 1)
	}
	hash := hex.EncodeToString(body[32:48])
	seedUser(t, tw, "alice", hash)

	require.NoError(t, h.authenticate(context.Background(), conn, frame(0x3003, body)))

	assert.Equal(t, zeros(4), conn.last(t, 0x3004))
	p := conn.Player()
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.User.Username)
	assert.True(t, tw.IsUserOnline(hash))

	decrypted, err := tw.Cipher().Decrypt(body)
	require.NoError(t, err)
	info := tw.UserInfo("alice")
	require.NotNil(t, info)
	assert.Equal(t, "pes5", info.GameName)
	assert.Equal(t, string(decrypted[48:64]), info.RosterHash)
}

func TestAuthenticateDuplicateLogin(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World), gameName: "pes5"}

	body := make([]byte, 64)
	for i := range body {
		body[i] = byte(i + 7)
	}
	hash := hex.EncodeToString(body[32:48])
	seedUser(t, tw, "alice", hash)

	first := newFakeConn()
	require.NoError(t, h.authenticate(context.Background(), first, frame(0x3003, body)))
	require.NotNil(t, first.Player())

	second := newFakeConn()
	require.NoError(t, h.authenticate(context.Background(), second, frame(0x3003, body)))

	assert.Equal(t, errorCode(model.CodeAlreadyOnline), second.last(t, 0x3004))
	assert.Nil(t, second.Player())
	assert.Same(t, first.Player(), tw.OnlinePlayer(hash))
}

func TestAuthenticateRejectsMissingRosterHash(t *testing.T) {
	tw := newWorld5(t)
	tw.SetRosterChecks(config.Roster{EnforceHash: true})
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World), gameName: "pes5"}
	conn := newFakeConn()

	// An all-zero plaintext decrypts to a roster hash of zeros, which
	// is what a client that skipped the hash step produces.
	body, err := tw.Cipher().Encrypt(make([]byte, 64))
	require.NoError(t, err)
	hash := hex.EncodeToString(body[32:48])
	seedUser(t, tw, "alice", hash)

	require.NoError(t, h.authenticate(context.Background(), conn, frame(0x3003, body)))

	assert.Equal(t, errorCode(model.CodeRosterRejected), conn.last(t, 0x3004))
	assert.False(t, tw.IsUserOnline(hash))
}

func TestGetProfilesRecordSizes(t *testing.T) {
	for _, tc := range []struct {
		name string
		size int
	}{
		{"five", 4 + 3*32},
		{"six", 4 + 3*66},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tw := newWorld5(t)
			var w wire
			if tc.name == "five" {
				w = newFiveWire(tw.World)
			} else {
				w = newSixWire(tw.World)
			}
			h := &loginHandlers{world: tw.World, wire: w}
			u := seedUser(t, tw, "alice", "aa01")
			_, conn := bindPlayer(u)

			require.NoError(t, h.getProfiles(context.Background(), conn, frame(0x3010, nil)))
			assert.Len(t, conn.last(t, 0x3012), tc.size)
		})
	}
}

func TestCreateProfile(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)

	body := append([]byte{0}, []byte("striker")...)
	require.NoError(t, h.createProfile(context.Background(), conn, frame(0x3020, body)))

	assert.Equal(t, zeros(4), conn.last(t, 0x3022))
	slot := p.User.Profiles[0]
	assert.NotZero(t, slot.ID)
	assert.Equal(t, "striker", slot.Name)

	stored, err := tw.profiles.FindByName(context.Background(), "striker")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCreateProfileNameTaken(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	_, err := tw.StoreProfile(context.Background(), &model.Profile{Name: "striker"})
	require.NoError(t, err)

	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)

	body := append([]byte{1}, []byte("striker")...)
	require.NoError(t, h.createProfile(context.Background(), conn, frame(0x3020, body)))

	assert.Equal(t, errorCode(model.CodeProfileTaken), conn.last(t, 0x3022))
	assert.Zero(t, p.User.Profiles[1].ID)
}

func TestDeleteProfileResetsSlot(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)

	body := append([]byte{0}, []byte("striker")...)
	require.NoError(t, h.createProfile(context.Background(), conn, frame(0x3020, body)))
	id := p.User.Profiles[0].ID
	require.NotZero(t, id)

	require.NoError(t, h.deleteProfile(context.Background(), conn, frame(0x3030, []byte{0})))

	assert.Equal(t, zeros(4), conn.last(t, 0x3032))
	assert.Zero(t, p.User.Profiles[0].ID)
	assert.Empty(t, p.User.Profiles[0].Name)

	gone, err := tw.profiles.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSelectProfile(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)

	body := append([]byte{2}, []byte("target man")...)
	require.NoError(t, h.createProfile(context.Background(), conn, frame(0x3020, body)))
	id := p.User.Profiles[2].ID

	require.NoError(t, h.selectProfile(context.Background(), conn, frame(0x3040, int32Payload(id))))

	require.NotNil(t, p.Profile)
	assert.Equal(t, "target man", p.Profile.Name)
	got := conn.last(t, 0x3042)
	assert.Len(t, got, 0x18e)
	assert.Equal(t, "target man", protocol.StripZeros(got[4:20]))
}

func TestSelectProfileUnknownID(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)

	require.NoError(t, h.selectProfile(context.Background(), conn, frame(0x3040, int32Payload(99))))

	assert.Equal(t, zeros(4), conn.last(t, 0x3041))
	assert.Nil(t, p.Profile)
}

func TestSettingsRoundTrip(t *testing.T) {
	tw := newWorld5(t)
	tw.SetStoreSettings(true)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)

	body := append([]byte{0}, []byte("striker")...)
	require.NoError(t, h.createProfile(context.Background(), conn, frame(0x3020, body)))
	p.Profile = p.User.Profiles[0]

	blob1 := []byte{0, 0, 3, 9, 9, 9, 1, 2, 3}
	blob2 := []byte{0, 0, 7, 4, 4, 4}
	require.NoError(t, h.uploadSettings(context.Background(), conn, frame(0x3088, blob1)))
	require.NoError(t, h.uploadSettings(context.Background(), conn, frame(0x3088, blob2)))
	require.NoError(t, h.saveSettings(context.Background(), conn, frame(0x3089, nil)))
	assert.Equal(t, zeros(4), conn.last(t, 0x308b))

	conn.reset()
	require.NoError(t, h.askForSettings(context.Background(), conn, frame(0x308a, nil)))

	head := conn.last(t, 0x3087)
	require.Len(t, head, 8)
	assert.Equal(t, uint32(p.Profile.ID), protocol.Uint32(head[4:8]))
	require.Equal(t, 2, conn.count(0x3088))
	assert.Equal(t, blob1, conn.sent[1].body)
	assert.Equal(t, blob2, conn.sent[2].body)
	assert.Equal(t, 1, conn.count(0x3089))
}

func TestAskForSettingsNoneStored(t *testing.T) {
	tw := newWorld5(t)
	tw.SetStoreSettings(true)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	u := seedUser(t, tw, "alice", "aa01")
	p, conn := bindPlayer(u)
	p.Profile = p.User.Profiles[0]

	require.NoError(t, h.askForSettings(context.Background(), conn, frame(0x308a, nil)))
	assert.Equal(t, errorCode(model.CodeNoSettings), conn.last(t, 0x3087))
}

func TestAskForSettingsDisabled(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()

	require.NoError(t, h.askForSettings(context.Background(), conn, frame(0x308a, nil)))
	assert.Equal(t, errorCode(model.CodeNoSettings), conn.last(t, 0x3087))
}

func TestExitMatchSeriesRecordsResult(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}

	home, _ := tw.join(t, 0, "alice")
	away, _ := tw.join(t, 0, "bob")
	room := tw.addRoom(0, "derby", home, away)

	match := model.NewMatch(nil)
	match.HomeProfile = home.Profile
	match.AwayProfile = away.Profile
	match.HomeTeamID = 12
	match.AwayTeamID = 33
	match.ScoreHome = 2
	match.ScoreAway = 1
	match.Started = time.Now().Add(-10 * time.Minute)
	room.Match = match

	conn := home.Conn.(*fakeConn)
	require.NoError(t, h.exitMatchSeries(context.Background(), conn, frame(0x3087, nil)))

	assert.Nil(t, room.Match)
	require.Len(t, tw.match5.matches, 1)
	assert.Same(t, match, tw.match5.matches[0])
	assert.GreaterOrEqual(t, home.Profile.PlayTime, int32(590))
	assert.GreaterOrEqual(t, away.Profile.PlayTime, int32(590))
}

func TestExitMatchSeriesMutualDisconnect(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}

	home, _ := tw.join(t, 0, "alice")
	away, _ := tw.join(t, 0, "bob")
	room := tw.addRoom(0, "derby", home, away)

	match := model.NewMatch(nil)
	match.HomeProfile = home.Profile
	match.AwayProfile = away.Profile
	match.Started = time.Now().Add(-time.Minute)
	match.HomeExit = 1
	match.AwayExit = 1
	room.Match = match

	conn := home.Conn.(*fakeConn)
	require.NoError(t, h.exitMatchSeries(context.Background(), conn, frame(0x3087, nil)))

	assert.Nil(t, room.Match)
	assert.Empty(t, tw.match5.matches)
}

func TestExitMatchSeriesNoStatsLobby(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}

	home, _ := tw.join(t, 1, "alice")
	away, _ := tw.join(t, 1, "bob")
	room := tw.addRoom(1, "derby", home, away)

	match := model.NewMatch(nil)
	match.HomeProfile = home.Profile
	match.AwayProfile = away.Profile
	match.Started = time.Now().Add(-time.Minute)
	room.Match = match

	conn := home.Conn.(*fakeConn)
	require.NoError(t, h.exitMatchSeries(context.Background(), conn, frame(0x3087, nil)))

	assert.Nil(t, room.Match)
	assert.Empty(t, tw.match5.matches)
}

func TestDisconnectGoesOffline(t *testing.T) {
	tw := newWorld5(t)
	h := &loginHandlers{world: tw.World, wire: newFiveWire(tw.World)}

	p, conn := tw.join(t, 0, "alice")
	require.True(t, tw.IsUserOnline(p.User.Hash))

	require.NoError(t, h.disconnect(context.Background(), conn, frame(0x0003, nil)))
	assert.False(t, tw.IsUserOnline(p.User.Hash))

	// losing the connection afterwards must not disturb anything
	h.connectionLost(context.Background(), conn)
	assert.False(t, tw.IsUserOnline(p.User.Hash))
}
