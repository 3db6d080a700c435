package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

func TestSetMatchTime(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	p, conn := tw.join(t, 0, "alice")
	_, bobConn := tw.join(t, 0, "bob")
	room := tw.addRoom(0, "derby", p)

	require.NoError(t, h.setMatchTime(context.Background(), conn, frame(0x4364, []byte{3})))

	assert.Equal(t, int32(15), room.MatchTime)
	assert.Equal(t, zeros(4), conn.last(t, 0x4365))
	// lobby hears the room change
	assert.Equal(t, byte(3), bobConn.last(t, 0x4306)[38])
}

func TestSetMatchTimeOutsideRoom(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	_, conn := tw.join(t, 0, "alice")

	require.NoError(t, h.setMatchTime(context.Background(), conn, frame(0x4364, []byte{4})))
	assert.Equal(t, []uint16{0x4365}, conn.opcodes())
}

func TestMatchExit(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	p, conn := tw.join(t, 0, "alice")
	room := tw.addRoom(0, "derby", p)

	match := model.NewMatch(nil)
	room.Match = match

	require.NoError(t, h.matchExit(context.Background(), conn, frame(0x4370, []byte{0, 2})))
	require.NoError(t, h.matchExit(context.Background(), conn, frame(0x4370, []byte{1, 3})))

	assert.Equal(t, int8(2), match.HomeExit)
	assert.Equal(t, int8(3), match.AwayExit)
	assert.Equal(t, 2, conn.count(0x4371))
}

func TestMatchExitSixMatch(t *testing.T) {
	tw := newWorld6(t)
	h := &roomHandlers{world: tw.World, wire: newSixWire(tw.World)}
	p, conn := tw.join(t, 0, "alice")
	room := tw.addRoom(0, "derby", p)

	match := model.NewMatch6(nil)
	room.Match = match

	require.NoError(t, h.matchExit(context.Background(), conn, frame(0x4370, []byte{0, 1})))

	assert.Equal(t, int8(1), match.HomeExit)
	assert.Equal(t, model.ExitUnset, match.AwayExit)
	assert.Equal(t, zeros(4), conn.last(t, 0x4371))
}

func TestPing(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	_, conn := tw.join(t, 0, "alice")
	bob, _ := tw.join(t, 0, "bob")
	bob.IP1 = "10.9.8.7"
	bob.Port1 = 600
	bob.IP2 = "10.9.8.6"
	bob.Port2 = 601

	require.NoError(t, h.ping(context.Background(), conn, frame(0x4b00, int32Payload(bob.Profile.ID))))

	body := conn.last(t, 0x4b01)
	require.Len(t, body, 44)
	assert.Equal(t, zeros(4), body[0:4])
	assert.Equal(t, "10.9.8.7", protocol.StripZeros(body[4:20]))
	assert.Equal(t, uint16(600), protocol.Uint16(body[20:22]))
	assert.Equal(t, "10.9.8.6", protocol.StripZeros(body[22:38]))
	assert.Equal(t, uint16(601), protocol.Uint16(body[38:40]))
	assert.Equal(t, bob.Profile.ID, protocol.Int32(body[40:44]))
}

func TestPingUnknownProfile(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	_, conn := tw.join(t, 0, "alice")

	require.NoError(t, h.ping(context.Background(), conn, frame(0x4b00, int32Payload(424242))))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, conn.last(t, 0x4b01))
}

func TestChallengeAccepted(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	alice, aliceConn := tw.join(t, 0, "alice")
	bob, bobConn := tw.join(t, 0, "bob")
	tw.addRoom(0, "derby", alice, bob)
	alice.Challenger = bob
	alice.NoLobbyChat = 1
	bob.NoLobbyChat = 1

	require.NoError(t, h.challengeResponse(context.Background(), aliceConn, frame(0x4323, []byte{1})))

	verdict := bobConn.last(t, 0x4321)
	require.Len(t, verdict, 80)
	assert.Equal(t, zeros(4), verdict[0:4])
	assert.Equal(t, byte(5), verdict[4])
	assert.Equal(t, byte(0x50), verdict[79])

	note := aliceConn.last(t, 0x4330)
	require.Len(t, note, 48)
	assert.Equal(t, "bob", protocol.StripZeros(note[0:16]))
	assert.Equal(t, "derby", protocol.StripZeros(note[16:48]))

	assert.True(t, bob.NeedsChatReplay)
	assert.Equal(t, int32(0), alice.NoLobbyChat)
	assert.Equal(t, int32(0), bob.NoLobbyChat)

	// both room members are re-announced to the whole lobby
	assert.Equal(t, 2, aliceConn.count(0x4222))
	assert.Equal(t, 2, bobConn.count(0x4222))
}

func TestChallengeDeclined(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	alice, aliceConn := tw.join(t, 0, "alice")
	bob, bobConn := tw.join(t, 0, "bob")
	room := tw.addRoom(0, "derby", alice, bob)
	alice.Challenger = bob

	require.NoError(t, h.challengeResponse(context.Background(), aliceConn, frame(0x4323, []byte{0})))

	assert.Equal(t, []byte{0, 0, 0, 1}, bobConn.last(t, 0x4321))
	assert.Nil(t, bob.Room)
	require.Len(t, room.Players, 1)
	assert.Same(t, alice, room.Owner)

	update := aliceConn.last(t, 0x4306)
	assert.Len(t, update, 94)

	left := bobConn.last(t, 0x4222)
	assert.Equal(t, bob.Profile.ID, protocol.Int32(left[0:4]))
	assert.Equal(t, int32(0), protocol.Int32(left[21:25]))
}

func TestChallengeResponseWithoutChallenger(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	_, conn := tw.join(t, 0, "alice")

	require.NoError(t, h.challengeResponse(context.Background(), conn, frame(0x4323, []byte{1})))
	assert.Empty(t, conn.opcodes())
}

func TestCancelChallenge(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	alice, aliceConn := tw.join(t, 0, "alice")
	bob, bobConn := tw.join(t, 0, "bob")
	room := tw.addRoom(0, "derby", alice, bob)

	require.NoError(t, h.cancelChallenge(context.Background(), bobConn, frame(0x4325, nil)))

	assert.Nil(t, bob.Room)
	assert.Equal(t, zeros(4), aliceConn.last(t, 0x4324))
	assert.Equal(t, zeros(4), bobConn.last(t, 0x4326))
	assert.Len(t, aliceConn.last(t, 0x4306), 87)
	assert.True(t, tw.Lobby(0).HasRoom("derby"))
	_ = room
}

func TestCancelChallengeLastPlayer(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	alice, aliceConn := tw.join(t, 0, "alice")
	_, bobConn := tw.join(t, 0, "bob")
	room := tw.addRoom(0, "derby", alice)

	require.NoError(t, h.cancelChallenge(context.Background(), aliceConn, frame(0x4325, nil)))

	assert.False(t, tw.Lobby(0).HasRoom("derby"))
	assert.Equal(t, room.ID, protocol.Int32(bobConn.last(t, 0x4305)))
	assert.Equal(t, zeros(4), aliceConn.last(t, 0x4326))
}

func TestCancelChallengeOutsideRoom(t *testing.T) {
	tw := newWorld5(t)
	h := &roomHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	_, conn := tw.join(t, 0, "alice")

	require.NoError(t, h.cancelChallenge(context.Background(), conn, frame(0x4325, nil)))
	assert.Equal(t, []uint16{0x4326}, conn.opcodes())
}
