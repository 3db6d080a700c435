package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

func TestGetNews(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()

	require.NoError(t, h.getNews(context.Background(), conn, frame(0x2008, nil)))

	assert.Equal(t, []uint16{0x2009, 0x200a, 0x200b}, conn.opcodes())
	body := conn.last(t, 0x200a)
	assert.Equal(t, zeros(4), body[0:4])
	assert.Equal(t, []byte{1, 1}, body[4:6])
	assert.Equal(t, "SYSTEM: testserver v"+config.Version, protocol.StripZeros(body[25:89]))
	assert.Contains(t, protocol.StripZeros(body[89:]), "Welcome to testserver")
	assert.Contains(t, protocol.StripZeros(body[89:]), "PES5/WE9/WE9LE")
}

func TestGetNewsSixAnnouncesFeatures(t *testing.T) {
	tw := newWorld6(t)
	h := &newsHandlers{world: tw.World, wire: newSixWire(tw.World)}
	conn := newFakeConn()

	require.NoError(t, h.getNews(context.Background(), conn, frame(0x2008, nil)))

	_, _, announced := newSixWire(tw.World).newFeatures(config.Version)
	want := 1
	if announced {
		want = 2
	}
	assert.Equal(t, want, conn.count(0x200a))
	assert.Contains(t, protocol.StripZeros(conn.sent[1].body[89:]), "PES6/WE2007")
}

func TestGetNewsBannedAddress(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()
	tw.Banned().Add(conn.ip)

	require.NoError(t, h.getNews(context.Background(), conn, frame(0x2008, nil)))

	body := conn.last(t, 0x200a)
	require.Len(t, body, 89+512)
	assert.Contains(t, protocol.StripZeros(body[25:89]), "testserver")
	assert.Contains(t, string(body[89:]), "currently banned")
}

func TestGetNewsAtCapacity(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()
	tw.SetMaxUsers(0)

	require.NoError(t, h.getNews(context.Background(), conn, frame(0x2008, nil)))

	body := conn.last(t, 0x200a)
	require.Len(t, body, 89+512)
	assert.Contains(t, string(body[89:]), "at capacity")
}

func TestGetServerListFive(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()
	conn.port = 10740 // pes5 news port

	require.NoError(t, h.getServerList(context.Background(), conn, frame(0x2001, nil)))

	assert.Equal(t, []uint16{0x2002, 0x2003, 0x2004}, conn.opcodes())
	body := conn.last(t, 0x2003)
	require.Len(t, body, 3*61)

	type entry struct {
		tag   int32
		name  string
		ip    string
		port  uint16
		users uint16
	}
	read := func(b []byte) entry {
		return entry{
			tag:   protocol.Int32(b[4:8]),
			name:  protocol.StripZeros(b[8:40]),
			ip:    protocol.StripZeros(b[40:55]),
			port:  protocol.Uint16(b[55:57]),
			users: protocol.Uint16(b[57:59]),
		}
	}
	main := read(body[0:61])
	menu := read(body[61:122])
	login := read(body[122:183])

	assert.Equal(t, entry{tag: 2, name: "testserver", ip: "192.0.2.10", port: 10700}, main)
	assert.Equal(t, entry{tag: 3, name: "NETWORK_MENU", ip: "192.0.2.10", port: 10703}, menu)
	assert.Equal(t, entry{tag: 1, name: "LOGIN", ip: "192.0.2.10", port: 10710}, login)
	for _, b := range [][]byte{body[0:61], body[61:122], body[122:183]} {
		assert.Equal(t, int32(-1), protocol.Int32(b[0:4]))
	}
}

func TestGetServerListSix(t *testing.T) {
	tw := newWorld6(t)
	h := &newsHandlers{world: tw.World, wire: newSixWire(tw.World)}
	conn := newFakeConn()
	conn.port = 10741 // pes6 news port

	require.NoError(t, h.getServerList(context.Background(), conn, frame(0x2001, nil)))

	body := conn.last(t, 0x2003)
	require.Len(t, body, 3*61)
	assert.Equal(t, int32(2), protocol.Int32(body[4:8]))
	assert.Equal(t, "LOGIN", protocol.StripZeros(body[8:40]))
	assert.Equal(t, uint16(10720), protocol.Uint16(body[55:57]))
	assert.Equal(t, int32(3), protocol.Int32(body[65:69]))
	assert.Equal(t, "testserver", protocol.StripZeros(body[69:101]))
	assert.Equal(t, int32(8), protocol.Int32(body[126:130]))
}

func TestGetServerListUnmappedPort(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()
	conn.port = 9999

	require.NoError(t, h.getServerList(context.Background(), conn, frame(0x2001, nil)))
	assert.Empty(t, conn.opcodes())
}

func TestGetTime(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()

	before := time.Now().Unix()
	require.NoError(t, h.getTime(context.Background(), conn, frame(0x2006, nil)))
	after := time.Now().Unix()

	body := conn.last(t, 0x2007)
	require.Len(t, body, 4)
	got := int64(protocol.Uint32(body))
	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestGetWebServerList(t *testing.T) {
	tw := newWorld5(t)
	h := &newsHandlers{world: tw.World, wire: newFiveWire(tw.World)}
	conn := newFakeConn()

	require.NoError(t, h.getWebServerList(context.Background(), conn, frame(0x2200, nil)))
	assert.Equal(t, []uint16{0x2201, 0x2203}, conn.opcodes())
}

func TestNewsPayloadDateField(t *testing.T) {
	body := newsPayload("title", "text", false)
	stamp := protocol.StripZeros(body[6:25])
	parsed, err := time.Parse("2006-01-02 15:04:05", stamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, time.Minute)
	assert.True(t, strings.HasSuffix(string(body), "text"))
}
