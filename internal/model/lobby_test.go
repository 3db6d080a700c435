package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayer(t *testing.T, id int32, name string) *Player {
	t.Helper()
	return &Player{
		User:    &User{ID: id, Hash: fmt.Sprintf("hash-%d", id), Username: name},
		Profile: &Profile{ID: id, Name: name},
	}
}

func TestLobby_EnterExit(t *testing.T) {
	l := NewLobby("beginners", 30)
	p := newTestPlayer(t, 1, "kaz")

	l.Enter(p)
	assert.Equal(t, l, p.Lobby)
	assert.Same(t, p, l.Players[p.User.Hash])

	l.Exit(p)
	assert.Nil(t, p.Lobby)
	assert.Empty(t, l.Players)
}

func TestLobby_PlayerByProfileID(t *testing.T) {
	l := NewLobby("beginners", 30)
	p1 := newTestPlayer(t, 7, "kaz")
	p2 := newTestPlayer(t, 9, "miko")
	l.Enter(p1)
	l.Enter(p2)

	assert.Same(t, p2, l.PlayerByProfileID(9))
	assert.Nil(t, l.PlayerByProfileID(42))
}

func TestLobby_IsFull(t *testing.T) {
	l := NewLobby("tiny", 2)
	l.Enter(newTestPlayer(t, 1, "a"))
	assert.False(t, l.IsFull())
	l.Enter(newTestPlayer(t, 2, "b"))
	assert.True(t, l.IsFull())
}

func TestLobby_AddChat_Bounded(t *testing.T) {
	l := NewLobby("beginners", 30)
	author := &Profile{ID: 3, Name: "kaz"}

	for i := 0; i < MaxChatMessages+20; i++ {
		l.AddChat(&ChatMessage{
			From: author,
			Text: fmt.Sprintf("msg %d", i),
			When: time.Now(),
		})
	}

	require.Len(t, l.ChatHistory, MaxChatMessages)
	assert.Equal(t, "msg 20", l.ChatHistory[0].Text, "oldest messages should be dropped")
	assert.Equal(t, fmt.Sprintf("msg %d", MaxChatMessages+19),
		l.ChatHistory[len(l.ChatHistory)-1].Text)
}

func TestLobby_PurgeChat(t *testing.T) {
	l := NewLobby("beginners", 30)
	author := &Profile{ID: 3, Name: "kaz"}
	now := time.Now()

	l.AddChat(&ChatMessage{From: author, Text: "ancient", When: now.Add(-6 * 24 * time.Hour)})
	l.AddChat(&ChatMessage{From: author, Text: "old", When: now.Add(-MaxChatAge)})
	l.AddChat(&ChatMessage{From: author, Text: "recent", When: now.Add(-time.Hour)})
	l.AddChat(&ChatMessage{From: author, Text: "fresh", When: now})

	l.PurgeChat(now)

	require.Len(t, l.ChatHistory, 2)
	assert.Equal(t, "recent", l.ChatHistory[0].Text)
	assert.Equal(t, "fresh", l.ChatHistory[1].Text)
	for _, m := range l.ChatHistory {
		assert.Less(t, now.Sub(m.When), MaxChatAge)
	}
}

func TestLobby_AddRoom_OrdinalMonotonic(t *testing.T) {
	l := NewLobby("beginners", 30)

	r1 := NewRoom(l)
	r1.Name = "first"
	l.AddRoom(r1)
	r2 := NewRoom(l)
	r2.Name = "second"
	l.AddRoom(r2)

	assert.Equal(t, int32(1), r1.ID)
	assert.Equal(t, int32(2), r2.ID)

	l.DeleteRoom(r1)
	r3 := NewRoom(l)
	r3.Name = "third"
	l.AddRoom(r3)
	assert.Equal(t, int32(3), r3.ID, "ordinal should not be reused after deletion")
}

func TestLobby_RenameRoom(t *testing.T) {
	l := NewLobby("beginners", 30)
	r := NewRoom(l)
	r.Name = "old"
	l.AddRoom(r)

	l.RenameRoom(r, "new")

	assert.False(t, l.HasRoom("old"))
	assert.Same(t, r, l.Room("new"))
	assert.Equal(t, "new", r.Name)
}

func TestLobby_RoomByID(t *testing.T) {
	l := NewLobby("beginners", 30)
	r := NewRoom(l)
	r.Name = "arena"
	l.AddRoom(r)

	assert.Same(t, r, l.RoomByID(r.ID))
	assert.Nil(t, l.RoomByID(999))
}

func TestChatMessage_VisibleTo(t *testing.T) {
	from := &Profile{ID: 1, Name: "kaz"}
	to := &Profile{ID: 2, Name: "miko"}

	broadcast := &ChatMessage{From: from, Text: "hello all"}
	private := &ChatMessage{From: from, To: to, Text: "psst"}

	assert.True(t, broadcast.VisibleTo(1))
	assert.True(t, broadcast.VisibleTo(3))

	assert.True(t, private.VisibleTo(1), "sender sees own private message")
	assert.True(t, private.VisibleTo(2), "addressee sees private message")
	assert.False(t, private.VisibleTo(3), "third parties do not see private messages")
}
