package model

import (
	"log/slog"
	"time"
)

// Lobby is a server-configured player pool. Players enter a lobby
// after login and create rooms inside it.
type Lobby struct {
	Name       string
	MaxPlayers int
	TypeStr    string
	// TypeCode is a bitmask over player divisions that the game uses
	// to decide admissibility. 0x20 marks a no-stats lobby.
	TypeCode        byte
	ShowMatches     bool
	CheckRosterHash bool
	Players         map[string]*Player
	Rooms           map[string]*Room
	RoomOrdinal     int32
	ChatHistory     []*ChatMessage
}

func NewLobby(name string, maxPlayers int) *Lobby {
	return &Lobby{
		Name:            name,
		MaxPlayers:      maxPlayers,
		ShowMatches:     true,
		CheckRosterHash: true,
		Players:         make(map[string]*Player),
		Rooms:           make(map[string]*Room),
	}
}

func (l *Lobby) PlayerByProfileID(id int32) *Player {
	for _, p := range l.Players {
		if p.Profile != nil && p.Profile.ID == id {
			return p
		}
	}
	return nil
}

// AddChat appends a message to the history, keeping only the last
// MaxChatMessages entries.
func (l *Lobby) AddChat(m *ChatMessage) {
	l.ChatHistory = append(l.ChatHistory, m)
	if n := len(l.ChatHistory) - MaxChatMessages; n > 0 {
		l.ChatHistory = append(l.ChatHistory[:0], l.ChatHistory[n:]...)
	}
}

// PurgeChat drops messages older than MaxChatAge. Stale conversation
// from days ago is useless to a joining player.
func (l *Lobby) PurgeChat(now time.Time) {
	kept := l.ChatHistory[:0]
	for _, m := range l.ChatHistory {
		if now.Sub(m.When) < MaxChatAge {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(l.ChatHistory); i++ {
		l.ChatHistory[i] = nil
	}
	l.ChatHistory = kept
}

// AddRoom assigns the next room ordinal as the room id and registers
// the room under its name.
func (l *Lobby) AddRoom(r *Room) {
	l.RoomOrdinal++
	r.ID = l.RoomOrdinal
	l.Rooms[r.Name] = r
}

func (l *Lobby) RenameRoom(r *Room, newName string) {
	if _, ok := l.Rooms[r.Name]; !ok {
		slog.Warn("cannot rename room, lobby does not know it",
			"roomId", r.ID, "roomName", r.Name)
		return
	}
	oldName := r.Name
	delete(l.Rooms, r.Name)
	r.Name = newName
	l.Rooms[r.Name] = r
	slog.Info("room renamed",
		"roomId", r.ID, "oldName", oldName, "newName", r.Name)
}

func (l *Lobby) DeleteRoom(r *Room) {
	if _, ok := l.Rooms[r.Name]; !ok {
		return
	}
	delete(l.Rooms, r.Name)
	slog.Info("room destroyed", "roomId", r.ID, "roomName", r.Name)
}

func (l *Lobby) Room(name string) *Room {
	return l.Rooms[name]
}

func (l *Lobby) RoomByID(id int32) *Room {
	for _, r := range l.Rooms {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (l *Lobby) HasRoom(name string) bool {
	_, ok := l.Rooms[name]
	return ok
}

func (l *Lobby) IsFull() bool {
	return len(l.Players) >= l.MaxPlayers
}

func (l *Lobby) Enter(p *Player) {
	p.Lobby = l
	l.Players[p.User.Hash] = p
}

func (l *Lobby) Exit(p *Player) {
	delete(l.Players, p.User.Hash)
	p.Lobby = nil
}
