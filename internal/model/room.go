package model

import (
	"log/slog"
	"time"
)

// Room phases, as reported in room-info frames and shown by clients.
const (
	RoomIdle            int32 = 1
	RoomSideSelect      int32 = 2
	RoomSettingsSelect  int32 = 3
	RoomTeamSelect      int32 = 4
	RoomStripSelect     int32 = 5
	RoomFormationSelect int32 = 6
	RoomMatchStarted    int32 = 7
	RoomMatchFinished   int32 = 8
	RoomSeriesEnding    int32 = 10
)

var roomPhaseText = map[int32]string{
	RoomIdle:            "Room idle",
	RoomSideSelect:      "Sides selection",
	RoomSettingsSelect:  "Match settings",
	RoomTeamSelect:      "Team selection",
	RoomStripSelect:     "Strip/kit selection",
	RoomFormationSelect: "Formation settings",
	RoomMatchStarted:    "Match started",
	RoomMatchFinished:   "Match finished",
	RoomSeriesEnding:    "Match series ended",
}

// RoomPhaseText returns the display name of a room phase.
func RoomPhaseText(phase int32) string {
	if s, ok := roomPhaseText[phase]; ok {
		return s
	}
	return "Unknown"
}

// ForcedCancelWindow is how long a forced participation cancel keeps
// the evicted player from re-joining the participants.
const ForcedCancelWindow = 10 * time.Second

// NotParticipating is the participation slot byte for a player who is
// not on the participants list.
const NotParticipating byte = 0xff

// MaxParticipants is the number of players a match can seat.
const MaxParticipants = 4

// Room is a game room inside a lobby. The first entrant owns it; the
// room is destroyed when the last player leaves.
type Room struct {
	ID          int32
	Name        string
	MatchTime   int32
	Settings    *MatchSettings
	UsePassword bool
	Password    string
	Players     []*Player
	ReadyCount  int32
	Owner       *Player
	Match       ActiveMatch
	// MatchStarter is the player whose startMatch request created the
	// current participant line-up.
	MatchStarter  *Player
	TeamSelection *TeamSelection
	Lobby         *Lobby

	ParticipatingPlayers []*Player
	Phase                int32
}

func NewRoom(lobby *Lobby) *Room {
	return &Room{
		Name:      "unnamed",
		MatchTime: 5,
		Phase:     RoomIdle,
		Lobby:     lobby,
	}
}

// Enter adds the player to the room. The first entrant becomes the
// owner.
func (r *Room) Enter(p *Player) {
	p.Room = r
	p.Spectator = false
	p.CancelledParticipationAt = time.Time{}
	if len(r.Players) == 0 {
		r.Owner = p
	}
	r.Players = append(r.Players, p)
}

// Exit removes the player. When the owner leaves, ownership passes to
// the first remaining player.
func (r *Room) Exit(p *Player) {
	p.Room = nil
	p.NoLobbyChat = 0
	i := r.PlayerPosition(p)
	if i < 0 {
		slog.Warn("player exiting, but was not in the room",
			"profile", p.Profile.Name)
		return
	}
	exiting := r.Players[i]
	r.Players = append(r.Players[:i], r.Players[i+1:]...)
	if r.IsOwner(exiting) && len(r.Players) > 0 {
		r.SetOwner(r.Players[0])
	}
}

func (r *Room) PlayerPosition(p *Player) int {
	for i, member := range r.Players {
		if member == p {
			return i
		}
	}
	return -1
}

// PlayerParticipate returns the player's slot on the participants
// list, or NotParticipating.
func (r *Room) PlayerParticipate(p *Player) byte {
	for i, member := range r.ParticipatingPlayers {
		if member == p {
			return byte(i)
		}
	}
	return NotParticipating
}

// Participate puts the player on the participants list and returns
// the assigned slot. Re-participating returns the existing slot; a
// full list refuses with NotParticipating.
func (r *Room) Participate(p *Player) byte {
	for i, member := range r.ParticipatingPlayers {
		if member == p {
			return byte(i)
		}
	}
	if len(r.ParticipatingPlayers) >= MaxParticipants {
		return NotParticipating
	}
	r.ParticipatingPlayers = append(r.ParticipatingPlayers, p)
	return byte(len(r.ParticipatingPlayers) - 1)
}

// CancelParticipation takes the player off the participants list.
func (r *Room) CancelParticipation(p *Player) byte {
	for i, member := range r.ParticipatingPlayers {
		if member == p {
			r.ParticipatingPlayers = append(
				r.ParticipatingPlayers[:i], r.ParticipatingPlayers[i+1:]...)
			return NotParticipating
		}
	}
	slog.Warn("player is cancelling participation, but was not among participants",
		"profile", p.Profile.Name)
	return NotParticipating
}

// ForcedCancelActive reports whether the player is still inside the
// window after a forced participation cancel. An expired window is
// cleared as a side effect.
func (r *Room) ForcedCancelActive(p *Player, now time.Time) bool {
	if p.CancelledParticipationAt.IsZero() {
		return false
	}
	if now.Sub(p.CancelledParticipationAt) > ForcedCancelWindow {
		p.CancelledParticipationAt = time.Time{}
		return false
	}
	return true
}

func (r *Room) SetOwner(p *Player) {
	r.Owner = p
}

func (r *Room) IsOwner(p *Player) bool {
	if r.Owner == nil {
		return false
	}
	return r.Owner.Profile.Name == p.Profile.Name
}

func (r *Room) SetMatchStarter(p *Player) {
	r.MatchStarter = p
}

func (r *Room) IsMatchStarter(p *Player) bool {
	if r.MatchStarter == nil {
		return false
	}
	return r.MatchStarter.Profile.Name == p.Profile.Name
}

func (r *Room) IsEmpty() bool {
	return len(r.Players) == 0
}

// AtPregameSettings reports whether the room is between side select
// and formation select.
func (r *Room) AtPregameSettings() bool {
	return RoomIdle < r.Phase && r.Phase < RoomMatchStarted
}

// MatchSettings carries the raw one-byte option fields the room host
// picked. The server stores them only to echo them in room info.
type MatchSettings struct {
	MatchTime          byte
	TimeLimit          byte
	NumberOfPauses     byte
	ChatDuringGameplay byte
	Condition          byte
	Injuries           byte
	MaxSubstitutions   byte
	MatchTypeEx        byte
	MatchTypePK        byte
	Time               byte
	Season             byte
	Weather            byte
}

// NewMatchSettings decodes the settings payload. Returns nil when the
// payload is too short to carry all fields.
func NewMatchSettings(data []byte) *MatchSettings {
	if len(data) < 12 {
		return nil
	}
	return &MatchSettings{
		MatchTime:          data[0],
		TimeLimit:          data[1],
		NumberOfPauses:     data[2],
		ChatDuringGameplay: data[3],
		Condition:          data[4],
		Injuries:           data[5],
		MaxSubstitutions:   data[6],
		MatchTypeEx:        data[7],
		MatchTypePK:        data[8],
		Time:               data[9],
		Season:             data[10],
		Weather:            data[11],
	}
}
