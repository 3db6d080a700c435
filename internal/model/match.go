package model

import "time"

// Exit flag values recorded when a client leaves a match series.
const ExitUnset int8 = -1

// ActiveMatch is the match attached to a room. The two game dialects
// track matches differently, so handlers work with the concrete type
// and shared consumers go through this interface.
type ActiveMatch interface {
	HomeScore() int32
	AwayScore() int32
	StartedAt() time.Time
}

// Match is a one-versus-one match with flat score counters.
type Match struct {
	HomeProfile *Profile
	AwayProfile *Profile
	HomeTeamID  int32
	AwayTeamID  int32
	ScoreHome   int32
	ScoreAway   int32
	Started     time.Time
	HomeExit    int8
	AwayExit    int8
}

// NewMatch creates a match, carrying over sides and team picks from
// the previous match of the series when one is given.
func NewMatch(prev *Match) *Match {
	m := &Match{
		HomeTeamID: -1,
		AwayTeamID: -1,
		HomeExit:   ExitUnset,
		AwayExit:   ExitUnset,
	}
	if prev != nil {
		m.HomeProfile = prev.HomeProfile
		m.AwayProfile = prev.AwayProfile
		m.HomeTeamID = prev.HomeTeamID
		m.AwayTeamID = prev.AwayTeamID
	}
	return m
}

func (m *Match) HomeScore() int32     { return m.ScoreHome }
func (m *Match) AwayScore() int32     { return m.ScoreAway }
func (m *Match) StartedAt() time.Time { return m.Started }
