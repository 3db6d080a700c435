package model

import "time"

// Match states driven by the client during a PES6 match.
const (
	MatchNotStarted      int32 = 0
	MatchFirstHalf       int32 = 1
	MatchHalfTime        int32 = 2
	MatchSecondHalf      int32 = 3
	MatchBeforeExtraTime int32 = 4
	MatchETFirstHalf     int32 = 5
	MatchETBreak         int32 = 6
	MatchETSecondHalf    int32 = 7
	MatchBeforePenalties int32 = 8
	MatchPenalties       int32 = 9
	MatchFinished        int32 = 10
)

var matchStateText = map[int32]string{
	MatchNotStarted:      "Not started",
	MatchFirstHalf:       "1st half",
	MatchHalfTime:        "Half-time",
	MatchSecondHalf:      "2nd half",
	MatchBeforeExtraTime: "Normal time finished",
	MatchETFirstHalf:     "Extra-time 1st half",
	MatchETBreak:         "Extra-time intermission",
	MatchETSecondHalf:    "Extra-time 2nd half",
	MatchBeforePenalties: "Before penalties",
	MatchPenalties:       "Penalties",
	MatchFinished:        "Finished",
}

// MatchStateText returns the display name of a match state.
func MatchStateText(state int32) string {
	if s, ok := matchStateText[state]; ok {
		return s
	}
	return "Unknown"
}

// TeamSelection captures sides for a match with up to four players:
// a captain per side plus optional extra players for 2v2, 2v1 or 3v1.
type TeamSelection struct {
	HomeTeamID      int32
	AwayTeamID      int32
	HomeCaptain     *Profile
	AwayCaptain     *Profile
	HomeMorePlayers []*Profile
	AwayMorePlayers []*Profile
}

func NewTeamSelection() *TeamSelection {
	return &TeamSelection{HomeTeamID: -1, AwayTeamID: -1}
}

// HomeOrAway returns 0x00 for a home-side player, 0x01 for away and
// 0xff for a profile with no side.
func (t *TeamSelection) HomeOrAway(profileID int32) byte {
	if t.HomeCaptain != nil && t.HomeCaptain.ID == profileID {
		return 0x00
	}
	for _, p := range t.HomeMorePlayers {
		if p.ID == profileID {
			return 0x00
		}
	}
	if t.AwayCaptain != nil && t.AwayCaptain.ID == profileID {
		return 0x01
	}
	for _, p := range t.AwayMorePlayers {
		if p.ID == profileID {
			return 0x01
		}
	}
	return 0xff
}

// Match6 is a match with per-period score buckets. Goals are routed
// to the bucket matching the current state; penalty shoot-out goals
// count into the final score.
type Match6 struct {
	State int32
	Clock int32

	ScoreHome1st int32
	ScoreHome2nd int32
	ScoreHomeET1 int32
	ScoreHomeET2 int32
	ScoreHomePen int32
	ScoreAway1st int32
	ScoreAway2nd int32
	ScoreAwayET1 int32
	ScoreAwayET2 int32
	ScoreAwayPen int32

	TeamSelection *TeamSelection
	Started       time.Time
	HomeExit      int8
	AwayExit      int8
}

func NewMatch6(sel *TeamSelection) *Match6 {
	return &Match6{
		State:         MatchNotStarted,
		TeamSelection: sel,
		HomeExit:      ExitUnset,
		AwayExit:      ExitUnset,
	}
}

func (m *Match6) HomeScore() int32 {
	return m.ScoreHome1st + m.ScoreHome2nd + m.ScoreHomeET1 + m.ScoreHomeET2 + m.ScoreHomePen
}

func (m *Match6) AwayScore() int32 {
	return m.ScoreAway1st + m.ScoreAway2nd + m.ScoreAwayET1 + m.ScoreAwayET2 + m.ScoreAwayPen
}

func (m *Match6) StartedAt() time.Time { return m.Started }

func (m *Match6) GoalHome() {
	switch m.State {
	case MatchFirstHalf:
		m.ScoreHome1st++
	case MatchSecondHalf:
		m.ScoreHome2nd++
	case MatchETFirstHalf:
		m.ScoreHomeET1++
	case MatchETSecondHalf:
		m.ScoreHomeET2++
	case MatchPenalties:
		m.ScoreHomePen++
	}
}

func (m *Match6) GoalAway() {
	switch m.State {
	case MatchFirstHalf:
		m.ScoreAway1st++
	case MatchSecondHalf:
		m.ScoreAway2nd++
	case MatchETFirstHalf:
		m.ScoreAwayET1++
	case MatchETSecondHalf:
		m.ScoreAwayET2++
	case MatchPenalties:
		m.ScoreAwayPen++
	}
}
