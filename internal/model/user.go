package model

// User is a registered account. A user owns up to three profiles,
// one per profile slot shown by the game client.
type User struct {
	ID       int32
	Hash     string
	Username string
	Serial   string
	Nonce    string
	Deleted  bool
	Profiles [3]*Profile
}

// ProfileByID returns the profile with the given id and its slot
// index, or (nil, -1) when the user has no such profile.
func (u *User) ProfileByID(id int32) (*Profile, int) {
	for i, p := range u.Profiles {
		if p != nil && p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

// Locked reports whether the account is awaiting a key change
// through the registration page.
func (u *User) Locked() bool {
	return u.Nonce != ""
}

// Profile is an in-game identity with its accumulated standing.
// PlayTime is in seconds.
type Profile struct {
	ID          int32
	UserID      int32
	Index       int32
	Name        string
	FavPlayer   int32
	FavTeam     int32
	Points      int32
	Rank        int32
	Disconnects int32
	PlayTime    int32
	Rating      float64
	Comment     string
	Settings    *ProfileSettings
}

// NewProfile returns an empty profile for the given slot. ID 0
// marks a profile that has never been stored.
func NewProfile(index int32) *Profile {
	return &Profile{Index: index}
}

// ProfileSettings holds the two opaque option blobs the client
// uploads. The server never interprets their contents.
type ProfileSettings struct {
	Settings1 []byte
	Settings2 []byte
}

// SystemProfile is the pseudo-profile used as the author of
// server-generated chat messages.
var SystemProfile = &Profile{ID: 0, Name: "SYSTEM"}

// Stats is the aggregated match record of a profile.
type Stats struct {
	ProfileID     int32
	Wins          int32
	Losses        int32
	Draws         int32
	GoalsScored   int32
	GoalsAllowed  int32
	StreakCurrent int32
	StreakBest    int32
	Teams         []int32
}

func (s *Stats) Games() int32 {
	return s.Wins + s.Losses + s.Draws
}

// UserInfo is the per-username connection registry entry. It outlives
// a single connection so later service connections can be matched
// against the roster hash seen at login.
type UserInfo struct {
	GameName   string
	RosterHash string
}
