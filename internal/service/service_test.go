package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/crypto"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

type sentFrame struct {
	opcode uint16
	body   []byte
}

// fakeConn records outgoing frames. It doubles as the player's
// transport, so lobby and room fan-outs land here too.
type fakeConn struct {
	sent   []sentFrame
	player *model.Player
	ip     string
	port   int
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{ip: "203.0.113.7", port: 10700}
}

func (c *fakeConn) Send(opcode uint16, body []byte) {
	c.sent = append(c.sent, sentFrame{opcode: opcode, body: bytes.Clone(body)})
}

func (c *fakeConn) Close()                    { c.closed = true }
func (c *fakeConn) Player() *model.Player     { return c.player }
func (c *fakeConn) SetPlayer(p *model.Player) { c.player = p }
func (c *fakeConn) IP() string                { return c.ip }
func (c *fakeConn) LocalPort() int            { return c.port }

func (c *fakeConn) reset() { c.sent = nil }

// opcodes lists what was sent so far, in order.
func (c *fakeConn) opcodes() []uint16 {
	ops := make([]uint16, len(c.sent))
	for i, f := range c.sent {
		ops[i] = f.opcode
	}
	return ops
}

// last returns the body of the most recent frame with the opcode,
// failing the test when none was sent.
func (c *fakeConn) last(t *testing.T, opcode uint16) []byte {
	t.Helper()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].opcode == opcode {
			return c.sent[i].body
		}
	}
	t.Fatalf("no frame with opcode 0x%04x was sent", opcode)
	return nil
}

func (c *fakeConn) count(opcode uint16) int {
	n := 0
	for _, f := range c.sent {
		if f.opcode == opcode {
			n++
		}
	}
	return n
}

type memUserStore struct {
	nextID int32
	users  []*model.User
}

func (s *memUserStore) FindByHash(_ context.Context, hash string) (*model.User, error) {
	for _, u := range s.users {
		if u.Hash == hash {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) FindByNonce(_ context.Context, nonce string) (*model.User, error) {
	if nonce == "" {
		return nil, nil
	}
	for _, u := range s.users {
		if u.Nonce == nonce {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) Store(_ context.Context, u *model.User) error {
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	}
	for i, old := range s.users {
		if old.ID == u.ID {
			s.users[i] = u
			return nil
		}
	}
	s.users = append(s.users, u)
	return nil
}

type memProfileStore struct {
	nextID   int32
	profiles map[int32]*model.Profile
	settings map[int32]*model.ProfileSettings
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{
		profiles: make(map[int32]*model.Profile),
		settings: make(map[int32]*model.ProfileSettings),
	}
}

func (s *memProfileStore) Get(_ context.Context, id int32) (*model.Profile, error) {
	return s.profiles[id], nil
}

func (s *memProfileStore) GetByUserID(_ context.Context, userID int32) ([]*model.Profile, error) {
	var out []*model.Profile
	for _, p := range s.profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memProfileStore) FindByName(_ context.Context, name string) (*model.Profile, error) {
	for _, p := range s.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (s *memProfileStore) Store(_ context.Context, p *model.Profile) error {
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *memProfileStore) Delete(_ context.Context, id int32) error {
	delete(s.profiles, id)
	return nil
}

func (s *memProfileStore) Settings(_ context.Context, profileID int32) (*model.ProfileSettings, error) {
	return s.settings[profileID], nil
}

func (s *memProfileStore) StoreSettings(_ context.Context, profileID int32, set *model.ProfileSettings) error {
	s.settings[profileID] = set
	return nil
}

type memMatchData struct {
	stats map[int32]*model.Stats
	games map[int32]int32
	teams map[int32][]int32
}

func newMemMatchData() *memMatchData {
	return &memMatchData{
		stats: make(map[int32]*model.Stats),
		games: make(map[int32]int32),
		teams: make(map[int32][]int32),
	}
}

func (s *memMatchData) Games(_ context.Context, profileID int32) (int32, error) {
	return s.games[profileID], nil
}

func (s *memMatchData) Stats(_ context.Context, profileID int32) (*model.Stats, error) {
	if st, ok := s.stats[profileID]; ok {
		return st, nil
	}
	return &model.Stats{ProfileID: profileID}, nil
}

func (s *memMatchData) LastTeamsUsed(_ context.Context, profileID int32, _ int) ([]int32, error) {
	return s.teams[profileID], nil
}

type memMatchStore struct {
	*memMatchData
	matches []*model.Match
}

func (s *memMatchStore) Store(_ context.Context, m *model.Match) (int32, error) {
	s.matches = append(s.matches, m)
	return int32(len(s.matches)), nil
}

type memMatch6Store struct {
	*memMatchData
	matches []*model.Match6
}

func (s *memMatch6Store) Store(_ context.Context, m *model.Match6) (int32, error) {
	s.matches = append(s.matches, m)
	return int32(len(s.matches)), nil
}

// testWorld bundles a world with its in-memory stores so tests can
// reach both the handlers' view and the persisted side.
type testWorld struct {
	*World
	users    *memUserStore
	profiles *memProfileStore
	data     *memMatchData
	match5   *memMatchStore
	match6   *memMatch6Store
}

func testConfig() *config.Config {
	return &config.Config{
		MaxUsers:   50,
		ShowStats:  true,
		ServerIP:   "192.0.2.10",
		ServerName: "testserver",
		GamePorts:  map[string]int{"pes5": 10740, "pes6": 10741},
		NetworkServer: config.NetworkServer{
			MainService:        10700,
			NetworkMenuService: 10703,
			LoginService:       map[string]int{"pes5": 10710, "pes6": 10720},
		},
		Lobbies: []config.LobbyDef{
			{
				Name:            "main lobby",
				Type:            config.LobbyType{Code: config.LobbyTypeOpen, Name: "open"},
				ShowMatches:     true,
				CheckRosterHash: true,
			},
			{
				Name:            "practice",
				Type:            config.LobbyType{Code: config.LobbyTypeNoStats, Name: "noStats"},
				ShowMatches:     true,
				CheckRosterHash: true,
			},
		},
		BannedWords: []string{"garbage"},
		CountAsLoss: config.CountAsLoss{
			Enabled: true,
			Score:   config.CountAsLossScore{Player: 0, Opponent: 3},
		},
	}
}

func newWorld(t *testing.T, cfg *config.Config, matches MatchData) *testWorld {
	t.Helper()
	tw := &testWorld{
		users:    &memUserStore{},
		profiles: newMemProfileStore(),
	}
	cipher, err := crypto.NewAuthCipher(crypto.DefaultAuthKey)
	require.NoError(t, err)
	tw.World = NewWorld(cfg, tw.users, tw.profiles, matches, cipher, &config.BannedList{})
	return tw
}

func newWorld5(t *testing.T) *testWorld {
	t.Helper()
	data := newMemMatchData()
	match := &memMatchStore{memMatchData: data}
	tw := newWorld(t, testConfig(), match)
	tw.data = data
	tw.match5 = match
	return tw
}

func newWorld6(t *testing.T) *testWorld {
	t.Helper()
	data := newMemMatchData()
	match := &memMatch6Store{memMatchData: data}
	tw := newWorld(t, testConfig(), match)
	tw.data = data
	tw.match6 = match
	return tw
}

// join creates an online player with a stored profile and puts it in
// the lobby at the given index.
func (tw *testWorld) join(t *testing.T, lobbyIdx int, name string) (*model.Player, *fakeConn) {
	t.Helper()
	ctx := context.Background()
	profile, err := tw.StoreProfile(ctx, &model.Profile{Name: name})
	require.NoError(t, err)
	u := &model.User{Username: name, Hash: "hash-" + name, Serial: "serial-" + name}
	require.NoError(t, tw.users.Store(ctx, u))
	profile.UserID = u.ID
	conn := newFakeConn()
	p := &model.Player{User: u, Profile: profile, Conn: conn, Addr: conn.ip}
	conn.player = p
	tw.UserOnline(p)
	p.LobbyID = lobbyIdx
	tw.Lobby(lobbyIdx).Enter(p)
	return p, conn
}

// addRoom creates a room in the lobby and walks the players in, in
// order, so the first one becomes the owner.
func (tw *testWorld) addRoom(lobbyIdx int, name string, players ...*model.Player) *model.Room {
	lobby := tw.Lobby(lobbyIdx)
	room := model.NewRoom(lobby)
	room.Name = name
	for _, p := range players {
		room.Enter(p)
	}
	lobby.AddRoom(room)
	return room
}

func frame(opcode uint16, body []byte) protocol.Frame {
	return protocol.New(opcode, 1, body)
}
