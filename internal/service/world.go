package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/crypto"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/rating"
)

// MatchData reads aggregate match results for a profile. Each game
// generation has its own match store; the world only needs counts
// and assembled stats from it.
type MatchData interface {
	Games(ctx context.Context, profileID int32) (int32, error)
	Stats(ctx context.Context, profileID int32) (*model.Stats, error)
}

// TeamHistory is implemented by match stores that record which team
// each participant picked.
type TeamHistory interface {
	LastTeamsUsed(ctx context.Context, profileID int32, n int) ([]int32, error)
}

// MatchStore is implemented by match stores that persist finished
// first-generation series results.
type MatchStore interface {
	Store(ctx context.Context, m *model.Match) (int32, error)
}

// Match6Store is the second-generation counterpart of MatchStore.
type Match6Store interface {
	Store(ctx context.Context, m *model.Match6) (int32, error)
}

// Recorder counts store-path events for the metrics endpoint.
type Recorder interface {
	MatchStored(game string)
	StoreLatency(d time.Duration)
}

// UserStore is the account persistence the world needs.
type UserStore interface {
	FindByHash(ctx context.Context, hash string) (*model.User, error)
	FindByNonce(ctx context.Context, nonce string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Store(ctx context.Context, u *model.User) error
}

// ProfileStore is the profile persistence the world needs.
type ProfileStore interface {
	Get(ctx context.Context, id int32) (*model.Profile, error)
	GetByUserID(ctx context.Context, userID int32) ([]*model.Profile, error)
	FindByName(ctx context.Context, name string) (*model.Profile, error)
	Store(ctx context.Context, p *model.Profile) error
	Delete(ctx context.Context, id int32) error
	Settings(ctx context.Context, profileID int32) (*model.ProfileSettings, error)
	StoreSettings(ctx context.Context, profileID int32, s *model.ProfileSettings) error
}

// lastTeams is how many recent team picks go into a stats payload.
const lastTeams = 5

// World is the shared state of one server process: the online-player
// registry, the lobbies with their rooms and chat, and the mutable
// runtime settings the admin service can flip.
//
// Game handlers ran strictly one at a time in the era this protocol
// comes from, and the room and lobby bookkeeping depends on that
// ordering. The embedded mutex preserves it: the frame dispatcher
// holds the lock for the whole of every handler, so World methods and
// all model state reached through them require the caller to hold it.
// Periodic tasks and admin endpoints that touch world state take the
// same lock.
type World struct {
	sync.Mutex

	cfg      *config.Config
	users    UserStore
	profiles ProfileStore
	matches  MatchData
	auth     *crypto.AuthCipher
	rating   rating.Math
	banned   *config.BannedList
	recorder Recorder

	online   map[string]*model.Player   // by user hash
	userInfo map[string]*model.UserInfo // by username
	lobbies  []*model.Lobby

	maxUsers      int
	debug         bool
	logLevel      *slog.LevelVar
	showStats     bool
	storeSettings bool
	roster        config.Roster

	serverIP  string
	startedAt time.Time
}

// NewWorld builds the world from the process configuration. Lobbies
// are created eagerly so their ordering matches the config file.
func NewWorld(cfg *config.Config, users UserStore, profiles ProfileStore,
	matches MatchData, auth *crypto.AuthCipher, banned *config.BannedList) *World {

	w := &World{
		cfg:           cfg,
		users:         users,
		profiles:      profiles,
		matches:       matches,
		auth:          auth,
		rating:        rating.Default(),
		banned:        banned,
		online:        make(map[string]*model.Player),
		userInfo:      make(map[string]*model.UserInfo),
		maxUsers:      cfg.MaxUsers,
		debug:         cfg.Debug,
		showStats:     cfg.ShowStats,
		storeSettings: cfg.StoreSettings,
		roster:        cfg.Roster,
		serverIP:      cfg.ServerIP,
		startedAt:     time.Now(),
	}
	for _, def := range cfg.Lobbies {
		lobby := model.NewLobby(def.Name, config.LobbyMaxPlayers)
		lobby.TypeStr = def.Type.Name
		lobby.TypeCode = def.Type.Code
		lobby.ShowMatches = def.ShowMatches
		lobby.CheckRosterHash = def.CheckRosterHash
		w.lobbies = append(w.lobbies, lobby)
	}
	return w
}

// Config returns the process configuration the world was built from.
func (w *World) Config() *config.Config { return w.cfg }

// Banned returns the banned-IP list. The list carries its own lock.
func (w *World) Banned() *config.BannedList { return w.banned }

// Rating returns the rating math used for points updates.
func (w *World) Rating() rating.Math { return w.rating }

// Cipher returns the auth payload cipher.
func (w *World) Cipher() *crypto.AuthCipher { return w.auth }

// Lobbies returns the lobby list in config order.
func (w *World) Lobbies() []*model.Lobby { return w.lobbies }

// Lobby returns the lobby at the given index, or nil.
func (w *World) Lobby(i int) *model.Lobby {
	if i < 0 || i >= len(w.lobbies) {
		return nil
	}
	return w.lobbies[i]
}

// UserOnline registers the player as online.
func (w *World) UserOnline(p *model.Player) {
	w.online[p.User.Hash] = p
	slog.Info("user online",
		"username", p.User.Username, "online", len(w.online))
}

// UserOffline removes the player from the online registry. Calling it
// for a player that already went offline is a no-op, so every
// disconnect path can call it safely. The registry entry is only
// removed when it still points at this player: the disconnect of a
// rejected duplicate login must not knock out the session that holds
// the slot.
func (w *World) UserOffline(p *model.Player) {
	if cur, ok := w.online[p.User.Hash]; !ok || cur != p {
		return
	}
	delete(w.online, p.User.Hash)
	slog.Info("user offline",
		"username", p.User.Username, "online", len(w.online))
}

// OnlinePlayer returns the online player with the given user hash.
func (w *World) OnlinePlayer(hash string) *model.Player {
	return w.online[hash]
}

// IsUserOnline reports whether the user with the given hash is online.
func (w *World) IsUserOnline(hash string) bool {
	_, ok := w.online[hash]
	return ok
}

// NumUsersOnline returns the online user count.
func (w *World) NumUsersOnline() int { return len(w.online) }

// OnlinePlayers returns a snapshot of all online players.
func (w *World) OnlinePlayers() []*model.Player {
	players := make([]*model.Player, 0, len(w.online))
	for _, p := range w.online {
		players = append(players, p)
	}
	return players
}

// AtCapacity reports whether the server already holds as many users
// as it is allowed to.
func (w *World) AtCapacity() bool {
	return w.maxUsers <= len(w.online)
}

// SetUserInfo records the game build and roster hash a user logged in
// with. Keyed by username so re-logins overwrite.
func (w *World) SetUserInfo(username string, info *model.UserInfo) {
	w.userInfo[username] = info
}

// UserInfo returns the recorded game build and roster hash for a
// username, or nil.
func (w *World) UserInfo(username string) *model.UserInfo {
	return w.userInfo[username]
}

// SameGame reports whether two players logged in from the same game
// build. Players without recorded info only match themselves.
func (w *World) SameGame(a, b *model.Player) bool {
	if a.GameVersion != b.GameVersion {
		return false
	}
	ia := w.userInfo[a.User.Username]
	ib := w.userInfo[b.User.Username]
	if ia == nil || ib == nil {
		return ia == ib
	}
	return ia.GameName == ib.GameName
}

// GetUser loads the account with the given stored key hash and its
// three profile slots. Slots without a stored profile get an empty
// placeholder so slot indexing is always valid.
func (w *World) GetUser(ctx context.Context, hash string) (*model.User, error) {
	u, err := w.users.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.ErrUnknownUser
	}
	profiles, err := w.profiles.GetByUserID(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	for i := range u.Profiles {
		u.Profiles[i] = model.NewProfile(int32(i))
		u.Profiles[i].UserID = u.ID
	}
	for _, p := range profiles {
		if p.Index >= 0 && int(p.Index) < len(u.Profiles) {
			u.Profiles[p.Index] = p
		}
	}
	return u, nil
}

// StoreProfile persists a profile and returns it re-read from the
// store, so the caller sees the assigned id and computed columns.
func (w *World) StoreProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	if err := w.profiles.Store(ctx, p); err != nil {
		return nil, err
	}
	stored, err := w.profiles.FindByName(ctx, p.Name)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("profile %q gone right after store", p.Name)
	}
	return stored, nil
}

// ProfileNameExists reports whether any account owns a profile with
// the given name.
func (w *World) ProfileNameExists(ctx context.Context, name string) (bool, error) {
	p, err := w.profiles.FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// PlayerProfile returns the profile with the given id, or nil.
func (w *World) PlayerProfile(ctx context.Context, id int32) (*model.Profile, error) {
	return w.profiles.Get(ctx, id)
}

// DeleteProfile removes a stored profile.
func (w *World) DeleteProfile(ctx context.Context, id int32) error {
	return w.profiles.Delete(ctx, id)
}

// ProfileSettings returns the stored option blobs of a profile, or
// nil when none were saved.
func (w *World) ProfileSettings(ctx context.Context, profileID int32) (*model.ProfileSettings, error) {
	return w.profiles.Settings(ctx, profileID)
}

// StoreProfileSettings persists the option blobs of a profile.
func (w *World) StoreProfileSettings(ctx context.Context, profileID int32, s *model.ProfileSettings) error {
	return w.profiles.StoreSettings(ctx, profileID, s)
}

// Stats assembles the match record of a profile. With stats display
// disabled the record comes back all zeros, which the payload
// builders render as a pristine player.
func (w *World) Stats(ctx context.Context, profileID int32) (*model.Stats, error) {
	if !w.showStats {
		return &model.Stats{ProfileID: profileID}, nil
	}
	s, err := w.matches.Stats(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if th, ok := w.matches.(TeamHistory); ok {
		if s.Teams, err = th.LastTeamsUsed(ctx, profileID, lastTeams); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Games returns how many matches a profile finished.
func (w *World) Games(ctx context.Context, profileID int32) (int32, error) {
	if !w.showStats {
		return 0, nil
	}
	return w.matches.Games(ctx, profileID)
}

// SetRecorder installs the metrics recorder for the store path.
func (w *World) SetRecorder(r Recorder) { w.recorder = r }

// StoreMatch records a finished first-generation match.
func (w *World) StoreMatch(ctx context.Context, m *model.Match) error {
	s, ok := w.matches.(MatchStore)
	if !ok {
		return fmt.Errorf("match store cannot record this game generation")
	}
	start := time.Now()
	if _, err := s.Store(ctx, m); err != nil {
		return err
	}
	if w.recorder != nil {
		w.recorder.MatchStored("five")
		w.recorder.StoreLatency(time.Since(start))
	}
	return nil
}

// StoreMatch6 records a finished second-generation match.
func (w *World) StoreMatch6(ctx context.Context, m *model.Match6) error {
	s, ok := w.matches.(Match6Store)
	if !ok {
		return fmt.Errorf("match store cannot record this game generation")
	}
	start := time.Now()
	if _, err := s.Store(ctx, m); err != nil {
		return err
	}
	if w.recorder != nil {
		w.recorder.MatchStored("six")
		w.recorder.StoreLatency(time.Since(start))
	}
	return nil
}

// CreateUser registers a new account, or rekeys an existing one when
// nonce names a pending account-recovery lock. The posted hash is the
// game's MD5 of the user key; only its cipher-derived form is stored.
func (w *World) CreateUser(ctx context.Context, username, serial, postedHash, nonce string) error {
	hash, err := w.deriveHash(postedHash)
	if err != nil {
		return err
	}
	if nonce == "" {
		existing, err := w.users.FindByHash(ctx, hash)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("user with the same key already registered: %s", existing.Username)
		}
		return w.users.Store(ctx, &model.User{
			Username: username,
			Serial:   serial,
			Hash:     hash,
		})
	}
	u, err := w.users.FindByNonce(ctx, nonce)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("no user awaits modification under this nonce")
	}
	u.Hash = hash
	u.Serial = serial
	u.Nonce = ""
	return w.users.Store(ctx, u)
}

// deriveHash turns the hex hash a client posted into the stored form.
func (w *World) deriveHash(postedHash string) (string, error) {
	raw, err := decodeHexHash(postedHash)
	if err != nil {
		return "", err
	}
	return w.auth.UserKey(raw)
}

// LockUser puts a one-time recovery nonce on the account so its owner
// can re-register the key via the web form. Returns the nonce.
func (w *World) LockUser(ctx context.Context, username string) (string, error) {
	u, err := w.users.FindByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", fmt.Errorf("unknown user: %s", username)
	}
	var nonce string
	for i := 0; i < 4; i++ {
		nonce += strconv.Itoa(rand.Intn(9000) + 1000)
	}
	u.Nonce = nonce
	if err := w.users.Store(ctx, u); err != nil {
		return "", err
	}
	return nonce, nil
}

// UsernameExists reports whether an account with the given username
// is registered.
func (w *World) UsernameExists(ctx context.Context, username string) (bool, error) {
	u, err := w.users.FindByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// UserByNonce returns the account locked under the given recovery
// nonce, or nil when no account awaits modification.
func (w *World) UserByNonce(ctx context.Context, nonce string) (*model.User, error) {
	return w.users.FindByNonce(ctx, nonce)
}

// MaxUsers returns the current user cap.
func (w *World) MaxUsers() int { return w.maxUsers }

// SetMaxUsers changes the user cap at runtime.
func (w *World) SetMaxUsers(n int) { w.maxUsers = n }

// Debug reports whether debug output is on.
func (w *World) Debug() bool { return w.debug }

// SetDebug flips debug output at runtime. When a log-level var has
// been attached the slog threshold follows the flag.
func (w *World) SetDebug(on bool) {
	w.debug = on
	if w.logLevel != nil {
		if on {
			w.logLevel.Set(slog.LevelDebug)
		} else {
			w.logLevel.Set(slog.LevelInfo)
		}
	}
}

// SetLogLevelVar attaches the process log-level var so debug toggles
// take effect on the slog handler.
func (w *World) SetLogLevelVar(v *slog.LevelVar) { w.logLevel = v }

// ShowStats reports whether match stats are computed and shown.
func (w *World) ShowStats() bool { return w.showStats }

// SetShowStats flips stats display at runtime.
func (w *World) SetShowStats(on bool) { w.showStats = on }

// StoreSettings reports whether profile option blobs are persisted.
func (w *World) StoreSettings() bool { return w.storeSettings }

// SetStoreSettings flips option-blob persistence at runtime.
func (w *World) SetStoreSettings(on bool) { w.storeSettings = on }

// RosterChecks returns the current roster-hash policy.
func (w *World) RosterChecks() config.Roster { return w.roster }

// SetRosterChecks changes the roster-hash policy at runtime.
func (w *World) SetRosterChecks(r config.Roster) { w.roster = r }

// ServerIP returns the address games are told to connect to.
func (w *World) ServerIP() string { return w.serverIP }

// SetServerIP records the detected or configured public address.
func (w *World) SetServerIP(ip string) { w.serverIP = ip }

// StartedAt returns when this server instance came up.
func (w *World) StartedAt() time.Time { return w.startedAt }

// SetStartedAt overrides the instance start time. The address probe
// uses it so uptime counts from when the server became reachable.
func (w *World) SetStartedAt(t time.Time) { w.startedAt = t }

// Uptime returns how long the server has been up.
func (w *World) Uptime(now time.Time) time.Duration {
	return now.Sub(w.startedAt)
}

// decodeHexHash decodes the 32-character hex hash games and the
// registration form produce.
func decodeHexHash(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed key hash: %w", err)
	}
	if len(raw) != 16 {
		return nil, fmt.Errorf("key hash is %d bytes, want 16", len(raw))
	}
	return raw, nil
}
