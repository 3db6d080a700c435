package admin

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/rating"
)

const browsePageSize = 30

func intQuery(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return v
}

// modifyUserURI builds the account-recovery link on the registration
// service, reachable by the user the nonce was issued for.
func (s *Service) modifyUserURI(c echo.Context, nonce string) string {
	host := c.Request().Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return fmt.Sprintf("http://%s:%d/modifyUser/%s",
		host, s.world.Config().Web.Port, nonce)
}

func (s *Service) handleIndex(c echo.Context) error {
	w := s.world
	w.Lock()
	ip := w.ServerIP()
	maxUsers := w.MaxUsers()
	debug := w.Debug()
	store := w.StoreSettings()
	w.Unlock()

	doc := adminIndex{
		Version:  "1.0",
		Server:   serverInfo{Version: config.Version, IP: ip},
		Log:      link{"/log"},
		BigLog:   link{"/log?n=5000"},
		Users:    link{"/users"},
		Profiles: link{"/profiles"},
		Online:   link{"/users/online"},
		Stats:    link{"/stats"},
		UserLock: link{"/userlock"},
		UserKill: link{"/userkill"},
		MaxUsers: valueLink{maxUsers, "/maxusers"},
		Debug:    enabledLink{debug, "/debug"},
		Settings: enabledLink{store, "/settings"},
		Roster:   link{"/roster"},
		Banned:   link{"/banned"},
		ServerIP: link{"/server-ip"},
		Process:  link{"/ps"},
	}
	if s.metrics != nil {
		doc.Metrics = &link{"/metrics"}
	}
	return xmlDoc(c, http.StatusOK, doc)
}

func (s *Service) handleStatsIndex(c echo.Context) error {
	w := s.world
	w.Lock()
	ip := w.ServerIP()
	w.Unlock()

	return xmlDoc(c, http.StatusOK, statsIndex{
		Version:  "1.0",
		Server:   serverInfo{Version: config.Version, IP: ip},
		Users:    link{"/users"},
		Profiles: link{"/profiles"},
		Online:   link{"/users/online"},
		Stats:    link{"/stats"},
		Process:  link{"/ps"},
	})
}

func (s *Service) handleUsers(c echo.Context) error {
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", browsePageSize)
	total, records, err := s.users.Browse(c.Request().Context(), offset, limit)
	if err != nil {
		return s.serverError(c, err)
	}

	doc := userList{
		Href:  "/home",
		Total: total,
		Next:  link{fmt.Sprintf("/users?offset=%d&limit=%d", offset+limit, limit)},
	}
	for _, u := range records {
		entry := userEntry{Username: u.Username}
		if u.Locked() {
			entry.Locked = "yes"
			// Recovery links stay off the unauthenticated surface.
			if !s.readOnly {
				entry.Href = s.modifyUserURI(c, u.Nonce)
			}
		}
		doc.Users = append(doc.Users, entry)
	}
	return xmlDoc(c, http.StatusOK, doc)
}

func (s *Service) handleUsersOnline(c echo.Context) error {
	w := s.world
	w.Lock()
	players := w.OnlinePlayers()
	sort.Slice(players, func(i, j int) bool {
		return players[i].User.Hash < players[j].User.Hash
	})
	doc := onlineList{Href: "/home", Count: len(players)}
	for _, p := range players {
		entry := onlineEntry{Username: p.User.Username, IP: p.Addr}
		if p.Lobby != nil {
			entry.Lobby = p.Lobby.Name
		}
		if p.Profile != nil {
			entry.Profile = p.Profile.Name
		}
		doc.Users = append(doc.Users, entry)
	}
	w.Unlock()
	return xmlDoc(c, http.StatusOK, doc)
}

func (s *Service) handleProfiles(c echo.Context) error {
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", browsePageSize)
	total, records, err := s.profiles.Browse(c.Request().Context(), offset, limit)
	if err != nil {
		return s.serverError(c, err)
	}

	doc := profileList{
		Href:  "/home",
		Total: total,
		Next:  link{fmt.Sprintf("/profiles?offset=%d&limit=%d", offset+limit, limit)},
	}
	for _, p := range records {
		doc.Profiles = append(doc.Profiles, profileEntry{
			Name: p.Name,
			Href: fmt.Sprintf("/profiles/%d", p.ID),
		})
	}
	return xmlDoc(c, http.StatusOK, doc)
}

func (s *Service) handleProfile(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	var (
		profile *model.Profile
		err     error
	)
	if id, convErr := strconv.Atoi(key); convErr == nil {
		profile, err = s.profiles.Get(ctx, int32(id))
	} else {
		profile, err = s.profiles.FindByName(ctx, key)
	}
	if err != nil {
		return s.serverError(c, err)
	}
	if profile == nil {
		return xmlDoc(c, http.StatusNotFound,
			errorDoc{Text: "no such profile", Href: "/profiles"})
	}
	stats, err := s.stats.Stats(ctx, profile.ID)
	if err != nil {
		return s.serverError(c, err)
	}

	doc := profileDetail{
		Href:            "/profiles",
		Name:            profile.Name,
		ID:              profile.ID,
		Rank:            profile.Rank,
		FavPlayer:       profile.FavPlayer,
		FavPlayerID:     profile.FavPlayer & 0x0000ffff,
		FavPlayerTeamID: (profile.FavPlayer >> 16) & 0x0000ffff,
		FavTeam:         profile.FavTeam,
		Points:          profile.Points,
		Division:        rating.Division(profile.Points),
		Disconnects:     profile.Disconnects,
		PlayTime:        profile.PlayTime,
		Games:           stats.Games(),
		Wins:            stats.Wins,
		Draws:           stats.Draws,
		Losses:          stats.Losses,
		GoalsScored:     stats.GoalsScored,
		GoalsAllowed:    stats.GoalsAllowed,
		StreakCurrent:   stats.StreakCurrent,
		StreakBest:      stats.StreakBest,
	}
	var winPct, avgScored, avgAllowed float64
	if games := stats.Games(); games > 0 {
		winPct = float64(stats.Wins) / float64(games)
		avgScored = float64(stats.GoalsScored) / float64(games)
		avgAllowed = float64(stats.GoalsAllowed) / float64(games)
	}
	doc.WinningPct = fmt.Sprintf("%0.1f%%", winPct*100.0)
	doc.GoalsScoredAvg = fmt.Sprintf("%0.2f", avgScored)
	doc.GoalsAllowedAvg = fmt.Sprintf("%0.2f", avgAllowed)
	return xmlDoc(c, http.StatusOK, doc)
}

func (s *Service) handleStats(c echo.Context) error {
	w := s.world
	w.Lock()
	defer w.Unlock()

	doc := statsDoc{Href: "/home", PlayerCount: w.NumUsersOnline()}
	lobbies := w.Lobbies()
	doc.Lobbies.Count = len(lobbies)
	for _, l := range lobbies {
		tag := lobbyTag{
			Type:            l.TypeStr,
			ShowMatches:     l.ShowMatches,
			CheckRosterHash: l.CheckRosterHash,
			Name:            l.Name,
			PlayerCount:     len(l.Players),
			RoomCount:       len(l.Rooms),
		}

		var matchRooms []*model.Room
		for _, r := range l.Rooms {
			if r.Match != nil {
				matchRooms = append(matchRooms, r)
			}
		}
		sort.Slice(matchRooms, func(i, j int) bool {
			return matchRooms[i].ID < matchRooms[j].ID
		})
		tag.MatchesInProgress = len(matchRooms)

		players := make([]*model.Player, 0, len(l.Players))
		for _, p := range l.Players {
			players = append(players, p)
		}
		sort.Slice(players, func(i, j int) bool {
			return players[i].Profile.Name < players[j].Profile.Name
		})
		for _, p := range players {
			tag.Users = append(tag.Users, lobbyUserTag{
				Profile: p.Profile.Name,
				IP:      p.Addr,
			})
		}

		if len(matchRooms) > 0 && l.ShowMatches {
			set := &matchSet{}
			for _, r := range matchRooms {
				set.Matches = append(set.Matches, describeMatch(r))
			}
			tag.Matches = set
		}
		doc.Lobbies.Lobbies = append(doc.Lobbies.Lobbies, tag)
	}
	return xmlDoc(c, http.StatusOK, doc)
}

func describeMatch(r *model.Room) matchTag {
	tag := matchTag{
		RoomName:  r.Name,
		MatchTime: r.MatchTime,
		Score:     fmt.Sprintf("%d:%d", r.Match.HomeScore(), r.Match.AwayScore()),
	}
	switch m := r.Match.(type) {
	case *model.Match:
		tag.HomeTeamID = m.HomeTeamID
		tag.AwayTeamID = m.AwayTeamID
		if m.HomeProfile != nil {
			tag.HomeProfile = m.HomeProfile.Name
		}
		if m.AwayProfile != nil {
			tag.AwayProfile = m.AwayProfile.Name
		}
	case *model.Match6:
		tag.Clock = strconv.Itoa(int(m.Clock))
		tag.State = model.MatchStateText(m.State)
		sel := m.TeamSelection
		if sel == nil {
			sel = r.TeamSelection
		}
		if sel != nil {
			tag.HomeTeamID = sel.HomeTeamID
			tag.AwayTeamID = sel.AwayTeamID
			tag.HomeTeam = describeSide(sel.HomeCaptain, sel.HomeMorePlayers)
			tag.AwayTeam = describeSide(sel.AwayCaptain, sel.AwayMorePlayers)
		}
	}
	return tag
}

func describeSide(captain *model.Profile, more []*model.Profile) *teamTag {
	team := &teamTag{}
	if captain != nil {
		team.Profiles = append(team.Profiles, profileRef{Name: captain.Name})
	}
	for _, p := range more {
		team.Profiles = append(team.Profiles, profileRef{Name: p.Name})
	}
	return team
}

func (s *Service) handleLog(c echo.Context) error {
	logFile := s.world.Config().Admin.LogFile
	data, err := os.ReadFile(logFile)
	if err != nil {
		return xmlDoc(c, http.StatusOK, errorDoc{Text: "no log file available"})
	}
	lines := strings.SplitAfter(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	n := intQuery(c, "n", browsePageSize)
	if n > len(lines) {
		n = len(lines)
	}
	// Keep n sane: [10,5000].
	n = max(10, min(5000, n))

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d lines of the log:\r\n", n)
	b.WriteString("===========================================\r\n")
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	for _, line := range lines[start:] {
		b.WriteString(line)
	}
	return c.String(http.StatusOK, b.String())
}

func (s *Service) handleUserLockForm(c echo.Context) error {
	return c.HTML(http.StatusOK, userLockForm)
}

func (s *Service) handleUserLock(c echo.Context) error {
	username := c.FormValue("username")
	if username == "" {
		return xmlDoc(c, http.StatusBadRequest,
			errorDoc{Text: "username parameter missing"})
	}
	ctx := c.Request().Context()
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return s.serverError(c, err)
	}
	if u == nil {
		return xmlDoc(c, http.StatusNotFound, errorDoc{Text: "unknown username"})
	}
	nonce, err := s.world.LockUser(ctx, username)
	if err != nil {
		return s.serverError(c, err)
	}
	return xmlDoc(c, http.StatusOK, userLocked{
		Username: username,
		Href:     "/home",
		Unlock:   link{s.modifyUserURI(c, nonce)},
	})
}

func (s *Service) handleUserKillForm(c echo.Context) error {
	return c.HTML(http.StatusOK, userKillForm)
}

func (s *Service) handleUserKill(c echo.Context) error {
	username := c.FormValue("username")
	if username == "" {
		return xmlDoc(c, http.StatusBadRequest,
			errorDoc{Text: "username parameter missing"})
	}
	ctx := c.Request().Context()
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return s.serverError(c, err)
	}
	if u == nil {
		return xmlDoc(c, http.StatusNotFound, errorDoc{Text: "unknown username"})
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return s.serverError(c, err)
	}
	slog.Info("user deleted", "username", username)
	return xmlDoc(c, http.StatusOK, userDeleted{Username: username, Href: "/home"})
}

func (s *Service) handleDebugForm(c echo.Context) error {
	s.world.Lock()
	debug := s.world.Debug()
	s.world.Unlock()
	return c.HTML(http.StatusOK, fmt.Sprintf(debugForm, debug))
}

func (s *Service) handleDebug(c echo.Context) error {
	w := s.world
	w.Lock()
	switch strings.ToLower(c.FormValue("debug")) {
	case "0", "false", "no":
		w.SetDebug(false)
	case "1", "true", "yes":
		w.SetDebug(true)
	}
	debug := w.Debug()
	w.Unlock()
	slog.Info("debug output toggled", "enabled", debug)
	return xmlDoc(c, http.StatusOK, debugDoc{Enabled: debug, Href: "/home"})
}

func (s *Service) handleMaxUsersForm(c echo.Context) error {
	s.world.Lock()
	maxUsers := s.world.MaxUsers()
	s.world.Unlock()
	return c.HTML(http.StatusOK, fmt.Sprintf(maxUsersForm, maxUsers))
}

func (s *Service) handleMaxUsers(c echo.Context) error {
	w := s.world
	w.Lock()
	if n, err := strconv.Atoi(c.FormValue("maxusers")); err == nil && n >= 0 && n <= 1000 {
		w.SetMaxUsers(n)
	}
	maxUsers := w.MaxUsers()
	w.Unlock()
	return xmlDoc(c, http.StatusOK, maxUsersDoc{Value: maxUsers, Href: "/home"})
}

func (s *Service) handleStoreSettingsForm(c echo.Context) error {
	s.world.Lock()
	store := s.world.StoreSettings()
	s.world.Unlock()
	return c.HTML(http.StatusOK, fmt.Sprintf(storeSettingsForm, store))
}

func (s *Service) handleStoreSettings(c echo.Context) error {
	w := s.world
	w.Lock()
	switch strings.ToLower(c.FormValue("store")) {
	case "0", "false", "no":
		w.SetStoreSettings(false)
	case "1", "true", "yes":
		w.SetStoreSettings(true)
	}
	store := w.StoreSettings()
	w.Unlock()
	return xmlDoc(c, http.StatusOK, storeSettingsDoc{Enabled: store, Href: "/home"})
}

func (s *Service) handleBanned(c echo.Context) error {
	specs := s.world.Banned().Specs()
	sort.Strings(specs)
	doc := bannedDoc{Href: "/home", Add: link{"/ban-add"}}
	for _, spec := range specs {
		doc.List.Entries = append(doc.List.Entries, bannedEntry{
			Href: "/ban-remove?entry=" + url.QueryEscape(spec),
			Spec: spec,
		})
	}
	return xmlDoc(c, http.StatusOK, doc)
}

func (s *Service) handleBanAddForm(c echo.Context) error {
	return c.HTML(http.StatusOK,
		fmt.Sprintf(banAddForm, template.HTMLEscapeString(c.QueryParam("entry"))))
}

func (s *Service) handleBanAdd(c echo.Context) error {
	entry := strings.TrimSpace(c.FormValue("entry"))
	if entry != "" {
		banned := s.world.Banned()
		banned.Add(entry)
		if err := banned.Save(); err != nil {
			return s.serverError(c, err)
		}
		slog.Info("banned-list entry added", "spec", entry)
	}
	return xmlDoc(c, http.StatusOK, actionAccepted{Href: "/banned"})
}

func (s *Service) handleBanRemoveForm(c echo.Context) error {
	return c.HTML(http.StatusOK,
		fmt.Sprintf(banRemoveForm, template.HTMLEscapeString(c.QueryParam("entry"))))
}

func (s *Service) handleBanRemove(c echo.Context) error {
	entry := strings.TrimSpace(c.FormValue("entry"))
	if entry != "" {
		banned := s.world.Banned()
		banned.Remove(entry)
		if err := banned.Save(); err != nil {
			return s.serverError(c, err)
		}
		slog.Info("banned-list entry removed", "spec", entry)
	}
	return xmlDoc(c, http.StatusOK, actionAccepted{Href: "/banned"})
}

func (s *Service) handleServerIPForm(c echo.Context) error {
	s.world.Lock()
	ip := s.world.ServerIP()
	s.world.Unlock()
	return c.HTML(http.StatusOK, fmt.Sprintf(serverIPForm, ip))
}

func (s *Service) handleServerIP(c echo.Context) error {
	if s.requery != nil {
		// Detection retries with backoff, so it runs detached from
		// the request.
		go func() {
			if err := s.requery.Requery(context.Background()); err != nil {
				slog.Error("address requery failed", "err", err)
			}
		}()
	}
	return xmlDoc(c, http.StatusOK, requeryDoc{Started: true, Href: "/home"})
}

func (s *Service) handleRosterForm(c echo.Context) error {
	s.world.Lock()
	roster := s.world.RosterChecks()
	s.world.Unlock()
	return c.HTML(http.StatusOK,
		fmt.Sprintf(rosterForm, roster.EnforceHash, roster.CompareHash))
}

func (s *Service) handleRoster(c echo.Context) error {
	enforceStr := c.FormValue("enforceHash")
	compareStr := c.FormValue("compareHash")
	if enforceStr == "" || compareStr == "" {
		return xmlDoc(c, http.StatusBadRequest,
			errorDoc{Text: "missing or incorrect parameters", Href: "/home"})
	}
	roster := config.Roster{
		EnforceHash: parseFlag(enforceStr),
		CompareHash: parseFlag(compareStr),
	}
	w := s.world
	w.Lock()
	w.SetRosterChecks(roster)
	w.Unlock()
	slog.Info("roster settings changed",
		"enforceHash", roster.EnforceHash, "compareHash", roster.CompareHash)
	return xmlDoc(c, http.StatusOK,
		resultDoc{Text: "roster settings changed", Href: "/home"})
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true":
		return true
	}
	return false
}

func (s *Service) handleProcessInfo(c echo.Context) error {
	pid := os.Getpid()
	s.world.Lock()
	started := s.world.StartedAt()
	up := s.world.Uptime(time.Now())
	s.world.Unlock()

	doc := processInfo{
		Href: "/home",
		PID:  pid,
		Uptime: uptimeTag{
			Since: started.Format("2006-01-02 15:04:05"),
			Up:    up.Round(time.Second).String(),
		},
		Info: procCmd{Cmdline: strings.Join(os.Args, " ")},
	}
	if p, err := process.NewProcess(int32(pid)); err == nil {
		if cpu, err := p.CPUPercent(); err == nil {
			doc.Stats.CPU = fmt.Sprintf("%0.1f%%", cpu)
		}
		if mem, err := p.MemoryInfo(); err == nil {
			doc.Stats.Mem = fmt.Sprintf("%0.1fM", float64(mem.RSS)/1024/1024)
		}
	}
	return xmlDoc(c, http.StatusOK, doc)
}
