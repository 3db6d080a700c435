package admin

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"log/slog"
	"net/http"

	_ "embed"

	"github.com/labstack/echo/v4"
)

// Every document points browsers at the bundled stylesheet so the raw
// XML renders as a navigable page.
const xmlProlog = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
	`<?xml-stylesheet type="text/xsl" href="/xsl/style.xsl"?>` + "\n"

const xslPath = "/xsl/style.xsl"

//go:embed assets/style.xsl
var styleXsl []byte

var styleXslETag = func() string {
	sum := md5.Sum(styleXsl)
	return hex.EncodeToString(sum[:])
}()

func (s *Service) handleXsl(c echo.Context) error {
	c.Response().Header().Set("ETag", styleXslETag)
	if c.Request().Header.Get("If-None-Match") == styleXslETag {
		return c.NoContent(http.StatusNotModified)
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusOK)
	}
	return c.Blob(http.StatusOK, echo.MIMETextXMLCharsetUTF8, styleXsl)
}

func xmlDoc(c echo.Context, status int, v any) error {
	b, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMETextXMLCharsetUTF8, append([]byte(xmlProlog), b...))
}

func (s *Service) serverError(c echo.Context, err error) error {
	slog.Error("admin request failed", "path", c.Path(), "err", err)
	return xmlDoc(c, http.StatusInternalServerError,
		errorDoc{Text: "server error", Href: "/home", Details: err.Error()})
}

// link is a bare hypermedia element with only an href.
type link struct {
	Href string `xml:"href,attr"`
}

type serverInfo struct {
	Version string `xml:"version,attr"`
	IP      string `xml:"ip,attr"`
}

type valueLink struct {
	Value int    `xml:"value,attr"`
	Href  string `xml:"href,attr"`
}

type enabledLink struct {
	Enabled bool   `xml:"enabled,attr"`
	Href    string `xml:"href,attr"`
}

type adminIndex struct {
	XMLName  xml.Name    `xml:"adminService"`
	Version  string      `xml:"version,attr"`
	Server   serverInfo  `xml:"server"`
	Log      link        `xml:"log"`
	BigLog   link        `xml:"biglog"`
	Users    link        `xml:"users"`
	Profiles link        `xml:"profiles"`
	Online   link        `xml:"onlineUsers"`
	Stats    link        `xml:"stats"`
	UserLock link        `xml:"userlock"`
	UserKill link        `xml:"userkill"`
	MaxUsers valueLink   `xml:"maxusers"`
	Debug    enabledLink `xml:"debug"`
	Settings enabledLink `xml:"storeSettings"`
	Roster   link        `xml:"roster"`
	Banned   link        `xml:"banned"`
	ServerIP link        `xml:"server-ip"`
	Process  link        `xml:"processInfo"`
	Metrics  *link       `xml:"metrics,omitempty"`
}

type statsIndex struct {
	XMLName  xml.Name   `xml:"statsService"`
	Version  string     `xml:"version,attr"`
	Server   serverInfo `xml:"server"`
	Users    link       `xml:"users"`
	Profiles link       `xml:"profiles"`
	Online   link       `xml:"onlineUsers"`
	Stats    link       `xml:"stats"`
	Process  link       `xml:"processInfo"`
}

type errorDoc struct {
	XMLName xml.Name `xml:"error"`
	Text    string   `xml:"text,attr"`
	Href    string   `xml:"href,attr,omitempty"`
	Details string   `xml:"details,omitempty"`
}

type resultDoc struct {
	XMLName xml.Name `xml:"result"`
	Text    string   `xml:"text,attr"`
	Href    string   `xml:"href,attr,omitempty"`
}

type userList struct {
	XMLName xml.Name    `xml:"users"`
	Href    string      `xml:"href,attr"`
	Total   int         `xml:"total,attr"`
	Users   []userEntry `xml:"user"`
	Next    link        `xml:"next"`
}

type userEntry struct {
	Username string `xml:"username,attr"`
	Locked   string `xml:"locked,attr,omitempty"`
	Href     string `xml:"href,attr,omitempty"`
}

type onlineList struct {
	XMLName xml.Name      `xml:"users"`
	Count   int           `xml:"count,attr"`
	Href    string        `xml:"href,attr"`
	Users   []onlineEntry `xml:"user"`
}

type onlineEntry struct {
	Username string `xml:"username,attr"`
	Lobby    string `xml:"lobby,attr,omitempty"`
	Profile  string `xml:"profile,attr,omitempty"`
	IP       string `xml:"ip,attr,omitempty"`
}

type profileList struct {
	XMLName  xml.Name       `xml:"profiles"`
	Href     string         `xml:"href,attr"`
	Total    int            `xml:"total,attr"`
	Profiles []profileEntry `xml:"profile"`
	Next     link           `xml:"next"`
}

type profileEntry struct {
	Name string `xml:"name,attr"`
	Href string `xml:"href,attr"`
}

type profileDetail struct {
	XMLName         xml.Name `xml:"profile"`
	Href            string   `xml:"href,attr"`
	Name            string   `xml:"name,attr"`
	ID              int32    `xml:"id,attr"`
	Rank            int32    `xml:"rank"`
	FavPlayer       int32    `xml:"favPlayer"`
	FavPlayerID     int32    `xml:"favPlayerId"`
	FavPlayerTeamID int32    `xml:"favPlayerTeamId"`
	FavTeam         int32    `xml:"favTeam"`
	Points          int32    `xml:"points"`
	Division        int32    `xml:"division"`
	Disconnects     int32    `xml:"disconnects"`
	PlayTime        int32    `xml:"playTime"`
	Games           int32    `xml:"games"`
	Wins            int32    `xml:"wins"`
	Draws           int32    `xml:"draws"`
	Losses          int32    `xml:"losses"`
	GoalsScored     int32    `xml:"goalsScored"`
	GoalsAllowed    int32    `xml:"goalsAllowed"`
	StreakCurrent   int32    `xml:"winningStreakCurrent"`
	StreakBest      int32    `xml:"winningStreakBest"`
	WinningPct      string   `xml:"winningPct"`
	GoalsScoredAvg  string   `xml:"goalsScoredAverage"`
	GoalsAllowedAvg string   `xml:"goalsAllowedAverage"`
}

type statsDoc struct {
	XMLName     xml.Name  `xml:"stats"`
	PlayerCount int       `xml:"playerCount,attr"`
	Href        string    `xml:"href,attr"`
	Lobbies     lobbySet  `xml:"lobbies"`
}

type lobbySet struct {
	Count   int        `xml:"count,attr"`
	Lobbies []lobbyTag `xml:"lobby"`
}

type lobbyTag struct {
	Type              string         `xml:"type,attr"`
	ShowMatches       bool           `xml:"showMatches,attr"`
	CheckRosterHash   bool           `xml:"checkRosterHash,attr"`
	Name              string         `xml:"name,attr"`
	PlayerCount       int            `xml:"playerCount,attr"`
	RoomCount         int            `xml:"roomCount,attr"`
	MatchesInProgress int            `xml:"matchesInProgress,attr"`
	Users             []lobbyUserTag `xml:"user"`
	Matches           *matchSet      `xml:"matches,omitempty"`
}

type lobbyUserTag struct {
	Profile string `xml:"profile,attr"`
	IP      string `xml:"ip,attr,omitempty"`
}

type matchSet struct {
	Matches []matchTag `xml:"match"`
}

type matchTag struct {
	RoomName    string   `xml:"roomName,attr"`
	MatchTime   int32    `xml:"matchTime,attr"`
	Score       string   `xml:"score,attr"`
	HomeTeamID  int32    `xml:"homeTeamId,attr"`
	AwayTeamID  int32    `xml:"awayTeamId,attr"`
	HomeProfile string   `xml:"homeProfile,attr,omitempty"`
	AwayProfile string   `xml:"awayProfile,attr,omitempty"`
	Clock       string   `xml:"clock,attr,omitempty"`
	State       string   `xml:"state,attr,omitempty"`
	HomeTeam    *teamTag `xml:"homeTeam,omitempty"`
	AwayTeam    *teamTag `xml:"awayTeam,omitempty"`
}

type teamTag struct {
	Profiles []profileRef `xml:"profile"`
}

type profileRef struct {
	Name string `xml:"name,attr"`
}

type userLocked struct {
	XMLName  xml.Name `xml:"userLocked"`
	Username string   `xml:"username,attr"`
	Href     string   `xml:"href,attr"`
	Unlock   link     `xml:"unlock"`
}

type userDeleted struct {
	XMLName  xml.Name `xml:"userDeleted"`
	Username string   `xml:"username,attr"`
	Href     string   `xml:"href,attr"`
}

type debugDoc struct {
	XMLName xml.Name `xml:"debug"`
	Enabled bool     `xml:"enabled,attr"`
	Href    string   `xml:"href,attr"`
}

type maxUsersDoc struct {
	XMLName xml.Name `xml:"maxUsers"`
	Value   int      `xml:"value,attr"`
	Href    string   `xml:"href,attr"`
}

type storeSettingsDoc struct {
	XMLName xml.Name `xml:"storeSettings"`
	Enabled bool     `xml:"enabled,attr"`
	Href    string   `xml:"href,attr"`
}

type bannedDoc struct {
	XMLName xml.Name   `xml:"banned"`
	Href    string     `xml:"href,attr"`
	List    bannedSet  `xml:"list"`
	Add     link       `xml:"add"`
}

type bannedSet struct {
	Entries []bannedEntry `xml:"entry"`
}

type bannedEntry struct {
	Href string `xml:"href,attr"`
	Spec string `xml:"spec,attr"`
}

type actionAccepted struct {
	XMLName xml.Name `xml:"actionAccepted"`
	Href    string   `xml:"href,attr"`
}

type requeryDoc struct {
	XMLName xml.Name `xml:"serverIP-requery"`
	Started bool     `xml:"started,attr"`
	Href    string   `xml:"href,attr"`
}

type processInfo struct {
	XMLName xml.Name  `xml:"processInfo"`
	Href    string    `xml:"href,attr"`
	PID     int       `xml:"pid,attr"`
	Uptime  uptimeTag `xml:"uptime"`
	Stats   procStats `xml:"stats"`
	Info    procCmd   `xml:"info"`
}

type uptimeTag struct {
	Since string `xml:"since,attr"`
	Up    string `xml:"up,attr"`
}

type procStats struct {
	CPU string `xml:"cpu,attr,omitempty"`
	Mem string `xml:"mem,attr,omitempty"`
}

type procCmd struct {
	Cmdline string `xml:"cmdline,attr"`
}
