package service

import "time"

// Services assembles the per-role frame dispatchers of one game
// generation. The two generations share most handler logic and
// diverge in payload shapes and in the room state machine, so each
// role constructor registers the shared set first and then the
// generation's own handlers over it.
type Services struct {
	world *World
	wire  wire
	five  *fiveWire
	six   *sixWire
}

// NewFiveServices builds the dispatcher factory for PES5/WE9/WE9LE.
func NewFiveServices(w *World) *Services {
	five := newFiveWire(w)
	return &Services{world: w, wire: five, five: five}
}

// NewSixServices builds the dispatcher factory for PES6/WE2007.
func NewSixServices(w *World) *Services {
	six := newSixWire(w)
	return &Services{world: w, wire: six, six: six}
}

// News serves the pre-login news, server directory and clock. One
// dispatcher covers every news port; the game build is resolved from
// the port a connection arrived on.
func (s *Services) News() *Dispatcher {
	d := NewDispatcher(s.world, "news")
	h := &newsHandlers{world: s.world, wire: s.wire}
	d.Register(0x2008, h.getNews)
	d.Register(0x2005, h.getServerList)
	d.Register(0x2006, h.getTime)
	if s.six != nil {
		d.Register(0x2200, h.getWebServerList)
	}
	return d
}

// Login authenticates users and manages their profile slots for one
// game build.
func (s *Services) Login(gameName string) *Dispatcher {
	d := NewDispatcher(s.world, "login")
	s.registerLogin(d, gameName)
	return d
}

func (s *Services) registerLogin(d *Dispatcher, gameName string) *loginHandlers {
	h := &loginHandlers{world: s.world, wire: s.wire, gameName: gameName}
	d.Register(0x3001, h.hello)
	d.Register(0x3003, h.authenticate)
	d.Register(0x3010, h.getProfiles)
	d.Register(0x3020, h.createProfile)
	d.Register(0x3030, h.deleteProfile)
	d.Register(0x3040, h.selectProfile)
	d.Register(0x3050, h.ack3050)
	d.Register(0x3060, h.ack3060)
	d.Register(0x308a, h.askForSettings)
	d.Register(0x3088, h.uploadSettings)
	d.Register(0x3089, h.saveSettings)
	d.Register(0x3090, h.ack3090)
	d.Register(0x3100, h.ack3100)
	d.Register(0x3120, h.ack3120)
	d.Register(0x0003, h.disconnect)
	if s.five != nil {
		d.Register(0x3070, h.getMatchResults)
		d.Register(0x3087, h.exitMatchSeries)
	} else {
		d.Register(0x3070, h.getMatchResults6)
		d.Register(0x3087, h.noop)
	}
	d.OnConnectionLost(h.connectionLost)
	return h
}

// NetworkMenu adds the lobby layer on top of the login handlers.
func (s *Services) NetworkMenu() *Dispatcher {
	d := NewDispatcher(s.world, "netmenu")
	s.registerNetworkMenu(d)
	return d
}

func (s *Services) registerNetworkMenu(d *Dispatcher) *netmenuHandlers {
	s.registerLogin(d, "")
	h := &netmenuHandlers{world: s.world, wire: s.wire}
	d.Register(0x4100, h.selectProfileSlot)
	d.Register(0x4102, h.getProfile)
	d.Register(0x4200, h.getLobbies)
	d.Register(0x4202, h.selectLobby)
	d.Register(0x4210, h.getUserList)
	d.Register(0x4300, h.getRoomList)
	d.Register(0x3080, h.ack3080)
	d.Register(0x4580, h.getFriends)
	d.Register(0x4110, h.setFavouriteTeam)
	d.Register(0x4114, h.setFavouritePlayer)
	d.Register(0x4600, h.searchPlayers)
	d.Register(0x4780, h.getInboxMessages)
	d.Register(0x4a00, h.quickMatchSearch)
	d.Register(0x0003, h.disconnect)
	d.OnConnectionLost(h.connectionLost)
	return h
}

// Main runs the rooms and matches. The first generation keeps its
// one-versus-one challenge flow; the second layers the four-player
// room phase machine over the shared base.
func (s *Services) Main() *Dispatcher {
	d := NewDispatcher(s.world, "main")
	s.registerNetworkMenu(d)
	rh := &roomHandlers{world: s.world, wire: s.wire}
	d.Register(0x4364, rh.setMatchTime)
	d.Register(0x4370, rh.matchExit)
	d.Register(0x4b00, rh.ping)
	d.Register(0x4323, rh.challengeResponse)
	d.Register(0x4325, rh.cancelChallenge)
	if s.five != nil {
		h := &mainFiveHandlers{world: s.world, five: s.five}
		d.Register(0x4310, h.createRoom)
		d.Register(0x432a, h.exitRoom)
		d.Register(0x4366, h.selectTeam)
		d.Register(0x4368, h.goalScored)
		d.Register(0x4400, h.chat)
		d.Register(0x4320, h.challenge)
		d.Register(0x4350, h.relayRoomSettings)
		d.Register(0x4360, h.toggleReady)
	} else {
		h := &mainSixHandlers{world: s.world, six: s.six}
		d.Register(0x6020, h.quickGameSearch)
		d.Register(0x4110, h.setComment)
		d.Register(0x4345, h.getStunInfo)
		d.Register(0x4400, h.chat)
		d.Register(0x4310, h.createRoom)
		d.Register(0x4320, h.joinRoom)
		d.Register(0x432a, h.exitRoom)
		d.Register(0x4350, h.relayRoomSettings)
		d.Register(0x4363, h.toggleParticipate)
		d.Register(0x4360, h.startMatch)
		d.Register(0x436f, h.toggleReady)
		d.Register(0x4369, h.setPlayerSettings)
		d.Register(0x436c, h.setGameSettings)
		d.Register(0x4373, h.teamSelected)
		d.Register(0x4375, h.goalScored)
		d.Register(0x4377, h.matchStateUpdate)
		d.Register(0x4385, h.matchClockUpdate)
		d.Register(0x4349, h.setOwner)
		d.Register(0x434d, h.setRoomName)
		d.Register(0x4366, h.becomeSpectator)
		d.Register(0x4351, h.relaySpectatorInfo)
		d.Register(0x4383, h.backToMatchMenu)
		d.Register(0x4380, h.forcedCancelParticipation)
		d.OnConnectionLost(h.connectionLost)
	}
	return d
}

// SystemNotice posts a system chat line to every lobby.
func (s *Services) SystemNotice(text string) {
	s.world.Lock()
	defer s.world.Unlock()
	for _, lobby := range s.world.Lobbies() {
		broadcastSystemChat(s.wire, lobby, text)
	}
}

// PruneChat drops lobby chat that has outlived its retention window.
func (s *Services) PruneChat(now time.Time) {
	s.world.Lock()
	defer s.world.Unlock()
	for _, lobby := range s.world.Lobbies() {
		lobby.PurgeChat(now)
	}
}
