// Package admin serves the operator HTTP surfaces: an authenticated
// control service and a read-only stats service without credentials.
// Responses are XML documents carrying a stylesheet reference, plus
// small HTML forms for the endpoints a human drives from a browser.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/service"
)

// UserDirectory is the slice of account storage the admin service
// needs: paging, lookup by name and soft delete.
type UserDirectory interface {
	Browse(ctx context.Context, offset, limit int) (int, []*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Delete(ctx context.Context, id int32) error
}

// ProfileDirectory is the profile listing side of the admin service.
type ProfileDirectory interface {
	Browse(ctx context.Context, offset, limit int) (int, []*model.Profile, error)
	Get(ctx context.Context, id int32) (*model.Profile, error)
	FindByName(ctx context.Context, name string) (*model.Profile, error)
}

// StatsSource aggregates a profile's match record. The admin profile
// view reads it directly so it shows real numbers even when stats
// display is switched off for players.
type StatsSource interface {
	Stats(ctx context.Context, profileID int32) (*model.Stats, error)
}

// Requeryer restarts WAN address detection without resetting uptime.
type Requeryer interface {
	Requery(ctx context.Context) error
}

// Service is one HTTP surface over a running world.
type Service struct {
	echo     *echo.Echo
	world    *service.World
	users    UserDirectory
	profiles ProfileDirectory
	stats    StatsSource
	requery  Requeryer
	metrics  http.Handler
	// readOnly marks the stats variant: no credentials, reporting
	// endpoints only, and no account-recovery links in listings.
	readOnly bool
}

// New builds the authenticated admin service. The metrics handler may
// be nil when the exporter is disabled.
func New(w *service.World, users UserDirectory, profiles ProfileDirectory,
	stats StatsSource, requery Requeryer, metrics http.Handler) *Service {

	s := &Service{
		echo:     newEcho(),
		world:    w,
		users:    users,
		profiles: profiles,
		stats:    stats,
		requery:  requery,
		metrics:  metrics,
	}
	adm := w.Config().Admin
	s.echo.Use(middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == xslPath
		},
		Realm: "fiveserver",
		Validator: func(user, password string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(adm.User)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(password), []byte(adm.Password)) == 1
			return userOK && passOK, nil
		},
	}))
	s.registerRoutes()
	return s
}

// NewStats builds the read-only statistics service. It carries no
// credentials, so it only exposes the reporting endpoints.
func NewStats(w *service.World, users UserDirectory, profiles ProfileDirectory,
	stats StatsSource) *Service {

	s := &Service{
		echo:     newEcho(),
		world:    w,
		users:    users,
		profiles: profiles,
		stats:    stats,
		readOnly: true,
	}
	s.registerReadOnlyRoutes()
	return s
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	return e
}

// Echo exposes the underlying Echo instance for tests.
func (s *Service) Echo() *echo.Echo {
	return s.echo
}

func (s *Service) registerRoutes() {
	e := s.echo
	e.GET("/", s.handleIndex)
	e.GET("/home", s.handleIndex)
	e.GET(xslPath, s.handleXsl)
	e.HEAD(xslPath, s.handleXsl)

	e.GET("/users", s.handleUsers)
	e.GET("/users/online", s.handleUsersOnline)
	e.GET("/profiles", s.handleProfiles)
	e.GET("/profiles/:key", s.handleProfile)
	e.GET("/stats", s.handleStats)
	e.GET("/log", s.handleLog)
	e.GET("/ps", s.handleProcessInfo)

	e.GET("/userlock", s.handleUserLockForm)
	e.POST("/userlock", s.handleUserLock)
	e.GET("/userkill", s.handleUserKillForm)
	e.POST("/userkill", s.handleUserKill)
	e.GET("/debug", s.handleDebugForm)
	e.POST("/debug", s.handleDebug)
	e.GET("/maxusers", s.handleMaxUsersForm)
	e.POST("/maxusers", s.handleMaxUsers)
	e.GET("/settings", s.handleStoreSettingsForm)
	e.POST("/settings", s.handleStoreSettings)
	e.GET("/banned", s.handleBanned)
	e.GET("/ban-add", s.handleBanAddForm)
	e.POST("/ban-add", s.handleBanAdd)
	e.GET("/ban-remove", s.handleBanRemoveForm)
	e.POST("/ban-remove", s.handleBanRemove)
	e.GET("/server-ip", s.handleServerIPForm)
	e.POST("/server-ip", s.handleServerIP)
	e.GET("/roster", s.handleRosterForm)
	e.POST("/roster", s.handleRoster)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

func (s *Service) registerReadOnlyRoutes() {
	e := s.echo
	e.GET("/", s.handleStatsIndex)
	e.GET("/home", s.handleStatsIndex)
	e.GET(xslPath, s.handleXsl)
	e.HEAD(xslPath, s.handleXsl)

	e.GET("/users", s.handleUsers)
	e.GET("/users/online", s.handleUsersOnline)
	e.GET("/profiles", s.handleProfiles)
	e.GET("/profiles/:key", s.handleProfile)
	e.GET("/stats", s.handleStats)
	e.GET("/ps", s.handleProcessInfo)
}

// Run starts the service and blocks until ctx cancellation or startup
// failure.
func (s *Service) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
