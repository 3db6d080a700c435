// Package web serves the public registration pages. Players create
// their account here before the game can log in, and re-key it later
// through a one-time recovery link issued by the admin service.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/xml"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/fiveserver/fiveserver/internal/service"
)

// Registration traffic is a trickle; anything faster than this from
// one address is a script probing for keys.
const (
	registerRate  = rate.Limit(0.5)
	registerBurst = 5
)

//go:embed assets
var assets embed.FS

// Service is the registration HTTP front end.
type Service struct {
	echo  *echo.Echo
	world *service.World

	form   *template.Template
	result *template.Template
	md5js  []byte
	xsl    []byte
}

// New builds the registration service. Page assets ship embedded;
// files with the same names under the configured web dir override
// them so operators can restyle the pages.
func New(w *service.World) (*Service, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Service{echo: e, world: w}

	dir := w.Config().Web.Dir
	form, err := loadAsset(dir, "form.html")
	if err != nil {
		return nil, err
	}
	if s.form, err = template.New("form").Parse(string(form)); err != nil {
		return nil, err
	}
	result, err := loadAsset(dir, "result.html")
	if err != nil {
		return nil, err
	}
	if s.result, err = template.New("result").Parse(string(result)); err != nil {
		return nil, err
	}
	if s.md5js, err = loadAsset(dir, "md5.js"); err != nil {
		return nil, err
	}
	if s.xsl, err = loadAsset(dir, "style.xsl"); err != nil {
		return nil, err
	}

	e.GET("/", s.handleForm)
	e.GET("/modifyUser/:nonce", s.handleModifyForm)
	e.GET("/md5.js", s.handleMd5js)
	e.GET("/xsl/style.xsl", s.handleXsl)
	e.POST("/", s.handleRegister, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      registerRate,
				Burst:     registerBurst,
				ExpiresIn: 10 * time.Minute,
			}),
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return s.respond(c, http.StatusTooManyRequests,
				c.FormValue("format"),
				"ERROR: Too many registration attempts, try again later")
		},
	}))

	return s, nil
}

func loadAsset(dir, name string) ([]byte, error) {
	if dir != "" {
		if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return b, nil
		}
	}
	return assets.ReadFile("assets/" + name)
}

// Echo exposes the underlying Echo instance for tests.
func (s *Service) Echo() *echo.Echo {
	return s.echo
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

type formData struct {
	Username string
	Nonce    string
	Serial   string
}

type resultData struct {
	Result string
}

func (s *Service) renderForm(c echo.Context, data formData) error {
	var b bytes.Buffer
	if err := s.form.Execute(&b, data); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, b.Bytes())
}

func (s *Service) handleForm(c echo.Context) error {
	return s.renderForm(c, formData{})
}

// handleModifyForm pre-fills the form for an account the admin locked
// for recovery. An unknown nonce still renders the blank form, so the
// URL itself does not leak whether a lock exists.
func (s *Service) handleModifyForm(c echo.Context) error {
	u, err := s.world.UserByNonce(c.Request().Context(), c.Param("nonce"))
	if err != nil {
		slog.Error("nonce lookup failed", "err", err)
		return s.renderForm(c, formData{})
	}
	if u == nil {
		return s.renderForm(c, formData{})
	}
	return s.renderForm(c, formData{
		Username: u.Username,
		Nonce:    u.Nonce,
		Serial:   u.Serial,
	})
}

func (s *Service) handleMd5js(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/javascript", s.md5js)
}

func (s *Service) handleXsl(c echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMETextXMLCharsetUTF8, s.xsl)
}

func (s *Service) handleRegister(c echo.Context) error {
	var (
		username = c.FormValue("user")
		serial   = c.FormValue("serial")
		hash     = c.FormValue("hash")
		nonce    = c.FormValue("nonce")
		format   = c.FormValue("format")
	)
	if username == "" || serial == "" || hash == "" {
		return s.respond(c, http.StatusBadRequest, format,
			"ERROR: Cannot register: missing fields")
	}
	if s.world.Banned().IsBanned(c.RealIP()) {
		slog.Warn("registration refused, address banned", "ip", c.RealIP())
		return s.respond(c, http.StatusForbidden, format,
			"ERROR: Cannot register: your IP is banned")
	}

	ctx := c.Request().Context()
	if nonce == "" {
		taken, err := s.world.UsernameExists(ctx, username)
		if err != nil {
			return s.registerError(c, format, err)
		}
		if taken {
			return s.respond(c, http.StatusConflict, format,
				"ERROR: Cannot register: username taken")
		}
	} else {
		u, err := s.world.UserByNonce(ctx, nonce)
		if err != nil {
			return s.registerError(c, format, err)
		}
		if u == nil {
			return s.respond(c, http.StatusNotFound, format,
				"ERROR: Cannot modify user: invalid nonce")
		}
	}

	if err := s.world.CreateUser(ctx, username, serial, hash, nonce); err != nil {
		return s.registerError(c, format, err)
	}
	slog.Info("registration complete", "username", username, "modified", nonce != "")
	return s.respond(c, http.StatusOK, format, "SUCCESS: Registration complete")
}

func (s *Service) registerError(c echo.Context, format string, err error) error {
	slog.Error("registration failed", "err", err)
	return s.respond(c, http.StatusInternalServerError, format,
		"ERROR: Unable to register: server error")
}

const xmlProlog = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
	`<?xml-stylesheet type="text/xsl" href="/xsl/style.xsl"?>` + "\n"

type resultDoc struct {
	XMLName xml.Name `xml:"result"`
	Text    string   `xml:"text,attr"`
}

// respond renders the outcome as HTML when the client asked for it,
// XML otherwise. The game-side tools consume the XML form.
func (s *Service) respond(c echo.Context, status int, format, message string) error {
	if format == "html" {
		var b bytes.Buffer
		if err := s.result.Execute(&b, resultData{Result: message}); err != nil {
			return err
		}
		return c.HTMLBlob(status, b.Bytes())
	}
	b, err := xml.Marshal(resultDoc{Text: message})
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMETextXMLCharsetUTF8, append([]byte(xmlProlog), b...))
}
