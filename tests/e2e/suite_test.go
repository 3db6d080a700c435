// Package e2e drives the server over real sockets: an account is
// created through the web form, then a framed TCP conversation runs
// against the news and login services with PostgreSQL behind them.
// Run with -short to skip when Docker is unavailable.
package e2e

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/crypto"
	"github.com/fiveserver/fiveserver/internal/db"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/protocol"
	"github.com/fiveserver/fiveserver/internal/service"
	"github.com/fiveserver/fiveserver/internal/session"
	"github.com/fiveserver/fiveserver/internal/web"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		log.Fatalf("starting postgres container: %v", err)
	}
	defer func() {
		_ = container.Terminate(ctx)
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("getting connection string: %v", err)
	}

	if err := db.RunMigrations(ctx, dsn); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connecting to test db: %v", err)
	}
	defer testPool.Close()

	code := m.Run()
	os.Exit(code)
}

func skipShort(tb testing.TB) {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping end-to-end test in short mode")
	}
}

// env is a first-generation world over the real repositories and a
// clean database, with the dispatcher factory ready to serve.
type env struct {
	world    *service.World
	users    *db.UserRepository
	profiles *db.ProfileRepository
	cipher   *crypto.AuthCipher
	banned   *config.BannedList
	services *service.Services
}

func newFiveEnv(tb testing.TB) *env {
	tb.Helper()
	skipShort(tb)

	_, err := testPool.Exec(context.Background(),
		`TRUNCATE matches_played, matches, streaks, settings, profiles, users
		 RESTART IDENTITY CASCADE`)
	require.NoError(tb, err)

	cfg := config.DefaultFive()
	cipher, err := crypto.NewAuthCipher(crypto.DefaultAuthKey)
	require.NoError(tb, err)
	banned, err := config.LoadBannedList(filepath.Join(tb.TempDir(), "banned.yaml"))
	require.NoError(tb, err)

	e := &env{
		users:    db.NewUserRepository(testPool),
		profiles: db.NewProfileRepository(testPool),
		cipher:   cipher,
		banned:   banned,
	}
	e.world = service.NewWorld(&cfg, e.users, e.profiles,
		db.NewMatchRepository(testPool), cipher, banned)
	e.services = service.NewFiveServices(e.world)
	return e
}

// gameHash builds the hex MD5 the registration form posts: the digest
// of the upper-cased serial concatenated with the password.
func gameHash(serial, password string) string {
	sum := md5.Sum([]byte(strings.ToUpper(serial) + password))
	return hex.EncodeToString(sum[:])
}

// register submits the web form the way a browser would and returns
// the stored account.
func (e *env) register(tb testing.TB, username, serial, password string) *model.User {
	tb.Helper()
	svc, err := web.New(e.world)
	require.NoError(tb, err)

	form := url.Values{
		"user":   {username},
		"serial": {serial},
		"hash":   {gameHash(serial, password)},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	svc.Echo().ServeHTTP(rec, req)
	require.Equal(tb, http.StatusOK, rec.Code, rec.Body.String())

	u, err := e.users.FindByUsername(context.Background(), username)
	require.NoError(tb, err)
	require.NotNil(tb, u)
	return u
}

// authPayload builds the 0x3003 body: the encrypted 64-byte block
// carrying the serial+password digest at bytes 32..47 and a roster
// digest stand-in at 48..63.
func (e *env) authPayload(tb testing.TB, serial, password string) []byte {
	tb.Helper()
	raw, err := hex.DecodeString(gameHash(serial, password))
	require.NoError(tb, err)
	plain := make([]byte, 64)
	copy(plain[32:48], raw)
	for i := 48; i < 64; i++ {
		plain[i] = byte(i)
	}
	enc, err := e.cipher.Encrypt(plain)
	require.NoError(tb, err)
	return enc
}

// startServer runs a session server on an ephemeral port and returns
// its address. The server is stopped when the test ends.
func startServer(t *testing.T, role string, h session.Handler, opts ...session.Option) string {
	t.Helper()
	srv := session.NewServer(role, "127.0.0.1:0", h, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server stopped with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	require.Eventually(t, func() bool { return srv.Addr() != nil },
		5*time.Second, 10*time.Millisecond)
	return srv.Addr().String()
}

// gameClient speaks the obfuscated frame protocol over one connection,
// numbering outgoing frames the way a real client does.
type gameClient struct {
	t     *testing.T
	conn  net.Conn
	rbuf  []byte
	count uint32
}

func dialGame(t *testing.T, addr string) *gameClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &gameClient{t: t, conn: conn, rbuf: make([]byte, protocol.MaxFrameSize)}
}

func (c *gameClient) send(opcode uint16, body []byte) {
	c.t.Helper()
	c.count++
	err := protocol.WriteFrame(c.conn, protocol.New(opcode, c.count, body), nil)
	require.NoError(c.t, err)
}

func (c *gameClient) recv() protocol.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	f, err := protocol.ReadFrame(c.conn, c.rbuf)
	require.NoError(c.t, err)
	f.Body = bytes.Clone(f.Body)
	return f
}

// expect reads the next frame and asserts its opcode.
func (c *gameClient) expect(opcode uint16) protocol.Frame {
	c.t.Helper()
	f := c.recv()
	require.Equalf(c.t, opcode, f.Header.Opcode,
		"expected opcode 0x%04x, got 0x%04x", opcode, f.Header.Opcode)
	return f
}
