package web

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiveserver/fiveserver/internal/config"
	"github.com/fiveserver/fiveserver/internal/crypto"
	"github.com/fiveserver/fiveserver/internal/model"
	"github.com/fiveserver/fiveserver/internal/service"
)

type fakeUsers struct {
	users []*model.User
}

func (f *fakeUsers) FindByHash(_ context.Context, hash string) (*model.User, error) {
	for _, u := range f.users {
		if u.Hash == hash {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByNonce(_ context.Context, nonce string) (*model.User, error) {
	if nonce == "" {
		return nil, nil
	}
	for _, u := range f.users {
		if u.Nonce == nonce {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Store(_ context.Context, u *model.User) error {
	if u.ID == 0 {
		u.ID = int32(len(f.users) + 1)
		f.users = append(f.users, u)
	}
	return nil
}

type fakeProfiles struct{}

func (fakeProfiles) Get(context.Context, int32) (*model.Profile, error) { return nil, nil }

func (fakeProfiles) GetByUserID(context.Context, int32) ([]*model.Profile, error) {
	return nil, nil
}

func (fakeProfiles) FindByName(context.Context, string) (*model.Profile, error) {
	return nil, nil
}

func (fakeProfiles) Store(context.Context, *model.Profile) error { return nil }

func (fakeProfiles) Delete(context.Context, int32) error { return nil }

func (fakeProfiles) Settings(context.Context, int32) (*model.ProfileSettings, error) {
	return nil, nil
}

func (fakeProfiles) StoreSettings(context.Context, int32, *model.ProfileSettings) error {
	return nil
}

type fakeMatches struct{}

func (fakeMatches) Games(context.Context, int32) (int32, error) { return 0, nil }

func (fakeMatches) Stats(_ context.Context, profileID int32) (*model.Stats, error) {
	return &model.Stats{ProfileID: profileID}, nil
}

type fixture struct {
	world  *service.World
	users  *fakeUsers
	banned *config.BannedList
	cipher *crypto.AuthCipher
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{MaxUsers: 30}
	}
	cipher, err := crypto.NewAuthCipher(crypto.DefaultAuthKey)
	require.NoError(t, err)
	banned, err := config.LoadBannedList(filepath.Join(t.TempDir(), "banned.yaml"))
	require.NoError(t, err)
	f := &fixture{users: &fakeUsers{}, banned: banned, cipher: cipher}
	f.world = service.NewWorld(cfg, f.users, fakeProfiles{}, fakeMatches{}, cipher, banned)
	return f
}

func newTestService(t *testing.T, f *fixture) *Service {
	t.Helper()
	s, err := New(f.world)
	require.NoError(t, err)
	return s
}

func doGet(s *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func doPost(s *Service, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func body(rec *httptest.ResponseRecorder) string {
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

// postedHash builds the 32-hex-digit value the form script would send.
func postedHash(serial, password string) string {
	sum := md5.Sum([]byte(strings.ToUpper(serial) + password))
	return hex.EncodeToString(sum[:])
}

func registration(user, serial, hash string) url.Values {
	return url.Values{
		"user":   {user},
		"serial": {serial},
		"hash":   {hash},
	}
}

func TestFormServed(t *testing.T) {
	s := newTestService(t, newFixture(t, nil))

	rec := doGet(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	page := body(rec)
	assert.Contains(t, page, `name="user"`)
	assert.Contains(t, page, `name="serial"`)
	assert.Contains(t, page, `src="/md5.js"`)
	assert.Contains(t, page, `name="nonce" value=""`)
}

func TestMd5AssetServed(t *testing.T) {
	s := newTestService(t, newFixture(t, nil))

	rec := doGet(s, "/md5.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "function hex_md5")
}

func TestStylesheetServed(t *testing.T) {
	s := newTestService(t, newFixture(t, nil))

	rec := doGet(s, "/xsl/style.xsl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/xml")
	assert.Contains(t, body(rec), "xsl:stylesheet")
}

func TestWebDirOverridesAssets(t *testing.T) {
	dir := t.TempDir()
	custom := "<html><body>custom form {{.Username}}</body></html>"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "form.html"), []byte(custom), 0o644))

	cfg := &config.Config{MaxUsers: 30, Web: config.Web{Dir: dir}}
	s := newTestService(t, newFixture(t, cfg))

	rec := doGet(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "custom form")
	// Assets absent from the dir still come from the embedded set.
	rec = doGet(s, "/md5.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "function hex_md5")
}

func TestRegisterNewUser(t *testing.T) {
	f := newFixture(t, nil)
	s := newTestService(t, f)

	hash := postedHash("SER-123", "secret")
	rec := doPost(s, registration("kiko", "SER-123", hash))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "SUCCESS: Registration complete")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/xml")

	require.Len(t, f.users.users, 1)
	stored := f.users.users[0]
	assert.Equal(t, "kiko", stored.Username)
	assert.Equal(t, "SER-123", stored.Serial)

	raw, err := hex.DecodeString(hash)
	require.NoError(t, err)
	want, err := f.cipher.UserKey(raw)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Hash)
}

func TestRegisterUsernameTaken(t *testing.T) {
	f := newFixture(t, nil)
	f.users.users = append(f.users.users, &model.User{
		ID: 1, Username: "kiko", Hash: "occupied",
	})
	s := newTestService(t, f)

	rec := doPost(s, registration("kiko", "SER-123", postedHash("SER-123", "x")))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body(rec), "ERROR: Cannot register: username taken")
	require.Len(t, f.users.users, 1)
}

func TestRegisterBannedAddress(t *testing.T) {
	f := newFixture(t, nil)
	// httptest requests arrive from 192.0.2.1.
	f.banned.Add("192.0.2.1")
	s := newTestService(t, f)

	rec := doPost(s, registration("kiko", "SER-123", postedHash("SER-123", "x")))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, body(rec), "ERROR: Cannot register: your IP is banned")
	assert.Empty(t, f.users.users)
}

func TestRegisterMissingFields(t *testing.T) {
	s := newTestService(t, newFixture(t, nil))

	rec := doPost(s, url.Values{"user": {"kiko"}, "serial": {"SER-123"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body(rec), "ERROR: Cannot register: missing fields")
}

func TestModifyUserFlow(t *testing.T) {
	const nonce = "1000200030004000"
	f := newFixture(t, nil)
	f.users.users = append(f.users.users, &model.User{
		ID:       1,
		Username: "kiko",
		Serial:   "SER-123",
		Hash:     "oldhash",
		Nonce:    nonce,
	})
	s := newTestService(t, f)

	rec := doGet(s, "/modifyUser/"+nonce)
	require.Equal(t, http.StatusOK, rec.Code)
	page := body(rec)
	assert.Contains(t, page, `value="kiko"`)
	assert.Contains(t, page, `value="SER-123"`)
	assert.Contains(t, page, `value="`+nonce+`"`)

	// Unknown nonce renders the blank form instead of leaking state.
	rec = doGet(s, "/modifyUser/0000000000000000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), `name="nonce" value=""`)

	hash := postedHash("SER-123", "newpass")
	form := registration("kiko", "SER-123", hash)
	form.Set("nonce", nonce)
	rec = doPost(s, form)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "SUCCESS: Registration complete")

	raw, err := hex.DecodeString(hash)
	require.NoError(t, err)
	want, err := f.cipher.UserKey(raw)
	require.NoError(t, err)
	assert.Equal(t, want, f.users.users[0].Hash)
	assert.Empty(t, f.users.users[0].Nonce, "nonce is one-time")

	// The consumed nonce no longer names an account.
	rec = doPost(s, form)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body(rec), "ERROR: Cannot modify user: invalid nonce")
}

func TestHTMLResponseFormat(t *testing.T) {
	f := newFixture(t, nil)
	s := newTestService(t, f)

	form := registration("kiko", "SER-123", postedHash("SER-123", "x"))
	form.Set("format", "html")
	rec := doPost(s, form)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	page := body(rec)
	assert.Contains(t, page, "SUCCESS: Registration complete")
	assert.Contains(t, page, "<html>")
}

func TestRegistrationRateLimited(t *testing.T) {
	s := newTestService(t, newFixture(t, nil))

	var last *httptest.ResponseRecorder
	for i := 0; i < registerBurst+1; i++ {
		form := registration(fmt.Sprintf("user%d", i), "SER-123", "")
		last = doPost(s, form)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, body(last), "ERROR: Too many registration attempts")
}
