package control

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gndl/talkgraph/internal/conf"
)

func newTestAuth(t *testing.T, enabled bool, username, password string) *Auth {
	t.Helper()
	s := &conf.Settings{}
	s.Control.Auth.Enabled = enabled
	s.Control.Auth.SessionSecret = "test-secret-32-bytes-minimum-len"
	s.Control.Auth.Username = username
	hash := sha256.Sum256([]byte(password))
	s.Control.Auth.PasswordHash = hex.EncodeToString(hash[:])
	s.Control.Auth.LoginRatePerSecond = 100
	return NewAuth(s)
}

func TestRequireAuthPassesThroughWhenDisabled(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, false, "op", "secret")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := a.RequireAuth(func(echo.Context) error { called = true; return nil })(c)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequireAuthRejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, true, "op", "secret")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := a.RequireAuth(func(echo.Context) error { return nil })(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestRequireAuthAcceptsValidBasicAuth(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, true, "op", "secret")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.SetBasicAuth("op", "secret")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := a.RequireAuth(func(echo.Context) error { called = true; return nil })(c)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequireAuthRejectsWrongPassword(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, true, "op", "secret")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.SetBasicAuth("op", "wrong")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := a.RequireAuth(func(echo.Context) error { return nil })(c)
	require.Error(t, err)
}

func TestHandleAuthLoginSetsSessionCookie(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, true, "op", "secret")
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=op&password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, a.handleAuthLogin(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Set-Cookie"))
}

func TestHandleAuthLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, true, "op", "secret")
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=op&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := a.handleAuthLogin(c)
	require.Error(t, err)
}
