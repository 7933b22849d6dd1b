// Auth gates the control surface's mutating routes behind either a
// browser-based social login (gorilla/sessions cookie store + goth's
// provider/callback dance, gothic's session helpers) or HTTP Basic auth
// for non-browser automation clients, plus a token-bucket login rate
// limit. Grounded on the teacher's httpcontroller/auth_routes.go
// (handleGothProvider/handleGothCallback/handleBasicAuthLogin) and
// api/v2/auth/adapter.go (gothic.GetFromSession/gothic.Logout), adapted:
// no OAuth2Server authorization-code bridge between the two login paths,
// since this control surface has no separate templated login page to
// redirect through — a successful login of either kind just marks the
// gothic session authenticated directly.
package control

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	"github.com/gndl/talkgraph/internal/conf"
)

const authSessionKey = "authenticated"

// Auth wraps the control surface's login state: the rate limiter guarding
// /login and /api/v1/auth/*, and the settings needed to refresh a social
// login's provider token out from under an idle browser session.
type Auth struct {
	settings *conf.Settings
	limiter  *rate.Limiter
}

// NewAuth installs the gothic session store and registers the configured
// social provider, returning an Auth ready to wrap routes. Call once per
// process, before any request reaches RequireAuth or the goth handlers.
func NewAuth(s *conf.Settings) *Auth {
	a := s.Control.Auth
	gothic.Store = sessions.NewCookieStore([]byte(a.SessionSecret))

	if a.OAuth.Provider == "google" && a.OAuth.ClientID != "" {
		goth.UseProviders(google.New(a.OAuth.ClientID, a.OAuth.ClientSecret, a.OAuth.RedirectURL, "email", "profile"))
	}

	rps := a.LoginRatePerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Auth{settings: s, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// oauth2Config mirrors the provider's goth registration as a plain
// oauth2.Config, so a stored access/refresh token pair can be refreshed
// directly (via TokenSource) without going through goth's session
// marshaling — useful for a long-lived session whose token expired
// between requests rather than at login time.
func (a *Auth) oauth2Config() *oauth2.Config {
	o := a.settings.Control.Auth.OAuth
	return &oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RedirectURL:  o.RedirectURL,
		Endpoint:     oauthgoogle.Endpoint,
		Scopes:       []string{"email", "profile"},
	}
}

// RefreshUserToken exchanges an expired provider token for a fresh one,
// for a session that has been idle long enough that its stored OAuth
// token lapsed.
func (a *Auth) RefreshUserToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	return a.oauth2Config().TokenSource(ctx, tok).Token()
}

// RequireAuth wraps a handler so it 401s unless the request carries a
// valid Basic auth credential or an already-authenticated gothic session
// cookie. A disabled Auth (the default) is a no-op wrapper.
func (a *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.settings.Control.Auth.Enabled {
			return next(c)
		}
		if username, password, ok := c.Request().BasicAuth(); ok && a.checkBasicAuth(username, password) {
			return next(c)
		}
		if v, err := gothic.GetFromSession(authSessionKey, c.Request()); err == nil && v == "true" {
			return next(c)
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
}

func (a *Auth) checkBasicAuth(username, password string) bool {
	want := a.settings.Control.Auth.Username
	if want == "" || subtle.ConstantTimeCompare([]byte(username), []byte(want)) != 1 {
		return false
	}
	wantHash, err := hex.DecodeString(a.settings.Control.Auth.PasswordHash)
	if err != nil {
		return false
	}
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(got[:], wantHash) == 1
}

// handleAuthLogin is the rate-limited Basic-auth login endpoint: on
// success it marks the gothic session authenticated so subsequent
// requests pass RequireAuth without resending credentials.
func (a *Auth) handleAuthLogin(c echo.Context) error {
	if !a.limiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
	}
	username := c.FormValue("username")
	password := c.FormValue("password")
	if !a.checkBasicAuth(username, password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	response := c.Response().Writer
	if err := gothic.StoreInSession(authSessionKey, "true", c.Request(), response); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// handleAuthProvider starts (or completes, if the provider's session is
// already populated) a social login for the named provider.
func (a *Auth) handleAuthProvider(c echo.Context) error {
	if !a.limiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
	}
	request := withProviderParam(c.Request(), c.Param("provider"))
	response := c.Response().Writer
	if user, err := gothic.CompleteUserAuth(response, request); err == nil {
		return c.JSON(http.StatusOK, user)
	}
	gothic.BeginAuthHandler(response, request)
	return nil
}

// handleAuthCallback completes a provider's OAuth2 redirect and marks the
// session authenticated.
func (a *Auth) handleAuthCallback(c echo.Context) error {
	request := withProviderParam(c.Request(), c.Param("provider"))
	response := c.Response().Writer
	user, err := gothic.CompleteUserAuth(response, request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "authentication failed: "+err.Error())
	}
	if err := gothic.StoreInSession(authSessionKey, "true", request, response); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}

func (a *Auth) handleAuthLogout(c echo.Context) error {
	if err := gothic.Logout(c.Response().Writer, c.Request()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// withProviderParam copies the echo :provider path param into the
// request's query string, which is where gothic's own provider-resolution
// helper (gothic.GetProviderName) looks for it.
func withProviderParam(r *http.Request, provider string) *http.Request {
	q := r.URL.Query()
	q.Set("provider", provider)
	r.URL.RawQuery = q.Encode()
	return r
}
