package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// CookieWriter maps session pairs onto the response cookie contract: HttpOnly,
// SameSite=Lax, Path=/, Max-Age equal to each token's TTL. Secure is off only
// for dev and LAN deployments.
type CookieWriter struct {
	Secure bool
}

func (w CookieWriter) SetSession(c echo.Context, pair *Pair) {
	now := time.Now()
	c.SetCookie(w.newCookie(AccessCookieName, pair.AccessToken, maxAge(pair.AccessExpiresAt.Sub(now))))
	c.SetCookie(w.newCookie(RefreshCookieName, pair.RefreshToken, maxAge(pair.RefreshExpiresAt.Sub(now))))
}

func (w CookieWriter) Clear(c echo.Context) {
	c.SetCookie(w.newCookie(AccessCookieName, "", -1))
	c.SetCookie(w.newCookie(RefreshCookieName, "", -1))
}

func (w CookieWriter) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func maxAge(d time.Duration) int {
	return int(d.Round(time.Second).Seconds())
}

func ReadAccessToken(c echo.Context) string {
	return readCookie(c, AccessCookieName)
}

func ReadRefreshToken(c echo.Context) string {
	return readCookie(c, RefreshCookieName)
}

// ReadBearerToken extracts an access token from the Authorization header, the
// stateless transport variant with no refresh capability.
func ReadBearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func readCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}
