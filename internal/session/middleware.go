package session

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dpashkov/noteboard/internal/models"
)

const userContextKey = "current_user"

type Middleware struct {
	Manager *Manager
	Cookies CookieWriter
}

// WithSession resolves the current user from the session cookies and attaches
// it to the request. Requests that fail both the access and the refresh path
// proceed anonymously with their stale cookies cleared; a request carrying no
// cookies at all passes through untouched.
func (mw *Middleware) WithSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		access := ReadAccessToken(c)
		refresh := ReadRefreshToken(c)
		if access == "" && refresh == "" {
			return next(c)
		}

		user, pair, err := mw.Manager.Authenticate(c.Request().Context(), access, refresh)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				mw.Cookies.Clear(c)
				return next(c)
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "session validation failed")
		}

		if pair != nil {
			mw.Cookies.SetSession(c, pair)
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func (mw *Middleware) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if CurrentUser(c) == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

func (mw *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := CurrentUser(c)
		if user == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if user.Role != models.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

// BearerOnly authenticates from the Authorization header. Access tokens only,
// no refresh, no cookies written; meant for non-browser API clients.
func (mw *Middleware) BearerOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := ReadBearerToken(c)
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}

		user, pair, err := mw.Manager.Authenticate(c.Request().Context(), token, "")
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "session validation failed")
		}
		if pair != nil {
			// Unreachable without a refresh token, but never hand rotation
			// output to a bearer client.
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		c.Set(userContextKey, user)
		return next(c)
	}
}

// CurrentUser returns the authenticated user attached by WithSession or
// BearerOnly, or nil for anonymous requests.
func CurrentUser(c echo.Context) *models.User {
	if v := c.Get(userContextKey); v != nil {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
