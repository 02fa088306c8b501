package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dpashkov/noteboard/internal/handlers"
	"github.com/dpashkov/noteboard/internal/session"
)

type Deps struct {
	AuthHandler *handlers.AuthHandler
	NoteHandler *handlers.NoteHandler
	UserHandler *handlers.UserHandler
	Sessions    *session.Middleware
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	v1 := e.Group("/api/v1")

	// Refresh and sign-out consume the presented refresh token themselves,
	// so they must not run behind WithSession: its rotation would eat the
	// cookie before the handler sees it.
	auth := v1.Group("/auth")
	auth.POST("/sign-up", d.AuthHandler.SignUp)
	auth.POST("/sign-in", d.AuthHandler.SignIn)
	auth.POST("/sign-out", d.AuthHandler.SignOut)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.GET("/me", d.AuthHandler.Me, d.Sessions.WithSession)
	auth.POST("/change-password", d.AuthHandler.ChangePassword, d.Sessions.WithSession, d.Sessions.RequireUser)
	auth.POST("/revoke-all", d.AuthHandler.RevokeAll, d.Sessions.WithSession, d.Sessions.RequireUser)

	notes := v1.Group("/notes", d.Sessions.WithSession, d.Sessions.RequireUser)
	notes.GET("", d.NoteHandler.List)
	notes.POST("", d.NoteHandler.Create)
	notes.GET("/search", d.NoteHandler.Search)
	notes.GET("/:id", d.NoteHandler.Get)
	notes.PATCH("/:id", d.NoteHandler.Patch)
	notes.DELETE("/:id", d.NoteHandler.Delete)

	admin := v1.Group("/users", d.Sessions.WithSession, d.Sessions.RequireAdmin)
	admin.GET("", d.UserHandler.List)
	admin.GET("/:id", d.UserHandler.Get)
	admin.PATCH("/:id", d.UserHandler.Patch)

	// Bearer-only surface for non-browser clients: access tokens via the
	// Authorization header, no cookies, no refresh.
	api := e.Group("/api/v1/token", d.Sessions.BearerOnly)
	api.GET("/me", d.AuthHandler.Me)
	api.GET("/notes", d.NoteHandler.List)
}
