package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dpashkov/noteboard/internal/events"
	"github.com/dpashkov/noteboard/internal/hash"
	"github.com/dpashkov/noteboard/internal/logging"
	"github.com/dpashkov/noteboard/internal/models"
	"github.com/dpashkov/noteboard/internal/session"
)

type AuthHandler struct {
	DB       *gorm.DB
	Sessions *session.Manager
	Cookies  session.CookieWriter
	Producer *events.Producer
}

func (h *AuthHandler) SignUp(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_sign_up")

	var req struct {
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if len(req.Username) < 3 || len(req.Username) > 30 {
		return echo.NewHTTPError(http.StatusBadRequest, "username must be 3-30 characters")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "password must be at least 8 characters")
	}

	// Checked separately so the client can tell which field collided.
	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", req.Username).Count(&count).Error; err != nil {
		l.Error("sign_up_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "username already taken",
			"conflict": "username",
		})
	}
	if err := h.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", req.Email).Count(&count).Error; err != nil {
		l.Error("sign_up_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "email already registered",
			"conflict": "email",
		})
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("sign_up_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	user := models.User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race with a concurrent sign-up; re-check to tell
			// the client which field collided.
			return h.signUpConflict(c, req.Username)
		}
		l.Error("sign_up_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	h.publish(c, fmt.Sprint(user.ID), echo.Map{
		"type":     events.TypeUserRegistered,
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("sign_up_successful", "user_id", user.ID)
	return c.JSON(http.StatusCreated, user)
}

// signUpConflict answers a duplicate-key insert by naming the colliding
// field, matching the shape of the pre-insert checks.
func (h *AuthHandler) signUpConflict(c echo.Context, username string) error {
	ctx := c.Request().Context()

	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).Count(&count).Error; err == nil && count > 0 {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "username already taken",
			"conflict": "username",
		})
	}
	return c.JSON(http.StatusConflict, echo.Map{
		"error":    "email already registered",
		"conflict": "email",
	})
}

func (h *AuthHandler) SignIn(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_sign_in")

	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Identifier == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and password are required")
	}

	// Unknown identifier and wrong password produce the same answer.
	var user models.User
	err := h.DB.WithContext(ctx).
		Where("username = ? OR email = ?", req.Identifier, req.Identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("sign_in_failed", "status", 401, "reason", "unknown identifier")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		l.Error("sign_in_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("sign_in_failed", "status", 401, "reason", "password mismatch", "user_id", user.ID)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	if models.StatusDisallowed(user.Status) {
		l.Warn("sign_in_failed", "status", 403, "user_id", user.ID, "user_status", user.Status)
		return echo.NewHTTPError(http.StatusForbidden, "account is not allowed to sign in")
	}

	pair, err := h.Sessions.SignIn(ctx, &user)
	if err != nil {
		l.Error("sign_in_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	h.Cookies.SetSession(c, pair)

	h.publish(c, fmt.Sprint(user.ID), echo.Map{
		"type":     events.TypeUserSignedIn,
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("sign_in_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) SignOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_sign_out")

	refreshToken := session.ReadRefreshToken(c)

	// Resolve the session owner before the row disappears so the event can
	// still name it.
	var userID uint
	if refreshToken != "" {
		if row, err := h.Sessions.Store.FindByToken(ctx, refreshToken); err == nil && row != nil {
			userID = row.UserID
		}
	}

	if err := h.Sessions.SignOut(ctx, refreshToken); err != nil {
		h.Cookies.Clear(c)
		l.Error("sign_out_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	h.Cookies.Clear(c)

	if userID != 0 {
		h.publish(c, fmt.Sprint(userID), echo.Map{
			"type":    events.TypeUserSignedOut,
			"user_id": userID,
		})
	}

	l.Info("sign_out_successful")
	return c.JSON(http.StatusOK, echo.Map{"message": "signed out"})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	refreshToken := session.ReadRefreshToken(c)
	if refreshToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	user, pair, err := h.Sessions.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			h.Cookies.Clear(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}
		l.Error("refresh_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	h.Cookies.SetSession(c, pair)
	l.Info("refresh_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) Me(c echo.Context) error {
	user := session.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	user := session.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if len(req.NewPassword) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "new password must be at least 8 characters")
	}

	if err := h.Sessions.ChangePassword(ctx, user.ID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusBadRequest, "incorrect current password")
		}
		l.Error("change_password_failed", "error", err, "user_id", user.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	// All sessions were revoked, including this one.
	h.Cookies.Clear(c)

	h.publish(c, fmt.Sprint(user.ID), echo.Map{
		"type":    events.TypePasswordChanged,
		"user_id": user.ID,
	})

	l.Info("change_password_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

func (h *AuthHandler) RevokeAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_revoke_all")

	user := session.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	if err := h.Sessions.RevokeAll(ctx, user.ID); err != nil {
		l.Error("revoke_all_failed", "error", err, "user_id", user.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	h.Cookies.Clear(c)

	h.publish(c, fmt.Sprint(user.ID), echo.Map{
		"type":    events.TypeSessionsRevoked,
		"user_id": user.ID,
	})

	l.Info("revoke_all_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "all sessions revoked"})
}

// publish sends an auth lifecycle event; failures are logged, never fatal to
// the request.
func (h *AuthHandler) publish(c echo.Context, key string, event echo.Map) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Producer.Publish(ctx, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}
