package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dpashkov/noteboard/internal/logging"
	"github.com/dpashkov/noteboard/internal/models"
	"github.com/dpashkov/noteboard/internal/session"
	"github.com/dpashkov/noteboard/internal/util"
)

// UserHandler holds the admin-only user management routes.
type UserHandler struct {
	DB       *gorm.DB
	Sessions *session.Manager
}

func (h *UserHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Paginate(page, size)

	var users []models.User
	if err := h.DB.WithContext(ctx).
		Order("id").
		Offset(offset).Limit(limit).
		Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

func (h *UserHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.WithContext(ctx).Where("id = ?", uint(id)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, user)
}

// Patch updates role and/or status. Moving a user into a disallowed status
// also revokes every session they hold.
func (h *UserHandler) Patch(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_patch")

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req struct {
		Role   *string `json:"role"`
		Status *string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user models.User
	if err := h.DB.WithContext(ctx).Where("id = ?", uint(id)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if req.Role != nil {
		if !models.ValidRole(*req.Role) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
		}
		user.Role = *req.Role
	}
	if req.Status != nil {
		if !models.ValidStatus(*req.Status) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		user.Status = *req.Status
	}

	if err := h.DB.WithContext(ctx).Save(&user).Error; err != nil {
		l.Error("user_patch_failed", "error", err, "user_id", user.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if req.Status != nil && models.StatusDisallowed(user.Status) {
		if err := h.Sessions.RevokeAll(ctx, user.ID); err != nil {
			l.Error("user_patch_revoke_failed", "error", err, "user_id", user.ID)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
	}

	l.Info("user_patched", "user_id", user.ID)
	return c.JSON(http.StatusOK, user)
}
