package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dpashkov/noteboard/internal/logging"
	"github.com/dpashkov/noteboard/internal/models"
	"github.com/dpashkov/noteboard/internal/search"
	"github.com/dpashkov/noteboard/internal/session"
	"github.com/dpashkov/noteboard/internal/util"
)

// NoteHandler is a thin collaborator over the session engine: every route is
// owner-scoped through the current user the middleware attached.
type NoteHandler struct {
	DB    *gorm.DB
	Index *search.NoteIndex
}

func (h *NoteHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	user := session.CurrentUser(c)

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Paginate(page, size)

	var notes []models.Note
	if err := h.DB.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("updated_at DESC").
		Offset(offset).Limit(limit).
		Find(&notes).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, echo.Map{"notes": notes})
}

func (h *NoteHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	user := session.CurrentUser(c)

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if len(req.Title) < 1 || len(req.Title) > 255 {
		return echo.NewHTTPError(http.StatusBadRequest, "title must be 1-255 characters")
	}

	note := models.Note{
		UserID:  user.ID,
		Title:   req.Title,
		Content: req.Content,
	}
	if err := h.DB.WithContext(ctx).Create(&note).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if err := h.Index.IndexNote(ctx, &note); err != nil {
		logging.FromContext(ctx).Error("note index error", "error", err, "note_id", note.ID)
	}

	return c.JSON(http.StatusCreated, note)
}

func (h *NoteHandler) Get(c echo.Context) error {
	note, err := h.ownedNote(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, note)
}

func (h *NoteHandler) Patch(c echo.Context) error {
	ctx := c.Request().Context()

	note, err := h.ownedNote(c)
	if err != nil {
		return err
	}

	var req struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if req.Title != nil {
		if len(*req.Title) < 1 || len(*req.Title) > 255 {
			return echo.NewHTTPError(http.StatusBadRequest, "title must be 1-255 characters")
		}
		note.Title = *req.Title
	}
	if req.Content != nil {
		note.Content = *req.Content
	}

	if err := h.DB.WithContext(ctx).Save(note).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if err := h.Index.IndexNote(ctx, note); err != nil {
		logging.FromContext(ctx).Error("note index error", "error", err, "note_id", note.ID)
	}

	return c.JSON(http.StatusOK, note)
}

func (h *NoteHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	note, err := h.ownedNote(c)
	if err != nil {
		return err
	}

	if err := h.DB.WithContext(ctx).Delete(note).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if err := h.Index.DeleteNote(ctx, note.ID); err != nil {
		logging.FromContext(ctx).Error("note index error", "error", err, "note_id", note.ID)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *NoteHandler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	user := session.CurrentUser(c)

	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Paginate(page, size)

	if h.Index == nil {
		// No Elasticsearch configured, match in the database instead.
		pattern := search.LikePattern(q)
		var notes []models.Note
		if err := h.DB.WithContext(ctx).
			Where("user_id = ? AND (title LIKE ? OR content LIKE ?)", user.ID, pattern, pattern).
			Order("updated_at DESC").
			Offset(offset).Limit(limit).
			Find(&notes).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
		return c.JSON(http.StatusOK, echo.Map{"total": len(notes), "notes": notes})
	}

	total, notes, err := h.Index.Search(ctx, user.ID, q, offset, limit)
	if err != nil {
		logging.FromContext(ctx).Error("note search error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "notes": notes})
}

// ownedNote loads the :id note and hides other users' notes behind a 404.
func (h *NoteHandler) ownedNote(c echo.Context) (*models.Note, error) {
	user := session.CurrentUser(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid note id")
	}

	var note models.Note
	if err := h.DB.WithContext(c.Request().Context()).
		Where("id = ? AND user_id = ?", uint(id), user.ID).
		First(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "note not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return &note, nil
}
