package notification

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/realtime"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/notifications", auth.RequireRole(auth.StaffRoles()...))
	staff.GET("", h.List)
	staff.GET("/stats", h.GetStats)
	staff.GET("/unread-count", h.GetUnreadCount)
	staff.GET("/:id", h.Get)
	staff.PATCH("/:id/read", h.MarkRead)
	staff.PATCH("/read-all", h.MarkAllRead)
	staff.DELETE("/:id", h.Delete)

	admin := api.Group("/notifications", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.Create)
	admin.DELETE("/cleanup/old", h.Cleanup)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	f := Filter{
		Type:     realtime.NotificationType(c.QueryParam("type")),
		Priority: realtime.Priority(c.QueryParam("priority")),
	}
	if raw := c.QueryParam("is_read"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "is_read must be a boolean")
		}
		f.IsRead = &isRead
	}

	records, total, err := h.svc.ListForUser(c.Request().Context(), ident.UserID, f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	stats, err := h.svc.Stats(c.Request().Context(), ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch notification stats")
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetUnreadCount(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	count, err := h.svc.UnreadCount(c.Request().Context(), ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch unread count")
	}
	return c.JSON(http.StatusOK, map[string]int{"unread_count": count})
}

func (h *Handler) Get(c echo.Context) error {
	rec, err := h.fetchOwned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) MarkRead(c echo.Context) error {
	rec, err := h.fetchOwned(c)
	if err != nil {
		return err
	}

	updated, err := h.svc.MarkRead(c.Request().Context(), rec.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	if updated == nil {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	count, err := h.svc.MarkAllRead(c.Request().Context(), ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notifications read")
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) Delete(c echo.Context) error {
	rec, err := h.fetchOwned(c)
	if err != nil {
		return err
	}

	deleted, err := h.svc.Delete(c.Request().Context(), rec.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete notification")
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Cleanup(c echo.Context) error {
	var req struct {
		DaysOld *int `json:"days_old"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	days := 30
	if req.DaysOld != nil {
		if *req.DaysOld < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "days_old must be a positive integer")
		}
		days = *req.DaysOld
	}

	count, err := h.svc.Cleanup(c.Request().Context(), days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clean up notifications")
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

// fetchOwned loads the :id notification and enforces that non-admin callers
// only touch their own records.
func (h *Handler) fetchOwned(c echo.Context) (*Record, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
	}

	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch notification")
	}
	if rec == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}

	ident := auth.IdentityFromContext(c.Request().Context())
	if ident.Role != auth.RoleAdmin && rec.UserID != ident.UserID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your notification")
	}
	return rec, nil
}
