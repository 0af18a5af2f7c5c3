package presence

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/presence", auth.RequireRole(auth.StaffRoles()...))
	staff.GET("/me", h.GetMe)
	staff.PATCH("/me", h.UpdateMe)
	staff.PATCH("/me/last-seen", h.TouchLastSeen)
	staff.PATCH("/me/offline", h.SetOffline)
	staff.GET("/active", h.ListActive)
	staff.GET("/online", h.ListOnline)
	staff.GET("/activity/:activity", h.ListByActivity)
	staff.GET("/typing/:entityType/:entityId", h.ListTyping)

	admin := api.Group("/presence", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/cleanup", h.Cleanup)
}

// updateRequest is the PATCH /presence/me body. Absent fields keep their
// stored values.
type updateRequest struct {
	Status           *string `json:"status"`
	CurrentPage      *string `json:"current_page"`
	CurrentActivity  *string `json:"current_activity"`
	IsTyping         *bool   `json:"is_typing"`
	TypingEntityID   *string `json:"typing_entity_id"`
	TypingEntityType *string `json:"typing_entity_type"`
}

func (h *Handler) GetMe(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	rec, err := h.svc.Get(c.Request().Context(), ident)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch presence")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	up := Update{
		CurrentPage:      req.CurrentPage,
		CurrentActivity:  req.CurrentActivity,
		IsTyping:         req.IsTyping,
		TypingEntityID:   req.TypingEntityID,
		TypingEntityType: req.TypingEntityType,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		up.Status = &status
	}

	rec, err := h.svc.UpdateSelf(c.Request().Context(), ident, up)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) TouchLastSeen(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.TouchLastSeen(c.Request().Context(), ident); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update last seen")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "last seen updated"})
}

func (h *Handler) SetOffline(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.SetOffline(c.Request().Context(), ident); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set offline")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "user set offline"})
}

func (h *Handler) ListActive(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Status: Status(c.QueryParam("status")),
		Role:   c.QueryParam("role"),
	}

	records, total, err := h.svc.ListActive(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListOnline(c echo.Context) error {
	records, err := h.svc.ListOnline(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch online users")
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) ListByActivity(c echo.Context) error {
	records, err := h.svc.ListByActivity(c.Request().Context(), c.Param("activity"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch users by activity")
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) ListTyping(c echo.Context) error {
	records, err := h.svc.ListTyping(c.Request().Context(), c.Param("entityId"), c.Param("entityType"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch typing users")
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) Cleanup(c echo.Context) error {
	var req struct {
		MinutesOld *int `json:"minutes_old"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	minutes := 30
	if req.MinutesOld != nil {
		if *req.MinutesOld < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "minutes_old must be a positive integer")
		}
		minutes = *req.MinutesOld
	}

	count, err := h.svc.Cleanup(c.Request().Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clean up presence")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"count": count})
}
