package alerting

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
	"github.com/ehr/healthmetrics/internal/platform/auth"
	"github.com/ehr/healthmetrics/pkg/pagination"
)

type Handler struct {
	svc     *Service
	emitter *Emitter
}

func NewHandler(svc *Service, emitter *Emitter) *Handler {
	return &Handler{svc: svc, emitter: emitter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	g.POST("/subjects/:subject_id/evaluations", h.Evaluate)
	g.GET("/subjects/:subject_id/alerts", h.ListAlerts)
	g.GET("/subjects/:subject_id/alerts/unread-count", h.UnreadCount)
	g.POST("/alerts/:id/acknowledge", h.Acknowledge)
	g.POST("/alerts/:id/resolve", h.Resolve)
	g.POST("/alerts/:id/dismiss", h.Dismiss)
	g.POST("/alerts/:id/read", h.MarkRead)

	staff := api.Group("", auth.RequireRole(auth.RoleProvider))
	staff.POST("/alerts/events", h.EmitEvent)
}

type evaluateRequest struct {
	MetricType string     `json:"metric_type"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

func (h *Handler) Evaluate(c echo.Context) error {
	subjectID, err := accessibleSubject(c)
	if err != nil {
		return err
	}
	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Value == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	ev, err := h.emitter.EvaluateAndAlert(c.Request().Context(), subjectID, req.MetricType, *req.Value, req.Unit, ts)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	subjectID, err := accessibleSubject(c)
	if err != nil {
		return err
	}
	var f AlertFilter
	if st := c.QueryParam("status"); st != "" {
		if f.Status, err = ParseStatus(st); err != nil {
			return apperror.ToHTTP(err)
		}
	}
	f.UnreadOnly = c.QueryParam("unread") == "true"

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), subjectID, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	subjectID, err := accessibleSubject(c)
	if err != nil {
		return err
	}
	n, err := h.svc.CountUnread(c.Request().Context(), subjectID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) Acknowledge(c echo.Context) error { return h.lifecycle(c, h.svc.Acknowledge) }
func (h *Handler) Resolve(c echo.Context) error     { return h.lifecycle(c, h.svc.Resolve) }
func (h *Handler) Dismiss(c echo.Context) error     { return h.lifecycle(c, h.svc.Dismiss) }
func (h *Handler) MarkRead(c echo.Context) error    { return h.lifecycle(c, h.svc.MarkRead) }

func (h *Handler) lifecycle(c echo.Context, op func(ctx context.Context, id, actorID uuid.UUID) (*Alert, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, ok := auth.SubjectFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "only the alert owner may change it")
	}
	a, err := op(c.Request().Context(), id, actor)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) EmitEvent(c echo.Context) error {
	var req EventAlert
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, created, err := h.emitter.EmitEventAlert(c.Request().Context(), req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if !created {
		return c.JSON(http.StatusOK, map[string]interface{}{"suppressed": true})
	}
	return c.JSON(http.StatusCreated, a)
}

func accessibleSubject(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("subject_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid subject_id")
	}
	if !auth.CanAccessSubject(c.Request().Context(), id) {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "access to subject denied")
	}
	return id, nil
}
