package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
	"github.com/ehr/healthmetrics/internal/platform/auth"
	"github.com/ehr/healthmetrics/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	g.GET("/metric-types", h.ListMetricTypes)
	g.POST("/subjects/:subject_id/metrics", h.IngestSample)
	g.GET("/subjects/:subject_id/metrics", h.ListSamples)
	g.GET("/subjects/:subject_id/metrics/latest", h.LatestSamples)
	g.DELETE("/subjects/:subject_id/metrics/:id", h.DeleteSample)
}

type metricTypeView struct {
	Definition
	Range *RangeEntry `json:"range,omitempty"`
}

func (h *Handler) ListMetricTypes(c echo.Context) error {
	defs := Catalog()
	out := make([]metricTypeView, 0, len(defs))
	for _, d := range defs {
		v := metricTypeView{Definition: d}
		if e, ok := h.svc.Ranges().Lookup(d.Type); ok {
			v.Range = &e
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) IngestSample(c echo.Context) error {
	subjectID, err := accessibleSubject(c)
	if err != nil {
		return err
	}
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) && ute.Field == "value" {
			return apperror.ToHTTP(ErrInvalidValue)
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.SubjectID = subjectID
	sample, err := h.svc.Ingest(c.Request().Context(), req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, sample)
}

func (h *Handler) ListSamples(c echo.Context) error {
	subjectID, err := accessibleSubject(c)
	if err != nil {
		return err
	}
	var f SampleFilter
	if mt := c.QueryParam("metric_type"); mt != "" {
		t, err := ParseMetricType(mt)
		if err != nil {
			return apperror.ToHTTP(err)
		}
		f.MetricType = t
	}
	if f.Start, err = optionalTime(c, "start"); err != nil {
		return err
	}
	if f.End, err = optionalTime(c, "end"); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSamples(c.Request().Context(), subjectID, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) LatestSamples(c echo.Context) error {
	subjectID, err := accessibleSubject(c)
	if err != nil {
		return err
	}
	asOf, err := optionalTime(c, "as_of")
	if err != nil {
		return err
	}
	var at time.Time
	if asOf != nil {
		at = *asOf
	}
	latest, err := h.svc.Latest(c.Request().Context(), subjectID, at)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, latest)
}

func (h *Handler) DeleteSample(c echo.Context) error {
	if _, err := accessibleSubject(c); err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, ok := auth.SubjectFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "only the owning subject may delete a sample")
	}
	if err := h.svc.DeleteSample(c.Request().Context(), id, actor); err != nil {
		return apperror.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// accessibleSubject parses :subject_id and checks the caller may read it.
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

func optionalTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC3339")
	}
	return &t, nil
}
