package monitoring

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
	"github.com/ehr/healthmetrics/internal/platform/auth"
	"github.com/ehr/healthmetrics/internal/platform/cache"
	"github.com/ehr/healthmetrics/internal/platform/telemetry"
)

// Handler serves subject status and fleet rollups. Rollup responses are
// cached here, outside the engine, for cacheTTL.
type Handler struct {
	engine   *Engine
	cache    cache.Store
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewHandler(engine *Engine, store cache.Store, cacheTTL time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		cache:    store,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("component", "monitoring-http").Logger(),
		now:      time.Now,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	g.GET("/subjects/:subject_id/status", h.SubjectStatus)

	staff := api.Group("", auth.RequireRole(auth.RoleProvider))
	staff.GET("/fleet/rollup", h.FleetRollup)
}

func (h *Handler) SubjectStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("subject_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subject_id")
	}
	if !auth.CanAccessSubject(c.Request().Context(), id) {
		return echo.NewHTTPError(http.StatusForbidden, "access to subject denied")
	}
	var asOf time.Time
	if raw := c.QueryParam("as_of"); raw != "" {
		if asOf, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid as_of: expected RFC3339")
		}
	}
	st, err := h.engine.SubjectStatus(c.Request().Context(), id, asOf)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) FleetRollup(c echo.Context) error {
	ids, err := parseSubjectIDs(c.QueryParam("subject_ids"))
	if err != nil {
		return err
	}
	start, err := queryTime(c, "start")
	if err != nil {
		return err
	}
	end, err := queryTime(c, "end")
	if err != nil {
		return err
	}

	// Period windows end at now truncated to the cache TTL so polls within
	// one TTL share a key.
	now := h.now()
	if h.cacheTTL > 0 {
		now = now.Truncate(h.cacheTTL)
	}
	w, err := ResolveWindow(c.QueryParam("period"), start, end, now)
	if err != nil {
		return apperror.ToHTTP(err)
	}

	ctx := c.Request().Context()
	key := rollupKey(ids, w)
	if h.cache != nil && h.cacheTTL > 0 {
		if body, ok, err := h.cache.Get(ctx, key); err != nil {
			telemetry.RollupCache.WithLabelValues("error").Inc()
			h.logger.Warn().Err(err).Msg("rollup cache read failed")
		} else if ok {
			telemetry.RollupCache.WithLabelValues("hit").Inc()
			return c.JSONBlob(http.StatusOK, body)
		} else {
			telemetry.RollupCache.WithLabelValues("miss").Inc()
		}
	}

	out, err := h.engine.Rollup(ctx, ids, w)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	body, err := json.Marshal(out)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if h.cache != nil && h.cacheTTL > 0 {
		if err := h.cache.Set(ctx, key, body, h.cacheTTL); err != nil {
			h.logger.Warn().Err(err).Msg("rollup cache write failed")
		}
	}
	return c.JSONBlob(http.StatusOK, body)
}

func parseSubjectIDs(raw string) ([]uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid subject id "+part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
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

// rollupKey identifies a rollup by its sorted, deduplicated subjects and
// resolved window.
func rollupKey(ids []uuid.UUID, w Window) string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id.String()] = struct{}{}
	}
	parts := make([]string, 0, len(set))
	for id := range set {
		parts = append(parts, id)
	}
	sort.Strings(parts)
	subjects := "all"
	if len(parts) > 0 {
		subjects = strings.Join(parts, ",")
	}
	return "rollup:" + w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339) + ":" + subjects
}
