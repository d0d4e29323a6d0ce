package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/platform/auth"
)

// AuditEntry records one access to subject health data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	SubjectID  string
	Resource   string
	Action     string // read, create, delete, or the alert transition
	Route      string
	Method     string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request after it completes: who touched which
// subject's data, and how. It must run after authentication and routing so
// that identity and route parameters are available.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			ctx := req.Context()
			rid, _ := c.Get("request_id").(string)
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				SubjectID:  c.Param("subject_id"),
				Resource:   resourceOf(c.Path()),
				Action:     actionOf(req.Method, c.Path()),
				Route:      c.Path(),
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				RequestID:  rid,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", rid).Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "health_data_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("subject_id", entry.SubjectID).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("health_data_access")

			return err
		}
	}
}

// resourceOf names the resource a route addresses:
//
//	/api/v1/subjects/:subject_id/metrics/latest -> metrics
//	/api/v1/alerts/:id/acknowledge              -> alerts
//	/api/v1/fleet/rollup                        -> fleet
func resourceOf(route string) string {
	segments := strings.Split(strings.TrimPrefix(route, "/api/v1/"), "/")
	if len(segments) >= 3 && segments[0] == "subjects" {
		return segments[2]
	}
	if len(segments) == 2 && segments[0] == "subjects" {
		return "subjects"
	}
	if segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

// actionOf maps the method to an action; POSTs to an alert transition
// endpoint are recorded as that transition.
func actionOf(method, route string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodDelete:
		return "delete"
	case http.MethodPost:
		if strings.HasPrefix(route, "/api/v1/alerts/:id/") {
			return strings.TrimPrefix(route, "/api/v1/alerts/:id/")
		}
		return "create"
	default:
		return "update"
	}
}
