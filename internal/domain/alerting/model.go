package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", apperror.Invalid("unknown severity %q", s)
}

// Status is the alert lifecycle state. Resolved and dismissed are terminal.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusDismissed:
		return Status(s), nil
	}
	return "", apperror.Invalid("unknown alert status %q", s)
}

type AlertType string

const (
	TypeHealthMetric AlertType = "health_metric"
	TypeMessage      AlertType = "message"
	TypeAppointment  AlertType = "appointment"
	TypeSystem       AlertType = "system"
)

func ParseAlertType(s string) (AlertType, error) {
	switch AlertType(s) {
	case TypeHealthMetric, TypeMessage, TypeAppointment, TypeSystem:
		return AlertType(s), nil
	}
	return "", apperror.Invalid("unknown alert type %q", s)
}

// Alert maps to the health_alert table. CauseKey identifies the semantic
// cause used for suppression: "metric:<type>" or "event:<id>".
type Alert struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	SubjectID       uuid.UUID  `db:"subject_id" json:"subject_id"`
	AlertType       AlertType  `db:"alert_type" json:"alert_type"`
	Title           string     `db:"title" json:"title"`
	Message         string     `db:"message" json:"message"`
	Severity        Severity   `db:"severity" json:"severity"`
	Status          Status     `db:"status" json:"status"`
	IsRead          bool       `db:"is_read" json:"is_read"`
	TriggeredAt     time.Time  `db:"triggered_at" json:"triggered_at"`
	RelatedMetricID *uuid.UUID `db:"related_metric_id" json:"related_metric_id,omitempty"`
	CauseKey        string     `db:"cause_key" json:"cause_key"`
	AcknowledgedAt  *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	DismissedAt     *time.Time `db:"dismissed_at" json:"dismissed_at,omitempty"`
	ReadAt          *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Outstanding reports whether a suppresses new alerts for its cause.
func (a *Alert) Outstanding() bool {
	return a.Status == StatusActive && !a.IsRead
}

func MetricCause(metricType string) string { return "metric:" + metricType }

func EventCause(eventID string) string { return "event:" + eventID }

// SuppressionPolicy bounds how far back an outstanding alert for the same
// cause blocks a new one. A zero Window means no time bound.
type SuppressionPolicy struct {
	Name   string
	Window time.Duration
}

// MetricPolicy governs health-metric alerts. The default window is zero:
// any outstanding alert for the metric type suppresses.
func MetricPolicy(window time.Duration) SuppressionPolicy {
	return SuppressionPolicy{Name: "metric", Window: window}
}

// EventPolicy governs collaborator event alerts such as new messages.
func EventPolicy(window time.Duration) SuppressionPolicy {
	return SuppressionPolicy{Name: "event", Window: window}
}

// Since returns the earliest triggered_at that still suppresses, or nil when
// the policy is unbounded.
func (p SuppressionPolicy) Since(now time.Time) *time.Time {
	if p.Window <= 0 {
		return nil
	}
	t := now.Add(-p.Window)
	return &t
}

func (p SuppressionPolicy) String() string {
	if p.Window <= 0 {
		return p.Name + " (while outstanding)"
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Window)
}

// AlertFilter narrows a subject's alert listing.
type AlertFilter struct {
	Status     Status
	UnreadOnly bool
}
