package alerting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/domain/metrics"
	"github.com/ehr/healthmetrics/internal/platform/apperror"
	"github.com/ehr/healthmetrics/internal/platform/telemetry"
)

// Publisher receives every alert the emitter writes.
type Publisher interface {
	PublishAlert(ctx context.Context, a *Alert) error
}

// Evaluation is the outcome of classifying one reading.
type Evaluation struct {
	Tier       metrics.Tier `json:"tier"`
	Alert      *Alert       `json:"alert,omitempty"`
	Suppressed bool         `json:"suppressed"`
}

// EventAlert is an alert raised by a collaborator such as messaging or
// scheduling. EventID is the originating event and the suppression cause.
type EventAlert struct {
	SubjectID uuid.UUID `json:"subject_id"`
	EventID   string    `json:"event_id"`
	AlertType string    `json:"alert_type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
}

// Emitter classifies readings and writes alerts, suppressing a new alert
// whenever one is outstanding for the same subject and cause.
type Emitter struct {
	repo         AlertRepository
	ranges       metrics.RangeTable
	metricPolicy SuppressionPolicy
	eventPolicy  SuppressionPolicy
	publisher    Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewEmitter(repo AlertRepository, ranges metrics.RangeTable, metricPolicy, eventPolicy SuppressionPolicy, logger zerolog.Logger) *Emitter {
	return &Emitter{
		repo:         repo,
		ranges:       ranges,
		metricPolicy: metricPolicy,
		eventPolicy:  eventPolicy,
		logger:       logger.With().Str("component", "alert-emitter").Logger(),
		now:          time.Now,
	}
}

// SetPublisher attaches the push channel for new alerts.
func (e *Emitter) SetPublisher(p Publisher) {
	e.publisher = p
}

// EvaluateSample is the ingestion hook. The sample becomes the alert's
// related metric.
func (e *Emitter) EvaluateSample(ctx context.Context, s *metrics.Sample) error {
	id := s.ID
	_, err := e.evaluate(ctx, s.SubjectID, s.MetricType, s.Value, s.Unit, s.Timestamp, &id)
	return err
}

// EvaluateAndAlert classifies a reading and emits an alert when it is outside
// the normal band.
func (e *Emitter) EvaluateAndAlert(ctx context.Context, subjectID uuid.UUID, metricType string, value float64, unit string, ts time.Time) (*Evaluation, error) {
	if subjectID == uuid.Nil {
		return nil, apperror.Invalid("subject_id is required")
	}
	mt, err := metrics.ParseMetricType(metricType)
	if err != nil {
		return nil, err
	}
	sample, err := metrics.NewSample(subjectID, string(mt), value, unit, ts, "")
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, subjectID, mt, sample.Value, sample.Unit, sample.Timestamp, nil)
}

func (e *Emitter) evaluate(ctx context.Context, subjectID uuid.UUID, mt metrics.MetricType, value float64, unit string, ts time.Time, related *uuid.UUID) (*Evaluation, error) {
	tier := e.ranges.Classify(mt, value)
	ev := &Evaluation{Tier: tier}
	if tier == metrics.TierNormal {
		return ev, nil
	}

	entry, _ := e.ranges.Lookup(mt)
	severity := SeverityHigh
	title := "Abnormal " + mt.DisplayName()
	if tier == metrics.TierCritical {
		severity = SeverityCritical
		title = "Critical " + mt.DisplayName()
	}

	a := &Alert{
		SubjectID:       subjectID,
		AlertType:       TypeHealthMetric,
		Title:           title,
		Message:         metricMessage(mt, value, unit, entry),
		Severity:        severity,
		Status:          StatusActive,
		TriggeredAt:     ts.UTC(),
		RelatedMetricID: related,
		CauseKey:        MetricCause(string(mt)),
	}
	created, err := e.emit(ctx, a, e.metricPolicy)
	if err != nil {
		return nil, err
	}
	if created {
		ev.Alert = a
	} else {
		ev.Suppressed = true
	}
	return ev, nil
}

// EmitEventAlert writes a collaborator alert under the event suppression
// policy. It returns the alert and false when an equivalent alert for the
// same event is still outstanding within the window.
func (e *Emitter) EmitEventAlert(ctx context.Context, in EventAlert) (*Alert, bool, error) {
	if in.SubjectID == uuid.Nil {
		return nil, false, apperror.Invalid("subject_id is required")
	}
	if in.EventID == "" {
		return nil, false, apperror.Invalid("event_id is required")
	}
	if in.Title == "" {
		return nil, false, apperror.Invalid("title is required")
	}
	at := TypeMessage
	if in.AlertType != "" {
		var err error
		if at, err = ParseAlertType(in.AlertType); err != nil {
			return nil, false, err
		}
	}
	sev := SeverityMedium
	if in.Severity != "" {
		var err error
		if sev, err = ParseSeverity(in.Severity); err != nil {
			return nil, false, err
		}
	}

	a := &Alert{
		SubjectID:   in.SubjectID,
		AlertType:   at,
		Title:       in.Title,
		Message:     in.Message,
		Severity:    sev,
		Status:      StatusActive,
		TriggeredAt: e.now().UTC(),
		CauseKey:    EventCause(in.EventID),
	}
	created, err := e.emit(ctx, a, e.eventPolicy)
	if err != nil {
		return nil, false, err
	}
	return a, created, nil
}

func (e *Emitter) emit(ctx context.Context, a *Alert, policy SuppressionPolicy) (bool, error) {
	created, err := e.repo.CreateUnlessOutstanding(ctx, a, policy.Since(e.now()))
	if err != nil {
		return false, err
	}

	log := e.logger.With().
		Str("subject_id", a.SubjectID.String()).
		Str("cause", a.CauseKey).
		Str("severity", string(a.Severity)).
		Str("policy", policy.Name).
		Logger()

	if !created {
		telemetry.AlertsSuppressed.WithLabelValues(policy.Name).Inc()
		log.Debug().Msg("alert suppressed; equivalent alert outstanding")
		return false, nil
	}
	telemetry.AlertsEmitted.WithLabelValues(policy.Name, string(a.Severity)).Inc()
	log.Info().Str("alert_id", a.ID.String()).Msg("alert emitted")

	if e.publisher != nil {
		if err := e.publisher.PublishAlert(ctx, a); err != nil {
			log.Warn().Err(err).Msg("alert push failed")
		}
	}
	return true, nil
}

// metricMessage describes the reading in the caller's unit and the normal
// range in the catalog unit the range table is expressed in.
func metricMessage(mt metrics.MetricType, value float64, unit string, r metrics.RangeEntry) string {
	rangeUnit := unit
	if def, ok := mt.Definition(); ok && def.DefaultUnit != "" {
		rangeUnit = def.DefaultUnit
	}
	if unit == "" {
		unit = rangeUnit
	}
	return fmt.Sprintf("%s reading of %s %s is outside the normal range (%s-%s %s)",
		mt.DisplayName(), formatValue(value), unit, formatValue(r.Min), formatValue(r.Max), rangeUnit)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
