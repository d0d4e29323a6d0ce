package monitoring

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/healthmetrics/internal/domain/metrics"
	"github.com/ehr/healthmetrics/internal/platform/apperror"
	"github.com/ehr/healthmetrics/internal/platform/telemetry"
)

// SampleReader is the read side of the sample store the engine needs.
type SampleReader interface {
	LatestBySubjects(ctx context.Context, subjectIDs []uuid.UUID, asOf time.Time) ([]*metrics.Sample, error)
	LatestInWindow(ctx context.Context, subjectIDs []uuid.UUID, start, end time.Time) ([]*metrics.Sample, error)
	ListInWindow(ctx context.Context, subjectIDs []uuid.UUID, start, end time.Time) ([]*metrics.Sample, error)
	ListSubjects(ctx context.Context) ([]uuid.UUID, error)
}

// MetricSummary describes one metric type across the fleet. The statistics
// cover each subject's latest value inside the window; TimeSeries covers every
// sample in the window.
type MetricSummary struct {
	Stats
	Count        int               `json:"count"`
	PatientCount int               `json:"patient_count"`
	TimeSeries   map[string]Bucket `json:"time_series"`
}

// PatientSnapshot is one subject's row in a rollup.
type PatientSnapshot struct {
	SubjectID uuid.UUID                      `json:"subject_id"`
	Health    SubjectHealthStatus            `json:"health"`
	Latest    map[metrics.MetricType]float64 `json:"latest"`
}

type FleetRollup struct {
	TotalPatients       int                                   `json:"total_patients"`
	PatientsWithMetrics int                                   `json:"patients_with_metrics"`
	MetricSummary       map[metrics.MetricType]*MetricSummary `json:"metric_summary"`
	PatientHealthStatus map[uuid.UUID]SubjectHealthStatus     `json:"patient_health_status"`
	StatusCounts        map[HealthStatus]int                  `json:"status_counts"`
	Patients            []PatientSnapshot                     `json:"patients"`
	Window              Window                                `json:"window"`
	GeneratedAt         time.Time                             `json:"generated_at"`
}

// Engine computes per-subject status and fleet rollups. It holds no state
// between calls; every result is recomputed from the sample store.
type Engine struct {
	samples SampleReader
	ranges  metrics.RangeTable
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

func NewEngine(samples SampleReader, ranges metrics.RangeTable, timeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		samples: samples,
		ranges:  ranges,
		timeout: timeout,
		logger:  logger.With().Str("component", "fleet-rollup").Logger(),
		now:     time.Now,
	}
}

// SubjectStatus derives the subject's tag from its latest value per metric
// type at or before asOf. A zero asOf means now.
func (e *Engine) SubjectStatus(ctx context.Context, subjectID uuid.UUID, asOf time.Time) (*SubjectHealthStatus, error) {
	if subjectID == uuid.Nil {
		return nil, apperror.Invalid("subject_id is required")
	}
	if asOf.IsZero() {
		asOf = e.now()
	}
	latest, err := e.samples.LatestBySubjects(ctx, []uuid.UUID{subjectID}, asOf)
	if err != nil {
		return nil, apperror.Unavailable("subject status", err)
	}
	values := make(map[metrics.MetricType]float64, len(latest))
	for _, s := range latest {
		values[s.MetricType] = s.Value
	}
	st := StatusFor(values, e.ranges)
	return &st, nil
}

// Rollup computes fleet statistics for subjectIDs over w. An empty list means
// every subject with data. The whole computation shares one time budget; a
// timeout or store failure returns ErrUnavailable and never a partial result.
func (e *Engine) Rollup(ctx context.Context, subjectIDs []uuid.UUID, w Window) (*FleetRollup, error) {
	start := e.now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.rollup(ctx, subjectIDs, w)
	telemetry.RollupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "store"
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			reason = "timeout"
			err = apperror.Unavailable("fleet rollup exceeded its time budget", ctx.Err())
		case errors.Is(ctx.Err(), context.Canceled):
			reason = "canceled"
			err = apperror.Unavailable("fleet rollup canceled", ctx.Err())
		}
		telemetry.RollupFailures.WithLabelValues(reason).Inc()
		e.logger.Warn().Err(err).Str("reason", reason).Int("subjects", len(subjectIDs)).Msg("fleet rollup failed")
		return nil, err
	}

	e.logger.Debug().
		Int("subjects", out.TotalPatients).
		Int("metric_types", len(out.MetricSummary)).
		Dur("duration", time.Since(start)).
		Msg("fleet rollup computed")
	return out, nil
}

func (e *Engine) rollup(ctx context.Context, subjectIDs []uuid.UUID, w Window) (*FleetRollup, error) {
	ids, err := e.resolveSubjects(ctx, subjectIDs)
	if err != nil {
		return nil, err
	}

	var latest, history []*metrics.Sample
	if len(ids) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			latest, err = e.samples.LatestInWindow(gctx, ids, w.Start, w.End)
			return err
		})
		g.Go(func() error {
			var err error
			history, err = e.samples.ListInWindow(gctx, ids, w.Start, w.End)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, apperror.Unavailable("fleet rollup", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &FleetRollup{
		TotalPatients:       len(ids),
		MetricSummary:       make(map[metrics.MetricType]*MetricSummary),
		PatientHealthStatus: make(map[uuid.UUID]SubjectHealthStatus, len(ids)),
		StatusCounts:        make(map[HealthStatus]int, len(AllStatuses)),
		Patients:            make([]PatientSnapshot, 0, len(ids)),
		Window:              w,
		GeneratedAt:         e.now().UTC(),
	}
	for _, st := range AllStatuses {
		out.StatusCounts[st] = 0
	}

	bySubject := make(map[uuid.UUID]map[metrics.MetricType]float64, len(ids))
	byMetric := make(map[metrics.MetricType][]float64)
	for _, s := range latest {
		vals, ok := bySubject[s.SubjectID]
		if !ok {
			vals = make(map[metrics.MetricType]float64)
			bySubject[s.SubjectID] = vals
		}
		vals[s.MetricType] = s.Value
		byMetric[s.MetricType] = append(byMetric[s.MetricType], s.Value)
	}

	for _, id := range ids {
		vals := bySubject[id]
		if vals == nil {
			vals = map[metrics.MetricType]float64{}
		} else {
			out.PatientsWithMetrics++
		}
		st := StatusFor(vals, e.ranges)
		out.PatientHealthStatus[id] = st
		out.StatusCounts[st.Status]++
		out.Patients = append(out.Patients, PatientSnapshot{SubjectID: id, Health: st, Latest: vals})
	}

	series := BucketByDay(history)
	for mt, values := range byMetric {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats, ok := Describe(values)
		if !ok {
			continue
		}
		ts := series[mt]
		if ts == nil {
			ts = map[string]Bucket{}
		}
		// LatestInWindow yields one row per (subject, type), so each value
		// is a distinct subject.
		out.MetricSummary[mt] = &MetricSummary{
			Stats:        stats,
			Count:        len(values),
			PatientCount: len(values),
			TimeSeries:   ts,
		}
	}
	return out, nil
}

// resolveSubjects dedupes and sorts the requested ids, or lists every
// subject with data when none are given.
func (e *Engine) resolveSubjects(ctx context.Context, subjectIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(subjectIDs) == 0 {
		ids, err := e.samples.ListSubjects(ctx)
		if err != nil {
			return nil, apperror.Unavailable("list subjects", err)
		}
		subjectIDs = ids
	}
	seen := make(map[uuid.UUID]bool, len(subjectIDs))
	ids := make([]uuid.UUID, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
