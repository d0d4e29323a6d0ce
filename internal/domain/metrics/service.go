package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
	"github.com/ehr/healthmetrics/internal/platform/telemetry"
)

// Evaluator is notified when an ingested sample becomes the subject's latest
// reading for its metric type.
type Evaluator interface {
	EvaluateSample(ctx context.Context, s *Sample) error
}

// IngestRequest is the boundary shape for a new reading. Value is a pointer so
// a missing value is distinguishable from zero.
type IngestRequest struct {
	SubjectID  uuid.UUID  `json:"subject_id"`
	MetricType string     `json:"metric_type"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Source     string     `json:"source,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

type Service struct {
	repo      SampleRepository
	ranges    RangeTable
	evaluator Evaluator
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo SampleRepository, ranges RangeTable, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		ranges: ranges,
		logger: logger.With().Str("component", "metrics").Logger(),
		now:    time.Now,
	}
}

// SetEvaluator attaches the alert evaluator run after ingestion.
func (s *Service) SetEvaluator(e Evaluator) {
	s.evaluator = e
}

// Ranges returns the table used for classification.
func (s *Service) Ranges() RangeTable {
	return s.ranges
}

// Ingest validates and stores a reading, then evaluates it for alerting if it
// is now the subject's latest value for that metric type. Alerting failures
// are logged; the sample is already stored.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*Sample, error) {
	if req.Value == nil {
		return nil, ErrInvalidValue
	}
	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	} else {
		ts = s.now()
	}
	sample, err := NewSample(req.SubjectID, req.MetricType, *req.Value, req.Unit, ts, req.Source)
	if err != nil {
		return nil, err
	}
	sample.Notes = req.Notes

	if err := s.repo.Create(ctx, sample); err != nil {
		return nil, err
	}
	telemetry.SamplesIngested.WithLabelValues(string(sample.MetricType), string(sample.Source)).Inc()

	if s.evaluator != nil {
		s.evaluateIfLatest(ctx, sample)
	}
	return sample, nil
}

func (s *Service) evaluateIfLatest(ctx context.Context, sample *Sample) {
	asOf := s.now()
	if sample.Timestamp.After(asOf) {
		asOf = sample.Timestamp
	}
	latest, err := s.Latest(ctx, sample.SubjectID, asOf)
	if err != nil {
		s.logger.Warn().Err(err).Str("subject_id", sample.SubjectID.String()).Msg("latest lookup failed; skipping evaluation")
		return
	}
	if cur, ok := latest[sample.MetricType]; !ok || cur.ID != sample.ID {
		return
	}
	if err := s.evaluator.EvaluateSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).
			Str("subject_id", sample.SubjectID.String()).
			Str("metric_type", string(sample.MetricType)).
			Msg("alert evaluation failed")
	}
}

func (s *Service) GetSample(ctx context.Context, id uuid.UUID) (*Sample, error) {
	return s.repo.GetByID(ctx, id)
}

// DeleteSample soft-deletes a sample owned by actorID.
func (s *Service) DeleteSample(ctx context.Context, id, actorID uuid.UUID) error {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sample.SubjectID != actorID {
		return apperror.Forbidden("only the owning subject may delete a sample")
	}
	if !sample.IsActive {
		return apperror.NotFound("sample")
	}
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) ListSamples(ctx context.Context, subjectID uuid.UUID, f SampleFilter, limit, offset int) ([]*Sample, int, error) {
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, 0, apperror.Invalid("end must not be before start")
	}
	return s.repo.ListBySubject(ctx, subjectID, f, limit, offset)
}

// Latest returns the subject's most recent sample per metric type at or
// before asOf. A zero asOf means now.
func (s *Service) Latest(ctx context.Context, subjectID uuid.UUID, asOf time.Time) (map[MetricType]*Sample, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	samples, err := s.repo.LatestBySubjects(ctx, []uuid.UUID{subjectID}, asOf)
	if err != nil {
		return nil, err
	}
	out := make(map[MetricType]*Sample, len(samples))
	for _, smp := range samples {
		out[smp.MetricType] = smp
	}
	return out, nil
}
