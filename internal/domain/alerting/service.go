package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
)

// Service exposes alert reads and the owner-driven lifecycle.
type Service struct {
	repo   AlertRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo AlertRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "alerts").Logger(),
		now:    time.Now,
	}
}

func (s *Service) List(ctx context.Context, subjectID uuid.UUID, f AlertFilter, limit, offset int) ([]*Alert, int, error) {
	return s.repo.ListBySubject(ctx, subjectID, f, limit, offset)
}

func (s *Service) CountUnread(ctx context.Context, subjectID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, subjectID)
}

// Acknowledge moves an active alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id, actorID uuid.UUID) (*Alert, error) {
	return s.transition(ctx, id, actorID, func(a *Alert, now time.Time) error {
		if a.Status != StatusActive {
			return apperror.Invalid("cannot acknowledge a %s alert", a.Status)
		}
		a.Status = StatusAcknowledged
		a.AcknowledgedAt = &now
		return nil
	})
}

// Resolve closes an active or acknowledged alert.
func (s *Service) Resolve(ctx context.Context, id, actorID uuid.UUID) (*Alert, error) {
	return s.transition(ctx, id, actorID, func(a *Alert, now time.Time) error {
		if a.Status != StatusActive && a.Status != StatusAcknowledged {
			return apperror.Invalid("cannot resolve a %s alert", a.Status)
		}
		a.Status = StatusResolved
		a.ResolvedAt = &now
		return nil
	})
}

// Dismiss closes an active or acknowledged alert without resolution.
func (s *Service) Dismiss(ctx context.Context, id, actorID uuid.UUID) (*Alert, error) {
	return s.transition(ctx, id, actorID, func(a *Alert, now time.Time) error {
		if a.Status != StatusActive && a.Status != StatusAcknowledged {
			return apperror.Invalid("cannot dismiss a %s alert", a.Status)
		}
		a.Status = StatusDismissed
		a.DismissedAt = &now
		return nil
	})
}

// MarkRead is allowed in any status and is idempotent. A read alert no
// longer suppresses new alerts for its cause.
func (s *Service) MarkRead(ctx context.Context, id, actorID uuid.UUID) (*Alert, error) {
	return s.transition(ctx, id, actorID, func(a *Alert, now time.Time) error {
		if a.IsRead {
			return errUnchanged
		}
		a.IsRead = true
		a.ReadAt = &now
		return nil
	})
}

var errUnchanged = errors.New("alert unchanged")

func (s *Service) transition(ctx context.Context, id, actorID uuid.UUID, apply func(*Alert, time.Time) error) (*Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.SubjectID != actorID {
		return nil, apperror.Forbidden("only the alert owner may change it")
	}

	from := a.Status
	if err := apply(a, s.now().UTC()); err != nil {
		if errors.Is(err, errUnchanged) {
			return a, nil
		}
		return nil, err
	}
	if err := s.repo.UpdateState(ctx, a, from); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("from", string(from)).
		Str("to", string(a.Status)).
		Bool("is_read", a.IsRead).
		Msg("alert updated")
	return a, nil
}
