package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SampleRepository is the append-only sample store. Implementations return
// apperror.ErrNotFound for missing rows and apperror.ErrUnavailable when the
// store cannot be reached.
type SampleRepository interface {
	Create(ctx context.Context, s *Sample) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sample, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListBySubject(ctx context.Context, subjectID uuid.UUID, f SampleFilter, limit, offset int) ([]*Sample, int, error)
	// LatestBySubjects returns the most recent active sample per
	// (subject, metric type) recorded at or before asOf.
	LatestBySubjects(ctx context.Context, subjectIDs []uuid.UUID, asOf time.Time) ([]*Sample, error)
	// LatestInWindow is LatestBySubjects restricted to start <= timestamp <= end.
	// Pairs with no sample in the window are absent.
	LatestInWindow(ctx context.Context, subjectIDs []uuid.UUID, start, end time.Time) ([]*Sample, error)
	// ListInWindow returns every active sample with start <= timestamp <= end.
	ListInWindow(ctx context.Context, subjectIDs []uuid.UUID, start, end time.Time) ([]*Sample, error)
	// ListSubjects returns every subject with at least one active sample.
	ListSubjects(ctx context.Context) ([]uuid.UUID, error)
}
