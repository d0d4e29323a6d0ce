package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AlertRepository interface {
	// CreateUnlessOutstanding inserts a unless an outstanding alert with the
	// same subject and cause, triggered at or after since (when non-nil),
	// already exists. The check and the insert are atomic with respect to
	// other callers for the same subject and cause.
	CreateUnlessOutstanding(ctx context.Context, a *Alert, since *time.Time) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// UpdateState persists lifecycle fields only if the stored status still
	// equals from.
	UpdateState(ctx context.Context, a *Alert, from Status) error
	ListBySubject(ctx context.Context, subjectID uuid.UUID, f AlertFilter, limit, offset int) ([]*Alert, int, error)
	CountUnread(ctx context.Context, subjectID uuid.UUID) (int, error)
}
