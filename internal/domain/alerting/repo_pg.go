package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
)

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository { return &alertRepoPG{pool: pool} }

const alertCols = `id, subject_id, alert_type, title, message, severity, status, is_read, triggered_at,
	related_metric_id, cause_key, acknowledged_at, resolved_at, dismissed_at, read_at, created_at, updated_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.SubjectID, &a.AlertType, &a.Title, &a.Message, &a.Severity, &a.Status,
		&a.IsRead, &a.TriggeredAt, &a.RelatedMetricID, &a.CauseKey, &a.AcknowledgedAt,
		&a.ResolvedAt, &a.DismissedAt, &a.ReadAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// CreateUnlessOutstanding serializes writers for one (subject, cause) with a
// transaction-scoped advisory lock, then inserts only when no outstanding
// alert matches. Two racing evaluations therefore write at most one row.
func (r *alertRepoPG) CreateUnlessOutstanding(ctx context.Context, a *Alert, since *time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, apperror.Unavailable("begin alert tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		a.SubjectID.String()+"|"+a.CauseKey); err != nil {
		return false, apperror.Unavailable("lock alert cause", err)
	}

	a.ID = uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO health_alert (id, subject_id, alert_type, title, message, severity, status, is_read,
			triggered_at, related_metric_id, cause_key)
		SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::text, $8::boolean,
			$9::timestamptz, $10::uuid, $11::text
		WHERE NOT EXISTS (
			SELECT 1 FROM health_alert
			WHERE subject_id = $2 AND cause_key = $11
			  AND status = 'active' AND NOT is_read
			  AND ($12::timestamptz IS NULL OR triggered_at >= $12)
		)
		RETURNING created_at, updated_at`,
		a.ID, a.SubjectID, a.AlertType, a.Title, a.Message, a.Severity, a.Status, a.IsRead,
		a.TriggeredAt, a.RelatedMetricID, a.CauseKey, since,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		a.ID = uuid.Nil
		return false, nil
	}
	if err != nil {
		return false, apperror.Unavailable("insert alert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperror.Unavailable("commit alert", err)
	}
	return true, nil
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertCols+` FROM health_alert WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("alert")
	}
	if err != nil {
		return nil, apperror.Unavailable("get alert", err)
	}
	return a, nil
}

func (r *alertRepoPG) UpdateState(ctx context.Context, a *Alert, from Status) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE health_alert SET status=$2, is_read=$3, acknowledged_at=$4, resolved_at=$5,
			dismissed_at=$6, read_at=$7, updated_at=NOW()
		WHERE id = $1 AND status = $8
		RETURNING updated_at`,
		a.ID, a.Status, a.IsRead, a.AcknowledgedAt, a.ResolvedAt, a.DismissedAt, a.ReadAt, from,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.Conflict("alert is no longer %s", from)
	}
	if err != nil {
		return apperror.Unavailable("update alert", err)
	}
	return nil
}

func (r *alertRepoPG) ListBySubject(ctx context.Context, subjectID uuid.UUID, f AlertFilter, limit, offset int) ([]*Alert, int, error) {
	where := ` WHERE subject_id = $1`
	args := []interface{}{subjectID}
	idx := 2

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.UnreadOnly {
		where += ` AND NOT is_read`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM health_alert`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Unavailable("count alerts", err)
	}

	query := `SELECT ` + alertCols + ` FROM health_alert` + where +
		fmt.Sprintf(` ORDER BY triggered_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperror.Unavailable("list alerts", err)
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, apperror.Unavailable("scan alert", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.Unavailable("scan alerts", err)
	}
	return items, total, nil
}

func (r *alertRepoPG) CountUnread(ctx context.Context, subjectID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM health_alert
		WHERE subject_id = $1 AND NOT is_read AND status IN ('active', 'acknowledged')`, subjectID).Scan(&n)
	if err != nil {
		return 0, apperror.Unavailable("count unread alerts", err)
	}
	return n, nil
}
