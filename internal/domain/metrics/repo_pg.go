package metrics

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

type sampleRepoPG struct{ pool *pgxpool.Pool }

func NewSampleRepoPG(pool *pgxpool.Pool) SampleRepository { return &sampleRepoPG{pool: pool} }

const sampleCols = `id, subject_id, metric_type, value, unit, recorded_at, source, is_active, notes, created_at, deleted_at`

func scanSample(row pgx.Row) (*Sample, error) {
	var s Sample
	err := row.Scan(&s.ID, &s.SubjectID, &s.MetricType, &s.Value, &s.Unit, &s.Timestamp,
		&s.Source, &s.IsActive, &s.Notes, &s.CreatedAt, &s.DeletedAt)
	return &s, err
}

func collectSamples(rows pgx.Rows) ([]*Sample, error) {
	defer rows.Close()
	var items []*Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *sampleRepoPG) Create(ctx context.Context, s *Sample) error {
	s.ID = uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO metric_sample (id, subject_id, metric_type, value, unit, recorded_at, source, is_active, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		s.ID, s.SubjectID, s.MetricType, s.Value, s.Unit, s.Timestamp, s.Source, s.IsActive, s.Notes,
	).Scan(&s.CreatedAt)
	if err != nil {
		return apperror.Unavailable("insert sample", err)
	}
	return nil
}

func (r *sampleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Sample, error) {
	s, err := scanSample(r.pool.QueryRow(ctx, `SELECT `+sampleCols+` FROM metric_sample WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("sample")
	}
	if err != nil {
		return nil, apperror.Unavailable("get sample", err)
	}
	return s, nil
}

func (r *sampleRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE metric_sample SET is_active = false, deleted_at = NOW()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return apperror.Unavailable("delete sample", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("sample")
	}
	return nil
}

func (r *sampleRepoPG) ListBySubject(ctx context.Context, subjectID uuid.UUID, f SampleFilter, limit, offset int) ([]*Sample, int, error) {
	where := ` WHERE subject_id = $1 AND is_active`
	args := []interface{}{subjectID}
	idx := 2

	if f.MetricType != "" {
		where += fmt.Sprintf(` AND metric_type = $%d`, idx)
		args = append(args, f.MetricType)
		idx++
	}
	if f.Start != nil {
		where += fmt.Sprintf(` AND recorded_at >= $%d`, idx)
		args = append(args, *f.Start)
		idx++
	}
	if f.End != nil {
		where += fmt.Sprintf(` AND recorded_at <= $%d`, idx)
		args = append(args, *f.End)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM metric_sample`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Unavailable("count samples", err)
	}

	query := `SELECT ` + sampleCols + ` FROM metric_sample` + where +
		fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperror.Unavailable("list samples", err)
	}
	items, err := collectSamples(rows)
	if err != nil {
		return nil, 0, apperror.Unavailable("scan samples", err)
	}
	return items, total, nil
}

func (r *sampleRepoPG) LatestBySubjects(ctx context.Context, subjectIDs []uuid.UUID, asOf time.Time) ([]*Sample, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (subject_id, metric_type) `+sampleCols+`
		FROM metric_sample
		WHERE subject_id = ANY($1::uuid[]) AND is_active AND recorded_at <= $2
		ORDER BY subject_id, metric_type, recorded_at DESC, created_at DESC`,
		uuidStrings(subjectIDs), asOf)
	if err != nil {
		return nil, apperror.Unavailable("latest samples", err)
	}
	items, err := collectSamples(rows)
	if err != nil {
		return nil, apperror.Unavailable("scan latest samples", err)
	}
	return items, nil
}

func (r *sampleRepoPG) LatestInWindow(ctx context.Context, subjectIDs []uuid.UUID, start, end time.Time) ([]*Sample, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (subject_id, metric_type) `+sampleCols+`
		FROM metric_sample
		WHERE subject_id = ANY($1::uuid[]) AND is_active AND recorded_at BETWEEN $2 AND $3
		ORDER BY subject_id, metric_type, recorded_at DESC, created_at DESC`,
		uuidStrings(subjectIDs), start, end)
	if err != nil {
		return nil, apperror.Unavailable("latest window samples", err)
	}
	items, err := collectSamples(rows)
	if err != nil {
		return nil, apperror.Unavailable("scan latest window samples", err)
	}
	return items, nil
}

func (r *sampleRepoPG) ListInWindow(ctx context.Context, subjectIDs []uuid.UUID, start, end time.Time) ([]*Sample, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sampleCols+`
		FROM metric_sample
		WHERE subject_id = ANY($1::uuid[]) AND is_active AND recorded_at BETWEEN $2 AND $3
		ORDER BY recorded_at`,
		uuidStrings(subjectIDs), start, end)
	if err != nil {
		return nil, apperror.Unavailable("window samples", err)
	}
	items, err := collectSamples(rows)
	if err != nil {
		return nil, apperror.Unavailable("scan window samples", err)
	}
	return items, nil
}

func (r *sampleRepoPG) ListSubjects(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT subject_id FROM metric_sample WHERE is_active ORDER BY subject_id`)
	if err != nil {
		return nil, apperror.Unavailable("list subjects", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Unavailable("scan subjects", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("scan subjects", err)
	}
	return ids, nil
}
