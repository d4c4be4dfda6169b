package progress

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signstream/streamer/internal/models"
)

// ErrOutcomeNotFound is returned when no outcome is stored for a session.
var ErrOutcomeNotFound = errors.New("session outcome not found")

// Repository handles session outcome persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session outcome repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores an outcome. A second insert for the same session is ignored so
// retried jobs stay idempotent.
func (r *Repository) Insert(ctx context.Context, o models.SessionOutcome) error {
	const q = `INSERT INTO session_outcomes (session_id, mode, lesson_id, status, expected, per_gesture, mastered, total_attempts, total_correct, accuracy, started_at, ended_at, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id) DO NOTHING`
	expected := o.Expected
	if expected == nil {
		expected = []string{}
	}
	perGesture := make([]int32, len(o.PerGesture))
	for i, n := range o.PerGesture {
		perGesture[i] = int32(n)
	}
	_, err := r.pool.Exec(ctx, q, o.SessionID, string(o.Mode), o.LessonID, o.Status, expected, perGesture,
		o.Mastered, o.TotalAttempts, o.TotalCorrect, o.Accuracy, o.StartedAt, o.EndedAt, o.ElapsedMs)
	return err
}

// RecordSessionOutcome lets the repository serve as a direct progress store.
func (r *Repository) RecordSessionOutcome(ctx context.Context, o models.SessionOutcome) error {
	return r.Insert(ctx, o)
}

// SetReportURL records where the archived report lives.
func (r *Repository) SetReportURL(ctx context.Context, sessionID uuid.UUID, url string) error {
	const q = `UPDATE session_outcomes SET report_url = $1 WHERE session_id = $2`
	_, err := r.pool.Exec(ctx, q, url, sessionID)
	return err
}

// GetBySessionID returns the stored outcome for a session.
func (r *Repository) GetBySessionID(ctx context.Context, id uuid.UUID) (*models.SessionOutcome, error) {
	const q = `SELECT session_id, mode, lesson_id, status, expected, per_gesture, mastered, total_attempts, total_correct, accuracy, started_at, ended_at, elapsed_ms
		FROM session_outcomes WHERE session_id = $1`
	o, err := scanOutcome(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOutcomeNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListByLesson returns the most recent outcomes for a lesson, newest first.
func (r *Repository) ListByLesson(ctx context.Context, lessonID string, limit int) ([]models.SessionOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT session_id, mode, lesson_id, status, expected, per_gesture, mastered, total_attempts, total_correct, accuracy, started_at, ended_at, elapsed_ms
		FROM session_outcomes WHERE lesson_id = $1 ORDER BY ended_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, lessonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.SessionOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

func scanOutcome(row pgx.Row) (*models.SessionOutcome, error) {
	var (
		o          models.SessionOutcome
		mode       string
		perGesture []int32
	)
	err := row.Scan(&o.SessionID, &mode, &o.LessonID, &o.Status, &o.Expected, &perGesture, &o.Mastered,
		&o.TotalAttempts, &o.TotalCorrect, &o.Accuracy, &o.StartedAt, &o.EndedAt, &o.ElapsedMs)
	if err != nil {
		return nil, err
	}
	o.Mode = models.SessionMode(mode)
	o.PerGesture = make([]int, len(perGesture))
	for i, n := range perGesture {
		o.PerGesture[i] = int(n)
	}
	return &o, nil
}
