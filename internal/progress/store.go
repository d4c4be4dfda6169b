// Package progress records finished session outcomes: straight to Postgres, through
// the Redis job queue for the worker, or only to the log.
package progress

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signstream/streamer/internal/models"
	"github.com/signstream/streamer/pkg/queue"
)

// QueueStore hands outcomes to the worker through the Redis job queue.
type QueueStore struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewQueueStore creates a queue-backed progress store.
func NewQueueStore(q *queue.Queue, logger *zap.Logger) *QueueStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueStore{queue: q, logger: logger}
}

// RecordSessionOutcome enqueues a session_outcome job.
func (s *QueueStore) RecordSessionOutcome(ctx context.Context, o models.SessionOutcome) error {
	job, err := s.queue.Enqueue(ctx, queue.JobTypeSessionOutcome, o)
	if err != nil {
		return fmt.Errorf("enqueue outcome: %w", err)
	}
	s.logger.Info("session outcome queued",
		zap.String("job_id", job.ID),
		zap.String("session_id", o.SessionID.String()),
		zap.String("status", o.Status),
	)
	return nil
}

// LogStore only logs outcomes. It backs the streamer when neither Redis nor Postgres is configured.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore creates a log-only progress store.
func NewLogStore(logger *zap.Logger) *LogStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogStore{logger: logger}
}

// RecordSessionOutcome logs the outcome.
func (s *LogStore) RecordSessionOutcome(ctx context.Context, o models.SessionOutcome) error {
	s.logger.Info("session outcome",
		zap.String("session_id", o.SessionID.String()),
		zap.String("mode", string(o.Mode)),
		zap.String("lesson_id", o.LessonID),
		zap.String("status", o.Status),
		zap.Int("mastered", o.Mastered),
		zap.Int("attempts", o.TotalAttempts),
		zap.Int("correct", o.TotalCorrect),
		zap.Float64("accuracy", o.Accuracy),
		zap.Int64("elapsed_ms", o.ElapsedMs),
	)
	return nil
}
