package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signstream/streamer/internal/models"
	"github.com/signstream/streamer/pkg/queue"
)

// JobQueue is the queue surface the processor drains.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// OutcomeWriter persists outcomes.
type OutcomeWriter interface {
	Insert(ctx context.Context, o models.SessionOutcome) error
	SetReportURL(ctx context.Context, sessionID uuid.UUID, url string) error
}

// ReportArchiver stores session reports.
type ReportArchiver interface {
	Put(ctx context.Context, o models.SessionOutcome) (string, error)
}

// Processor processes session outcome jobs: insert into Postgres, then archive the report.
type Processor struct {
	queue   JobQueue
	repo    OutcomeWriter
	archive ReportArchiver // optional
	backoff time.Duration
	poll    time.Duration
	logger  *zap.Logger
}

// NewProcessor creates an outcome processor. archive may be nil.
func NewProcessor(q JobQueue, repo OutcomeWriter, archive ReportArchiver, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{queue: q, repo: repo, archive: archive, backoff: queue.RetryBackoff, poll: queue.PollTimeout, logger: logger}
}

// Process executes one outcome job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionOutcome {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var o models.SessionOutcome
	if err := json.Unmarshal(job.Payload, &o); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if o.SessionID == uuid.Nil {
		return fmt.Errorf("outcome without session id")
	}

	if err := p.repo.Insert(ctx, o); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if p.archive != nil {
		url, err := p.archive.Put(ctx, o)
		if err != nil {
			return err
		}
		if err := p.repo.SetReportURL(ctx, o.SessionID, url); err != nil {
			p.logger.Error("update report url failed", zap.Error(err), zap.String("session_id", o.SessionID.String()))
			return fmt.Errorf("update db: %w", err)
		}
	}

	p.logger.Info("session outcome stored",
		zap.String("session_id", o.SessionID.String()),
		zap.String("status", o.Status),
		zap.Float64("accuracy", o.Accuracy),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outcome worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.poll)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if _, reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
