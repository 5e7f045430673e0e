package zoho

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/internal/publisher"
	"github.com/Checker-Finance/zoho-bulk/pkg/model"
)

// Poller drives a bulk read job to a terminal state by fetching its record
// at a fixed interval. It blocks the caller; the CLI has nothing else to do
// while a job is pending.
type Poller struct {
	logger    *zap.Logger
	client    *Client
	publisher *publisher.Publisher
	interval  time.Duration
}

// NewPoller builds a poller. publisher may be nil when NATS is not
// configured.
func NewPoller(logger *zap.Logger, client *Client, pub *publisher.Publisher, interval time.Duration) *Poller {
	return &Poller{
		logger:    logger,
		client:    client,
		publisher: pub,
		interval:  interval,
	}
}

// WaitForCompletion polls jobID until it reaches a terminal state. It
// returns the final job record on COMPLETED, and an error naming the state
// on FAILURE or FAILED. Fetch errors and context cancellation abort the
// wait immediately.
func (p *Poller) WaitForCompletion(ctx context.Context, jobID string) (*BulkJob, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastState string
	for {
		job, err := p.client.GetBulkRead(ctx, jobID)
		if err != nil {
			return nil, err
		}
		metrics.SetLastPoll("bulk_read", time.Now())

		state := NormalizeState(job.State)
		if state != lastState {
			p.logger.Info("zoho.bulk_state_changed",
				zap.String("job_id", jobID),
				zap.String("previous", lastState),
				zap.String("state", state))
			p.publishState(ctx, publisher.SubjectJobStateChanged, job, state)
			lastState = state
		}

		if IsFailureState(state) {
			p.publishState(ctx, publisher.SubjectJobFailed, job, state)
			return job, fmt.Errorf("bulk read job %s ended in state %s", jobID, state)
		}
		if state == StateCompleted {
			p.publishState(ctx, publisher.SubjectJobCompleted, job, state)
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// publishState emits a job event; failures are logged and swallowed so a
// flaky broker never interrupts a poll.
func (p *Poller) publishState(ctx context.Context, subject string, job *BulkJob, state string) {
	if p.publisher == nil {
		return
	}

	event := model.BulkJobEvent{
		JobID:     job.ID,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
	if job.Query != nil {
		event.Module = job.Query.Module.APIName
		event.Page = job.Query.Page
	}

	if err := p.publisher.Publish(ctx, subject, event); err != nil {
		p.logger.Warn("nats.publish_failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
