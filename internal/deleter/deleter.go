package deleter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/history"
	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/internal/publisher"
	"github.com/Checker-Finance/zoho-bulk/internal/zoho"
	"github.com/Checker-Finance/zoho-bulk/pkg/model"
)

// ChunkSize is the CRM delete endpoint's hard cap on ids per call.
const ChunkSize = 100

// RecordsClient is the slice of the CRM client the deleter needs.
type RecordsClient interface {
	DeleteRecords(ctx context.Context, module string, ids []string, wfTrigger bool) ([]zoho.DeleteResult, error)
}

// Deleter removes CRM records in fixed-size batches, halting on the first
// failed call so a bad run can be resumed from its remainder.
type Deleter struct {
	logger    *zap.Logger
	client    RecordsClient
	history   *history.PGWriter
	publisher *publisher.Publisher
	progress  io.Writer
}

// New builds a deleter. history, publisher and progress may be nil; progress
// receives a human-readable line per completed chunk.
func New(logger *zap.Logger, client RecordsClient, hist *history.PGWriter, pub *publisher.Publisher, progress io.Writer) *Deleter {
	return &Deleter{
		logger:    logger,
		client:    client,
		history:   hist,
		publisher: pub,
		progress:  progress,
	}
}

// Run deletes ids from module in chunks of ChunkSize and returns how many
// records were part of successfully accepted calls. On a failed chunk it
// stops immediately; the returned count covers only the chunks before the
// failure.
func (d *Deleter) Run(ctx context.Context, module string, ids []string, wfTrigger bool) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("no ids to delete")
	}

	runID := uuid.NewString()
	chunks := Chunk(ids, ChunkSize)
	deleted := 0

	d.logger.Info("deleter.run_started",
		zap.String("run_id", runID),
		zap.String("module", module),
		zap.Int("ids", len(ids)),
		zap.Int("chunks", len(chunks)),
		zap.Bool("wf_trigger", wfTrigger))

	for i, chunk := range chunks {
		results, err := d.client.DeleteRecords(ctx, module, chunk, wfTrigger)
		if err != nil {
			d.finish(ctx, runID, module, len(ids), deleted, "failed")
			return deleted, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}

		// An accepted call counts its whole chunk; per-record rejections
		// inside a 2xx are surfaced for the operator but not subtracted.
		if rejected := countRejected(results); rejected > 0 {
			d.logger.Warn("deleter.records_rejected",
				zap.String("run_id", runID),
				zap.Int("chunk", i+1),
				zap.Int("rejected", rejected))
		}

		deleted += len(chunk)
		metrics.AddRecordsDeleted(module, len(chunk))
		d.logger.Info("deleter.chunk_deleted",
			zap.String("run_id", runID),
			zap.Int("chunk", i+1),
			zap.Int("of", len(chunks)),
			zap.Int("size", len(chunk)),
			zap.Int("total_deleted", deleted))
		if d.progress != nil {
			fmt.Fprintf(d.progress, "DELETE %d (chunk %d/%d) -> %d/%d\n",
				len(chunk), i+1, len(chunks), deleted, len(ids))
		}
	}

	d.finish(ctx, runID, module, len(ids), deleted, "completed")
	return deleted, nil
}

// finish records the run outcome in Postgres and on the event stream. Both
// sinks are best-effort.
func (d *Deleter) finish(ctx context.Context, runID, module string, requested, deleted int, status string) {
	run := model.RecordsDeletedEvent{
		RunID:     runID,
		Module:    module,
		Requested: requested,
		Deleted:   deleted,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}

	if err := d.history.InsertDeleteRun(ctx, run); err != nil {
		d.logger.Warn("deleter.history_record_failed",
			zap.String("run_id", runID),
			zap.Error(err))
	}
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, publisher.SubjectRecordsDeleted, run); err != nil {
			d.logger.Warn("nats.publish_failed",
				zap.String("subject", publisher.SubjectRecordsDeleted),
				zap.Error(err))
		}
	}
}

func countRejected(results []zoho.DeleteResult) int {
	rejected := 0
	for _, r := range results {
		if !strings.EqualFold(r.Code, "SUCCESS") {
			rejected++
		}
	}
	return rejected
}

// Chunk splits ids into consecutive batches of at most size.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
