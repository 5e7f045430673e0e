package history

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/pkg/model"
)

// DBExecutor defines the minimal subset of pgxpool.Pool needed for execution.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGWriter mirrors job and delete-run records into Postgres for reporting.
// A nil writer is a no-op, so call sites do not have to care whether
// DATABASE_URL was configured.
type PGWriter struct {
	db     DBExecutor
	logger *zap.Logger
	source string
}

// NewPGWriter constructs a writer. source identifies the tool writing the
// record.
func NewPGWriter(db DBExecutor, logger *zap.Logger, source string) *PGWriter {
	return &PGWriter{
		db:     db,
		logger: logger,
		source: source,
	}
}

// UpsertJob inserts or updates a bulk job row in crm.bulk_job.
func (w *PGWriter) UpsertJob(ctx context.Context, entry Entry, state string) error {
	if w == nil || w.db == nil {
		return nil
	}

	const query = `
		INSERT INTO crm.bulk_job (
			id,
			name,
			module,
			state,
			created_at,
			updated_at,
			source
		)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		ON CONFLICT (id)
		DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = now();
	`

	_, err := w.db.Exec(ctx, query,
		entry.ID,
		entry.Name,
		entry.Module,
		state,
		entry.CreatedAt,
		w.source,
	)
	if err != nil {
		w.logger.Error("history.pg_job_upsert_failed",
			zap.String("job_id", entry.ID),
			zap.String("state", state),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("history.pg_job_upsert",
		zap.String("job_id", entry.ID),
		zap.String("module", entry.Module),
		zap.String("state", state),
	)

	return nil
}

// InsertDeleteRun records the outcome of one batch delete invocation in
// crm.delete_run.
func (w *PGWriter) InsertDeleteRun(ctx context.Context, run model.RecordsDeletedEvent) error {
	if w == nil || w.db == nil {
		return nil
	}

	const query = `
		INSERT INTO crm.delete_run (
			run_id,
			module,
			requested,
			deleted,
			status,
			source,
			executed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`

	_, err := w.db.Exec(ctx, query,
		run.RunID,
		run.Module,
		run.Requested,
		run.Deleted,
		run.Status,
		w.source,
		run.Timestamp,
	)
	if err != nil {
		w.logger.Error("history.pg_delete_run_failed",
			zap.String("run_id", run.RunID),
			zap.String("module", run.Module),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("history.pg_delete_run",
		zap.String("run_id", run.RunID),
		zap.String("module", run.Module),
		zap.Int("deleted", run.Deleted),
		zap.String("status", run.Status),
	)

	return nil
}
