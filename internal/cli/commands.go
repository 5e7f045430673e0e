package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/csvsource"
	"github.com/Checker-Finance/zoho-bulk/internal/deleter"
	"github.com/Checker-Finance/zoho-bulk/internal/history"
	"github.com/Checker-Finance/zoho-bulk/internal/publisher"
	"github.com/Checker-Finance/zoho-bulk/internal/zoho"
	"github.com/Checker-Finance/zoho-bulk/pkg/model"
)

// CreateCommand submits a bulk read job and records it in the history log.
func (a *App) CreateCommand() *cobra.Command {
	var (
		fields        []string
		criteriaField string
		comparator    string
		value         string
		page          int
	)

	cmd := &cobra.Command{
		Use:   "create MODULE NAME",
		Short: "Create a bulk read job for a CRM module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, name := args[0], args[1]

			query := zoho.BulkReadQuery{
				Module: zoho.ModuleRef{APIName: module},
				Fields: fields,
				Page:   page,
			}
			// an emptied criteria field exports the module unfiltered
			if criteriaField != "" {
				query.Criteria = &zoho.Criteria{
					Field:      zoho.FieldRef{APIName: criteriaField},
					Comparator: comparator,
					Value:      value,
				}
			}

			details, err := a.client.CreateBulkRead(cmd.Context(), query)
			if err != nil {
				return err
			}

			entry := history.Entry{
				Name:      name,
				ID:        details.ID,
				Module:    module,
				CreatedAt: time.Now().UTC(),
				RunID:     uuid.NewString(),
			}
			if err := a.fileLog.Append(entry); err != nil {
				a.logger.Warn("history.append_failed", zap.Error(err))
			}
			if err := a.pg.UpsertJob(cmd.Context(), entry, details.State); err != nil {
				a.logger.Warn("history.pg_record_failed", zap.Error(err))
			}
			a.publishJobEvent(cmd.Context(), publisher.SubjectJobCreated, model.BulkJobEvent{
				JobID:     details.ID,
				Name:      name,
				Module:    module,
				State:     details.State,
				Page:      page,
				Timestamp: time.Now().UTC(),
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created bulk read job %s (state %s)\n", details.ID, details.State)
			fmt.Fprintf(out, "Poll it with: zoho-bulk status %s\n", details.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", []string{"id"}, "fields to export")
	cmd.Flags().StringVar(&criteriaField, "criteria-field", "Due_Date", "criteria field api_name (empty exports everything)")
	cmd.Flags().StringVar(&comparator, "comparator", "less_than", "criteria comparator")
	cmd.Flags().StringVar(&value, "value", "2025-05-01", "criteria value")
	cmd.Flags().IntVar(&page, "page", 1, "result page to export")
	return cmd
}

// StatusCommand polls a job until it reaches a terminal state.
func (a *App) StatusCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Poll a bulk read job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poller := zoho.NewPoller(a.logger, a.client, a.pub, interval)

			job, err := poller.WaitForCompletion(cmd.Context(), args[0])
			if job != nil {
				a.recordJobState(cmd, job)
			}
			if err != nil {
				return err
			}

			printJobResult(cmd.OutOrStdout(), job)
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", a.cfg.PollInterval, "poll interval")
	return cmd
}

// DownloadCommand saves the archive of a completed job.
func (a *App) DownloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download JOB_ID OUT_PREFIX",
		Short: "Download the result archive of a completed job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, path, err := a.client.DownloadResult(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %s (%d records)\n", path, result.Count)
			if result.MoreRecords {
				fmt.Fprintf(out, "More records remain; create the next job with --page %d\n", result.Page+1)
				if result.NextPageToken != "" {
					fmt.Fprintf(out, "next_page_token: %s\n", result.NextPageToken)
				}
			}
			return nil
		},
	}
}

// ListFieldsCommand prints the field metadata of a module.
func (a *App) ListFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list_fields MODULE",
		Short: "List the field api_names and data types of a CRM module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := a.client.ListFields(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range fields {
				fmt.Fprintf(out, "%-30s - %s\n", f.APIName, f.DataType)
			}
			return nil
		},
	}
}

// DeleteBatchCommand deletes the records listed in a CSV export.
func (a *App) DeleteBatchCommand() *cobra.Command {
	var wfTrigger bool

	cmd := &cobra.Command{
		Use:   "delete_batch MODULE FILE",
		Short: "Delete the records whose ids are listed in a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, file := args[0], args[1]

			ids, err := csvsource.ReadIDs(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded %d ids from %s\n", len(ids), file)

			d := deleter.New(a.logger, a.client, a.pg, a.pub, out)
			deleted, err := d.Run(cmd.Context(), module, ids, wfTrigger)
			if err != nil {
				fmt.Fprintf(out, "Deleted %d of %d records before failure\n", deleted, len(ids))
				return err
			}

			fmt.Fprintf(out, "Deleted %d records from %s\n", deleted, module)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wfTrigger, "wf-trigger", true, "run the module's delete workflows")
	return cmd
}

// recordJobState mirrors a polled terminal state into Postgres, best-effort.
func (a *App) recordJobState(cmd *cobra.Command, job *zoho.BulkJob) {
	module := ""
	if job.Query != nil {
		module = job.Query.Module.APIName
	}
	entry := history.Entry{
		ID:        job.ID,
		Module:    module,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.pg.UpsertJob(cmd.Context(), entry, zoho.NormalizeState(job.State)); err != nil {
		a.logger.Warn("history.pg_record_failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

func printJobResult(w io.Writer, job *zoho.BulkJob) {
	fmt.Fprintf(w, "Job %s %s\n", job.ID, job.State)
	if job.Result == nil {
		return
	}
	fmt.Fprintf(w, "  page:            %d\n", job.Result.Page)
	fmt.Fprintf(w, "  count:           %d\n", job.Result.Count)
	fmt.Fprintf(w, "  more_records:    %t\n", job.Result.MoreRecords)
	if job.Result.NextPageToken != "" {
		fmt.Fprintf(w, "  next_page_token: %s\n", job.Result.NextPageToken)
	}
}
