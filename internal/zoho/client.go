package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/httpclient"
	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/internal/rate"
)

const (
	bulkReadPath = "/crm/bulk/v8/read"
	fieldsPath   = "/crm/v8/settings/fields"
	recordsPath  = "/crm/v8"
)

// Client wraps typed access to the Zoho CRM REST and bulk endpoints. All
// calls go through the shared executor, which attaches the OAuth token and
// retries exactly once on 401.
type Client struct {
	logger    *zap.Logger
	exec      *httpclient.Executor
	baseURL   string
	apiDomain string
}

// NewClient builds a CRM client. baseURL serves the bulk and settings
// endpoints; apiDomain serves record mutations and result downloads (Zoho
// reports it alongside the token, most orgs use the same host for both).
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, tokens httpclient.TokenSource, baseURL, apiDomain string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}

	errorHandler := func(status int, body []byte) error {
		var errResp APIErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			logger.Warn("zoho.api_error_unparseable",
				zap.Int("status", status),
				zap.ByteString("body", body))
			return fmt.Errorf("zoho returned %d: %s", status, strings.TrimSpace(string(body)))
		}

		errMsg := errResp.Message
		if errMsg == "" {
			errMsg = errResp.Code
		}
		if errMsg == "" {
			errMsg = strings.TrimSpace(string(body))
		}

		logger.Warn("zoho.api_error",
			zap.Int("status", status),
			zap.String("code", errResp.Code),
			zap.String("message", errResp.Message))

		return fmt.Errorf("zoho returned %d: %s", status, errMsg)
	}

	exec := httpclient.New(logger, rateMgr, httpClient, tokens, "zoho", errorHandler)

	return &Client{
		logger:    logger,
		exec:      exec,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiDomain: strings.TrimRight(apiDomain, "/"),
	}
}

// CreateBulkRead submits a bulk read job and returns its details. The job id
// is required for everything downstream, so a 2xx response without one is an
// error.
func (c *Client) CreateBulkRead(ctx context.Context, query BulkReadQuery) (*JobDetails, error) {
	payload, err := json.Marshal(BulkReadRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal bulk read query: %w", err)
	}

	var resp bulkCreateResponse
	if err := c.exec.DoJSON(ctx, http.MethodPost, c.baseURL+bulkReadPath, payload, "bulk_read", &resp); err != nil {
		return nil, fmt.Errorf("create bulk read job: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("create bulk read job: empty data array in response")
	}
	entry := resp.Data[0]
	if entry.Details.ID == "" {
		return nil, fmt.Errorf("create bulk read job: no job id in response (%s: %s)", entry.Code, entry.Message)
	}

	metrics.IncBulkJobCreated(query.Module.APIName)
	c.logger.Info("zoho.bulk_job_created",
		zap.String("job_id", entry.Details.ID),
		zap.String("module", query.Module.APIName),
		zap.String("state", entry.Details.State),
		zap.Int("page", query.Page))

	return &entry.Details, nil
}

// GetBulkRead fetches the current record of a bulk read job.
func (c *Client) GetBulkRead(ctx context.Context, jobID string) (*BulkJob, error) {
	var resp bulkJobResponse
	if err := c.exec.DoJSON(ctx, http.MethodGet, c.baseURL+bulkReadPath+"/"+url.PathEscape(jobID), nil, "bulk_read", &resp); err != nil {
		return nil, fmt.Errorf("fetch bulk read job %s: %w", jobID, err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("fetch bulk read job %s: empty data array in response", jobID)
	}
	return &resp.Data[0], nil
}

// ListFields returns the field metadata of a CRM module.
func (c *Client) ListFields(ctx context.Context, module string) ([]FieldMeta, error) {
	endpoint := fmt.Sprintf("%s%s?module=%s", c.baseURL, fieldsPath, url.QueryEscape(module))

	var resp fieldsResponse
	if err := c.exec.DoJSON(ctx, http.MethodGet, endpoint, nil, "fields", &resp); err != nil {
		return nil, fmt.Errorf("list fields for %s: %w", module, err)
	}
	return resp.Fields, nil
}

// DeleteRecords deletes up to 100 records by id in a single call. wfTrigger
// controls whether Zoho runs the module's delete workflows.
func (c *Client) DeleteRecords(ctx context.Context, module string, ids []string, wfTrigger bool) ([]DeleteResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("delete records: no ids given")
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("wf_trigger", strconv.FormatBool(wfTrigger))
	endpoint := fmt.Sprintf("%s%s/%s?%s", c.apiDomain, recordsPath, url.PathEscape(module), q.Encode())

	var resp deleteResponse
	if err := c.exec.DoJSON(ctx, http.MethodDelete, endpoint, nil, "delete", &resp); err != nil {
		return nil, fmt.Errorf("delete %d records from %s: %w", len(ids), module, err)
	}
	return resp.Data, nil
}

// DownloadResult streams the archive of a COMPLETED job to
// {outPrefix}_page_{page}.zip and returns the result metadata plus the
// written path. Jobs in any other state are rejected.
func (c *Client) DownloadResult(ctx context.Context, jobID, outPrefix string) (*BulkResult, string, error) {
	job, err := c.GetBulkRead(ctx, jobID)
	if err != nil {
		return nil, "", err
	}

	if NormalizeState(job.State) != StateCompleted {
		return nil, "", fmt.Errorf("job %s is not downloadable yet (state %s)", jobID, job.State)
	}
	if job.Result == nil || job.Result.DownloadURL == "" {
		return nil, "", fmt.Errorf("job %s completed without a download_url", jobID)
	}

	resp, err := c.exec.Do(ctx, http.MethodGet, c.apiDomain+job.Result.DownloadURL, nil, "download")
	if err != nil {
		return nil, "", fmt.Errorf("download job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	outPath := fmt.Sprintf("%s_page_%d.zip", outPrefix, job.Result.Page)
	out, err := os.Create(outPath)
	if err != nil {
		return nil, "", fmt.Errorf("create %s: %w", outPath, err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// a truncated archive would fail downstream in confusing ways
		_ = os.Remove(outPath)
		return nil, "", fmt.Errorf("write %s: %w", outPath, err)
	}

	c.logger.Info("zoho.bulk_result_downloaded",
		zap.String("job_id", jobID),
		zap.String("path", outPath),
		zap.Int64("bytes", written),
		zap.Int("record_count", job.Result.Count),
		zap.Bool("more_records", job.Result.MoreRecords))

	return job.Result, outPath, nil
}
