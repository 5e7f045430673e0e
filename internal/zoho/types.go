package zoho

import "strings"

//
// ────────────────────────────────────────────────
//   Bulk Read API: Job Creation
// ────────────────────────────────────────────────
//

// BulkReadRequest is the payload for POST /crm/bulk/v8/read.
type BulkReadRequest struct {
	Query BulkReadQuery `json:"query"`
}

// BulkReadQuery selects the records a bulk read job exports.
type BulkReadQuery struct {
	Module   ModuleRef `json:"module"`
	Fields   []string  `json:"fields,omitempty"`
	Criteria *Criteria `json:"criteria,omitempty"`
	Page     int       `json:"page,omitempty"`
}

// ModuleRef names a CRM module (e.g. "Tasks", "Leads") by api_name.
type ModuleRef struct {
	APIName string `json:"api_name"`
}

// Criteria is a single-field filter on the exported records.
type Criteria struct {
	Field      FieldRef `json:"field"`
	Comparator string   `json:"comparator"` // e.g. "less_than", "equal"
	Value      string   `json:"value"`
}

// FieldRef names a module field by api_name.
type FieldRef struct {
	APIName string `json:"api_name"`
}

// JobDetails is the details block of a successful job creation.
type JobDetails struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	State     string `json:"state"`
}

// bulkCreateResponse wraps the data array returned by job creation.
type bulkCreateResponse struct {
	Data []struct {
		Status  string     `json:"status"`
		Code    string     `json:"code"`
		Message string     `json:"message"`
		Details JobDetails `json:"details"`
	} `json:"data"`
}

//
// ────────────────────────────────────────────────
//   Bulk Read API: Job Status / Result
// ────────────────────────────────────────────────
//

// BulkJob is one job record from GET /crm/bulk/v8/read/{id}.
type BulkJob struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	State     string         `json:"state"`
	Query     *BulkReadQuery `json:"query,omitempty"`
	Result    *BulkResult    `json:"result,omitempty"`
}

// BulkResult describes the exported archive of a COMPLETED job. A module
// larger than one export page sets more_records; the follow-up job is
// created with the next page number.
type BulkResult struct {
	Page          int    `json:"page"`
	Count         int    `json:"count"`
	PerPage       int    `json:"per_page"`
	DownloadURL   string `json:"download_url"`
	MoreRecords   bool   `json:"more_records"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// bulkJobResponse wraps the data array returned by the status endpoint.
type bulkJobResponse struct {
	Data []BulkJob `json:"data"`
}

//
// ────────────────────────────────────────────────
//   Settings API: Field Metadata
// ────────────────────────────────────────────────
//

// FieldMeta is one field definition from GET /crm/v8/settings/fields.
type FieldMeta struct {
	APIName         string `json:"api_name"`
	DataType        string `json:"data_type"`
	CustomField     bool   `json:"custom_field"`
	SystemMandatory bool   `json:"system_mandatory"`
}

// fieldsResponse wraps the fields array of the settings endpoint.
type fieldsResponse struct {
	Fields []FieldMeta `json:"fields"`
}

//
// ────────────────────────────────────────────────
//   Records API: Bulk Delete
// ────────────────────────────────────────────────
//

// DeleteResult is one entry of the data array returned by
// DELETE /crm/v8/{module}?ids=...
type DeleteResult struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		ID string `json:"id"`
	} `json:"details"`
}

// deleteResponse wraps the per-record results of a bulk delete call.
type deleteResponse struct {
	Data []DeleteResult `json:"data"`
}

//
// ────────────────────────────────────────────────
//   Error Envelope
// ────────────────────────────────────────────────
//

// APIErrorResponse is the error body shape shared by CRM endpoints.
type APIErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

//
// ────────────────────────────────────────────────
//   Job States
// ────────────────────────────────────────────────
//

const (
	StateAdded      = "ADDED"
	StateQueued     = "QUEUED"
	StateInProgress = "IN PROGRESS"
	StateCompleted  = "COMPLETED"
	StateFailure    = "FAILURE"
	StateFailed     = "FAILED"
)

// NormalizeState folds casing and padding; the API has been seen returning
// both FAILURE and FAILED for dead jobs.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// IsTerminalState reports whether polling can stop at this state.
func IsTerminalState(state string) bool {
	s := NormalizeState(state)
	return s == StateCompleted || IsFailureState(s)
}

// IsFailureState reports whether the job ended without a result.
func IsFailureState(state string) bool {
	switch NormalizeState(state) {
	case StateFailure, StateFailed:
		return true
	default:
		return false
	}
}
