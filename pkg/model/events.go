package model

import "time"

// BulkJobEvent describes a bulk-read job transition (created, state change,
// terminal state).
type BulkJobEvent struct {
	JobID     string    `json:"job_id"`
	Name      string    `json:"name,omitempty"`
	Module    string    `json:"module"`
	State     string    `json:"state"`
	Page      int       `json:"page,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordsDeletedEvent summarises a batch delete run against a CRM module.
type RecordsDeletedEvent struct {
	RunID     string    `json:"run_id"`
	Module    string    `json:"module"`
	Requested int       `json:"requested"`
	Deleted   int       `json:"deleted"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
