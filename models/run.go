package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// RunDateLayout is the partition key format of a RunRecord.
const RunDateLayout = "20060102"

// RunRecord is the run-info document kept in the document store, one per pipeline execution.
type RunRecord struct {
	ID                int64  `json:"id" db:"id"`
	Date              string `json:"date" db:"date"`
	TotalReceived     int    `json:"totalReceived" db:"total_received"`
	TotalProcessed    int    `json:"totalProcessed" db:"total_processed"`
	TotalCreatedCount int    `json:"totalCreatedCount" db:"total_created_count"`
	TotalFailedCount  int    `json:"totalFailedCount" db:"total_failed_count"`
	CreatedList       string `json:"createdList" db:"created_list"`
	FailedList        string `json:"failedList" db:"failed_list"`
}

// NewRunRecord derives the run id from the wall clock in UTC seconds.
func NewRunRecord(now time.Time) *RunRecord {
	now = now.UTC()
	return &RunRecord{
		ID:   now.Unix(),
		Date: now.Format(RunDateLayout),
	}
}

// JournalRun is the operational view of a run kept in the local SQLite journal.
type JournalRun struct {
	ID         int64      `json:"id" db:"id"`
	Date       string     `json:"date" db:"date"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	Status     RunStatus  `json:"status" db:"status"`
	Received   int        `json:"received" db:"received"`
	Created    int        `json:"created" db:"created"`
	Failed     int        `json:"failed" db:"failed"`
	Error      string     `json:"error" db:"error"`
	Report     []byte     `json:"report" db:"report"`
	Archived   bool       `json:"archived" db:"archived"`
}
