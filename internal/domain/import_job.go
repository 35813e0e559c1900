package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SubmittedFile records what the caller uploaded, without the payload.
type SubmittedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ProcessingResult is the per-file outcome of an import. It is immutable once
// appended to its job.
type ProcessingResult struct {
	FileName           string        `json:"file_name"`
	Success            bool          `json:"success"`
	RecordsProcessed   int           `json:"records_processed"`
	RecordsFailed      int           `json:"records_failed"`
	Errors             []string      `json:"errors"`
	Warnings           []string      `json:"warnings,omitempty"`
	SensorID           *uuid.UUID    `json:"sensor_id,omitempty"`
	SensorSerialNumber string        `json:"sensor_serial_number,omitempty"`
	ProcessingTime     time.Duration `json:"processing_time"`
}

// ImportJob tracks one submitted batch of files from submission to terminal
// completion or failure. Only the pipeline mutates it.
type ImportJob struct {
	ID            string             `json:"id"`
	SuitcaseID    uuid.UUID          `json:"suitcase_id"`
	UserID        uuid.UUID          `json:"user_id"`
	Status        JobStatus          `json:"status"`
	Files         []SubmittedFile    `json:"files"`
	Results       []ProcessingResult `json:"results"`
	TotalProgress int                `json:"total_progress"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// NewImportJob creates a pending job for the given submission.
func NewImportJob(suitcaseID, userID uuid.UUID, files []SubmittedFile) ImportJob {
	return ImportJob{
		ID:         uuid.New().String(),
		SuitcaseID: suitcaseID,
		UserID:     userID,
		Status:     JobPending,
		Files:      files,
		Results:    []ProcessingResult{},
		CreatedAt:  time.Now().UTC(),
	}
}
