// Package downloader orchestrates the per-URL download pipeline: job
// lifecycle, the batch loop, and error classification for the host UI.
package downloader

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the current status of a job.
type JobStatus string

// Job lifecycle states. A job moves Pending, Extracting, Downloading,
// Probing, Transcoding, then terminates in Done, Failed or Cancelled.
const (
	JobStatusPending     JobStatus = "pending"
	JobStatusExtracting  JobStatus = "extracting"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusProbing     JobStatus = "probing"
	JobStatusTranscoding JobStatus = "transcoding"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Job is a single URL's lifecycle through the pipeline.
type Job struct {
	ID  ulid.ULID
	URL string

	Status      JobStatus
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Err is set when the job failed.
	Err error
}

// NewJob creates a pending job for a URL.
func NewJob(url string) *Job {
	return &Job{
		ID:     ulid.Make(),
		URL:    url,
		Status: JobStatusPending,
	}
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// MarkStarted moves a pending job into the extraction phase.
func (j *Job) MarkStarted() {
	now := time.Now()
	j.StartedAt = &now
	j.Status = JobStatusExtracting
}

// Advance moves the job to a later pipeline phase. Terminal jobs and
// backwards transitions are left untouched.
func (j *Job) Advance(status JobStatus) {
	if j.IsTerminal() {
		return
	}
	if phaseOrder(status) <= phaseOrder(j.Status) {
		return
	}
	j.Status = status
}

func phaseOrder(s JobStatus) int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusExtracting:
		return 1
	case JobStatusDownloading:
		return 2
	case JobStatusProbing:
		return 3
	case JobStatusTranscoding:
		return 4
	default:
		return 5
	}
}

// MarkDone marks the job completed successfully.
func (j *Job) MarkDone() {
	now := time.Now()
	j.CompletedAt = &now
	j.Status = JobStatusDone
	j.Err = nil
}

// MarkFailed marks the job failed with an error.
func (j *Job) MarkFailed(err error) {
	now := time.Now()
	j.CompletedAt = &now
	j.Status = JobStatusFailed
	j.Err = err
}

// MarkCancelled marks the job cancelled.
func (j *Job) MarkCancelled() {
	now := time.Now()
	j.CompletedAt = &now
	j.Status = JobStatusCancelled
}

// Duration returns how long the job ran, or zero when it never started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
