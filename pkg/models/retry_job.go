package models

import (
	"time"
)

// RetryJob represents a build that needs to be resubmitted
type RetryJob struct {
	ID          string
	Build       Build
	RetryCount  int
	NextAttempt time.Time
	Delay       time.Duration
	Plan        *RerunPlan // nil for standalone builds
}

// SubmitRequest is what the host receives to resubmit a build
type SubmitRequest struct {
	Job        string    `json:"job"`
	BuildID    string    `json:"build_id"`
	RetryCount int       `json:"retry_count"`
	Parent     bool      `json:"parent"`
	Rerun      []string  `json:"rerun,omitempty"`
	Skip       []string  `json:"skip,omitempty"`
	RequestAt  time.Time `json:"request_at"`
}

// NewSubmitRequest builds the host request for a due retry job
func NewSubmitRequest(job RetryJob, now time.Time) SubmitRequest {
	req := SubmitRequest{
		Job:        job.Build.Job,
		BuildID:    job.Build.ID,
		RetryCount: job.RetryCount,
		RequestAt:  now,
	}
	if job.Plan != nil {
		req.Parent = job.Plan.ResubmitParent
		req.Rerun = job.Plan.Keys()
		for _, c := range job.Plan.Skipped {
			req.Skip = append(req.Skip, c.Key())
		}
	}
	return req
}
