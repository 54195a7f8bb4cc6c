package notify

import (
	"context"
	"errors"
	"time"
)

type RecordStatus string

const (
	StatusSent      RecordStatus = "sent"
	StatusConfirmed RecordStatus = "confirmed"
)

var ErrNoHandle = errors.New("worker has no messaging handle")

// Job is a standing reminder configuration. Percentage, when set, samples
// eligible workers; otherwise WorkerIDs lists the targets.
type Job struct {
	ID             int64   `json:"id"`
	OrganizationID int64   `json:"organizationId,omitempty"`
	ZoneID         int64   `json:"zoneId,omitempty"`
	ScheduleID     int64   `json:"scheduleId"`
	WorkerIDs      []int64 `json:"workerIds,omitempty"`
	Percentage     *int    `json:"percentage,omitempty"`
	Message        string  `json:"message"`
}

func (j Job) Sampled() bool {
	return j.Percentage != nil
}

// Record is one worker's notification state for one calendar date.
type Record struct {
	ID       int64        `json:"id"`
	WorkerID int64        `json:"workerId"`
	Date     time.Time    `json:"date"`
	JobID    int64        `json:"jobId,omitempty"`
	Status   RecordStatus `json:"status"`
	SentAt   *time.Time   `json:"sentAt,omitempty"`
	Arrival  *time.Time   `json:"arrivalTime,omitempty"`
	MarkTime *time.Time   `json:"markTime,omitempty"`
}

// Messenger delivers a text to a worker's messaging handle.
type Messenger interface {
	Send(ctx context.Context, handle, text string) error
}

// DispatchGuard records that a job was dispatched for a date. TryMark
// returns true for exactly one caller per (job, date).
type DispatchGuard interface {
	TryMark(ctx context.Context, jobID int64, date time.Time) (bool, error)
	Prune(ctx context.Context, before time.Time) error
}

// Recorder wraps a unit of work in run bookkeeping.
type Recorder interface {
	RunNow(ctx context.Context, jobType, subject string, run func(context.Context) (any, error)) (any, error)
}

// DispatchSummary is what one job dispatch did.
type DispatchSummary struct {
	JobID    int64  `json:"jobId"`
	Date     string `json:"date"`
	Eligible int    `json:"eligible"`
	Targeted int    `json:"targeted"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
}
