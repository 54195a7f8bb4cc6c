package notify

import (
	"context"
	"time"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/querier"
)

// Key identifies a record by worker and calendar date (YYYY-MM-DD).
type Key struct {
	WorkerID int64
	Date     string
}

type StoreAPI interface {
	ActiveJobs(ctx context.Context) ([]Job, error)
	Records(ctx context.Context, q querier.Querier, keys []Key) (map[Key]Record, error)
	UpsertSent(ctx context.Context, q querier.Querier, jobID int64, date time.Time, workerIDs []int64, sentAt time.Time) error
	SaveConfirmations(ctx context.Context, q querier.Querier, inserts, updates []Record) error
	ListByDate(ctx context.Context, date time.Time) ([]Record, error)
}

type Directory interface {
	Workers(ctx context.Context, q querier.Querier, ids []int64) (map[int64]core.Worker, error)
	Schedules(ctx context.Context, q querier.Querier, ids []int64) (map[int64]shift.Schedule, error)
	EligibleWorkers(ctx context.Context, q querier.Querier, f core.EligibilityFilter) ([]core.Worker, error)
}
