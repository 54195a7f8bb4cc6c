package attendance

import (
	"context"

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
	Records(ctx context.Context, q querier.Querier, keys []Key) (map[Key]Record, error)
	Save(ctx context.Context, q querier.Querier, inserts, updates []Record) error
}

// Directory resolves the workers and schedules punches refer to.
type Directory interface {
	Workers(ctx context.Context, q querier.Querier, ids []int64) (map[int64]core.Worker, error)
	Schedules(ctx context.Context, q querier.Querier, ids []int64) (map[int64]shift.Schedule, error)
}
