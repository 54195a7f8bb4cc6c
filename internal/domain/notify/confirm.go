package notify

import (
	"context"
	"time"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/device"
	"shiftwatch/internal/platform/metrics"
	"shiftwatch/internal/platform/querier"
)

// Confirmer applies notify-device punches: a worker who taps the notify
// device confirms the day's reminder.
type Confirmer struct {
	store   StoreAPI
	dir     Directory
	loc     *time.Location
	metrics *metrics.Collector
}

func NewConfirmer(store StoreAPI, dir Directory, loc *time.Location, m *metrics.Collector) *Confirmer {
	if loc == nil {
		loc = time.UTC
	}
	return &Confirmer{store: store, dir: dir, loc: loc, metrics: m}
}

// Apply confirms records for the latest event per worker and returns how
// many records changed.
func (c *Confirmer) Apply(ctx context.Context, q querier.Querier, events []device.Event) (int, error) {
	latest := map[int64]time.Time{}
	for _, ev := range events {
		if cur, ok := latest[ev.WorkerID]; !ok || ev.Time.After(cur) {
			latest[ev.WorkerID] = ev.Time
		}
	}
	if len(latest) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	workers, err := c.dir.Workers(ctx, q, ids)
	if err != nil {
		return 0, err
	}
	var scheduleIDs []int64
	for _, w := range workers {
		if w.ScheduleID != 0 {
			scheduleIDs = append(scheduleIDs, w.ScheduleID)
		}
	}
	schedules, err := c.dir.Schedules(ctx, q, scheduleIDs)
	if err != nil {
		return 0, err
	}

	punches := map[Key]time.Time{}
	for id, at := range latest {
		w, ok := workers[id]
		if !ok {
			continue
		}
		sched, ok := schedules[w.ScheduleID]
		if !ok {
			continue
		}
		local := at.In(c.loc)
		date := shift.DateOf(local)
		if !w.Active(date) || !sched.WorksOn(date) {
			continue
		}
		punches[Key{WorkerID: id, Date: date.Format(core.DateLayout)}] = local
	}
	if len(punches) == 0 {
		return 0, nil
	}

	keys := make([]Key, 0, len(punches))
	for k := range punches {
		keys = append(keys, k)
	}
	existing, err := c.store.Records(ctx, q, keys)
	if err != nil {
		return 0, err
	}

	var inserts, updates []Record
	for k, at := range punches {
		at := at
		rec, ok := existing[k]
		if !ok {
			date, _ := time.ParseInLocation(core.DateLayout, k.Date, c.loc)
			inserts = append(inserts, Record{WorkerID: k.WorkerID, Date: date, Status: StatusConfirmed, Arrival: &at, MarkTime: &at})
			continue
		}
		if rec.MarkTime != nil && !at.After(*rec.MarkTime) {
			continue
		}
		rec.Status = StatusConfirmed
		rec.Arrival = &at
		rec.MarkTime = &at
		updates = append(updates, rec)
	}
	if err := c.store.SaveConfirmations(ctx, q, inserts, updates); err != nil {
		return 0, err
	}
	n := len(inserts) + len(updates)
	c.metrics.Confirmed(n)
	return n, nil
}
