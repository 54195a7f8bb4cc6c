package attendance

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/device"
	"shiftwatch/internal/platform/metrics"
	"shiftwatch/internal/platform/querier"
)

// Reconciler merges polled punches into daily attendance records.
type Reconciler struct {
	store      StoreAPI
	dir        Directory
	classifier *Classifier
	loc        *time.Location
	metrics    *metrics.Collector
}

func NewReconciler(store StoreAPI, dir Directory, classifier *Classifier, loc *time.Location, m *metrics.Collector) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{store: store, dir: dir, classifier: classifier, loc: loc, metrics: m}
}

type pending struct {
	punch  Punch
	window shift.Window
	tol    shift.Tolerance
	key    Key
}

// Apply reconciles one zone's punches inside the caller's persistence
// scope q. Only the latest punch per worker and role is considered; the
// survivors are applied in time order so an entry and exit seen in the
// same cycle both land.
func (r *Reconciler) Apply(ctx context.Context, q querier.Querier, punches []Punch) (Result, error) {
	var res Result
	latest := latestPerRole(punches)
	if len(latest) == 0 {
		return res, nil
	}

	workerIDs := uniqueWorkers(latest)
	workers, err := r.dir.Workers(ctx, q, workerIDs)
	if err != nil {
		return res, err
	}
	scheduleIDs := make([]int64, 0, len(workers))
	seen := map[int64]bool{}
	for _, w := range workers {
		if w.ScheduleID != 0 && !seen[w.ScheduleID] {
			seen[w.ScheduleID] = true
			scheduleIDs = append(scheduleIDs, w.ScheduleID)
		}
	}
	schedules, err := r.dir.Schedules(ctx, q, scheduleIDs)
	if err != nil {
		return res, err
	}

	var work []pending
	keySet := map[Key]bool{}
	for _, p := range latest {
		w, ok := workers[p.WorkerID]
		if !ok {
			slog.Debug("punch for unknown worker", "workerId", p.WorkerID, "zoneId", p.ZoneID)
			res.Skipped++
			continue
		}
		sched, ok := schedules[w.ScheduleID]
		if !ok {
			res.Skipped++
			continue
		}
		local := p.Time.In(r.loc)
		window, err := shift.ResolveAt(sched, local)
		if err != nil {
			res.Skipped++
			continue
		}
		if !w.Active(window.Date) {
			res.Skipped++
			continue
		}
		p.Time = local
		key := Key{WorkerID: p.WorkerID, Date: window.Date.Format(core.DateLayout)}
		keySet[key] = true
		work = append(work, pending{punch: p, window: window, tol: sched.Tolerance, key: key})
	}
	if len(work) == 0 {
		return res, nil
	}

	keys := make([]Key, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	existing, err := r.store.Records(ctx, q, keys)
	if err != nil {
		return res, err
	}

	current := map[Key]*Record{}
	for k, rec := range existing {
		rec := rec
		current[k] = &rec
	}
	dirty := map[Key]bool{}
	for _, item := range work {
		next, changed := r.classifier.Apply(current[item.key], item.punch, item.window, item.tol)
		if !changed {
			continue
		}
		if prev := current[item.key]; prev != nil {
			next.ID = prev.ID
		}
		current[item.key] = &next
		dirty[item.key] = true
		res.Applied++
		r.metrics.PunchApplied(string(item.punch.Role))
	}

	var inserts, updates []Record
	for _, k := range sortedKeys(dirty) {
		rec := *current[k]
		if rec.ID == 0 {
			inserts = append(inserts, rec)
		} else {
			updates = append(updates, rec)
		}
	}
	if err := r.store.Save(ctx, q, inserts, updates); err != nil {
		return res, err
	}
	res.Inserted = len(inserts)
	res.Updated = len(updates)
	r.metrics.AttendanceWritten("insert", res.Inserted)
	r.metrics.AttendanceWritten("update", res.Updated)
	return res, nil
}

// latestPerRole keeps the newest entry and exit punch per worker and
// returns them in chronological order.
func latestPerRole(punches []Punch) []Punch {
	type roleKey struct {
		worker int64
		role   device.Role
	}
	newest := map[roleKey]Punch{}
	for _, p := range punches {
		if p.Role != device.RoleEntry && p.Role != device.RoleExit {
			continue
		}
		k := roleKey{p.WorkerID, p.Role}
		if cur, ok := newest[k]; !ok || p.Time.After(cur.Time) {
			newest[k] = p
		}
	}
	out := make([]Punch, 0, len(newest))
	for _, p := range newest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			if out[i].WorkerID != out[j].WorkerID {
				return out[i].WorkerID < out[j].WorkerID
			}
			return out[i].Role == device.RoleEntry && out[j].Role != device.RoleEntry
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

func uniqueWorkers(punches []Punch) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, p := range punches {
		if !seen[p.WorkerID] {
			seen[p.WorkerID] = true
			ids = append(ids, p.WorkerID)
		}
	}
	return ids
}

func sortedKeys(m map[Key]bool) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].WorkerID != keys[j].WorkerID {
			return keys[i].WorkerID < keys[j].WorkerID
		}
		return keys[i].Date < keys[j].Date
	})
	return keys
}
