package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/querier"
)

type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context, q querier.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, nil)
}

type fakeGuard struct {
	mu     sync.Mutex
	marked map[string]bool
	err    error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{marked: map[string]bool{}}
}

func (g *fakeGuard) TryMark(ctx context.Context, jobID int64, date time.Time) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fmt.Sprintf("%d/%s", jobID, date.Format(core.DateLayout))
	if g.marked[key] {
		return false, nil
	}
	g.marked[key] = true
	return true, nil
}

func (g *fakeGuard) Prune(ctx context.Context, before time.Time) error { return nil }

func (g *fakeGuard) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.marked)
}

type sent struct {
	handle string
	text   string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]bool
	// cancel, when set, is called once cancelAfter messages went out.
	cancel      context.CancelFunc
	cancelAfter int
}

func (m *fakeMessenger) Send(ctx context.Context, handle, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.fail[handle] {
		return errors.New("blocked")
	}
	m.sent = append(m.sent, sent{handle, text})
	if m.cancel != nil && len(m.sent) == m.cancelAfter {
		m.cancel()
	}
	return nil
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeDirectory struct {
	workers   map[int64]core.Worker
	schedules map[int64]shift.Schedule
	// punched lists workers with an attendance record on the eligibility date.
	punched map[int64]bool
}

func (f *fakeDirectory) Workers(ctx context.Context, q querier.Querier, ids []int64) (map[int64]core.Worker, error) {
	out := map[int64]core.Worker{}
	for _, id := range ids {
		if w, ok := f.workers[id]; ok {
			out[id] = w
		}
	}
	return out, nil
}

func (f *fakeDirectory) Schedules(ctx context.Context, q querier.Querier, ids []int64) (map[int64]shift.Schedule, error) {
	out := map[int64]shift.Schedule{}
	for _, id := range ids {
		if s, ok := f.schedules[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeDirectory) EligibleWorkers(ctx context.Context, q querier.Querier, filter core.EligibilityFilter) ([]core.Worker, error) {
	wanted := map[int64]bool{}
	for _, id := range filter.WorkerIDs {
		wanted[id] = true
	}
	ids := make([]int64, 0, len(f.workers))
	for id := range f.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []core.Worker
	for _, id := range ids {
		w := f.workers[id]
		if !f.punched[id] || w.Deleted || w.MessagingHandle == "" {
			continue
		}
		if filter.ZoneID != 0 && w.ZoneID != filter.ZoneID {
			continue
		}
		if len(wanted) > 0 && !wanted[id] {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

type fakeStore struct {
	mu      sync.Mutex
	jobs    []Job
	records map[Key]Record
	nextID  int64
}

func newFakeStore(jobs ...Job) *fakeStore {
	return &fakeStore{jobs: jobs, records: map[Key]Record{}}
}

func (f *fakeStore) ActiveJobs(ctx context.Context) ([]Job, error) {
	return f.jobs, nil
}

func (f *fakeStore) Records(ctx context.Context, q querier.Querier, keys []Key) (map[Key]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[Key]Record{}
	for _, k := range keys {
		if r, ok := f.records[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertSent(ctx context.Context, q querier.Querier, jobID int64, date time.Time, workerIDs []int64, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range workerIDs {
		k := Key{WorkerID: id, Date: date.Format(core.DateLayout)}
		rec, ok := f.records[k]
		if !ok {
			f.nextID++
			rec = Record{ID: f.nextID, WorkerID: id, Date: date, Status: StatusSent}
		}
		rec.JobID = jobID
		at := sentAt
		rec.SentAt = &at
		f.records[k] = rec
	}
	return nil
}

func (f *fakeStore) SaveConfirmations(ctx context.Context, q querier.Querier, inserts, updates []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range inserts {
		f.nextID++
		r.ID = f.nextID
		f.records[Key{WorkerID: r.WorkerID, Date: r.Date.Format(core.DateLayout)}] = r
	}
	for _, r := range updates {
		f.records[Key{WorkerID: r.WorkerID, Date: r.Date.Format(core.DateLayout)}] = r
	}
	return nil
}

func (f *fakeStore) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for k, r := range f.records {
		if k.Date == date.Format(core.DateLayout) {
			out = append(out, r)
		}
	}
	return out, nil
}
