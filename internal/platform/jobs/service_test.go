package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"shiftwatch/internal/domain/zones"
	"shiftwatch/internal/platform/config"
)

type fakeRunLog struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
	details  map[string][]byte
	startErr error
}

func newFakeRunLog() *fakeRunLog {
	return &fakeRunLog{finished: map[string]string{}, details: map[string][]byte{}}
}

func (f *fakeRunLog) Start(ctx context.Context, id, jobType, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeRunLog) Finish(ctx context.Context, id, status string, details []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = status
	f.details[id] = details
	return nil
}

func (f *fakeRunLog) Recent(ctx context.Context, filter RunFilter, limit int) ([]Run, error) {
	return nil, nil
}

func (f *fakeRunLog) statuses() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.finished {
		out[k] = v
	}
	return out
}

type fakePoller struct {
	mu     sync.Mutex
	cycles int
	done   chan struct{}
}

func (p *fakePoller) Cycle(ctx context.Context) (zones.CycleResult, error) {
	p.mu.Lock()
	p.cycles++
	first := p.cycles == 1
	p.mu.Unlock()
	if first && p.done != nil {
		close(p.done)
	}
	return zones.CycleResult{Zones: 2, Applied: 3}, nil
}

type fakeScheduler struct {
	started chan struct{}
}

func (s *fakeScheduler) Run(ctx context.Context) {
	close(s.started)
	<-ctx.Done()
}

func newTestService(runs RunLog, cfg config.Config) *Service {
	return &Service{Runs: runs, Cfg: cfg, queue: make(chan job, 2)}
}

func TestRunNowRecordsCompletedRun(t *testing.T) {
	runs := newFakeRunLog()
	svc := newTestService(runs, config.Defaults())

	out, err := svc.RunNow(context.Background(), "notification_dispatch", "job:1", func(ctx context.Context) (any, error) {
		return map[string]int{"sent": 4}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]int)["sent"] != 4 {
		t.Fatalf("expected details to be returned, got %v", out)
	}
	if len(runs.started) != 1 {
		t.Fatalf("expected one started run, got %d", len(runs.started))
	}
	id := runs.started[0]
	if runs.finished[id] != StatusCompleted {
		t.Fatalf("expected completed, got %q", runs.finished[id])
	}
	if string(runs.details[id]) != `{"sent":4}` {
		t.Fatalf("unexpected details %s", runs.details[id])
	}
}

func TestRunNowRecordsFailure(t *testing.T) {
	runs := newFakeRunLog()
	svc := newTestService(runs, config.Defaults())
	boom := errors.New("boom")

	_, err := svc.RunNow(context.Background(), "zone_poll", "", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	id := runs.started[0]
	if runs.finished[id] != StatusFailed {
		t.Fatalf("expected failed, got %q", runs.finished[id])
	}
	var details map[string]any
	if err := json.Unmarshal(runs.details[id], &details); err != nil {
		t.Fatalf("details not json: %v", err)
	}
	if details["error"] != "boom" {
		t.Fatalf("expected error in details, got %v", details)
	}
}

func TestRunNowSurvivesRunLogFailure(t *testing.T) {
	runs := newFakeRunLog()
	runs.startErr = errors.New("db down")
	svc := newTestService(runs, config.Defaults())

	called := false
	if _, err := svc.RunNow(context.Background(), "zone_poll", "", func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected job to run without bookkeeping")
	}
	if len(runs.finished) != 0 {
		t.Fatal("did not expect a finish without a start")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	svc := newTestService(newFakeRunLog(), config.Defaults())
	noop := func(ctx context.Context) (any, error) { return nil, nil }
	if !svc.Enqueue("zone_poll", "", noop) || !svc.Enqueue("zone_poll", "", noop) {
		t.Fatal("expected queue to accept two jobs")
	}
	if svc.Enqueue("zone_poll", "", noop) {
		t.Fatal("expected full queue to drop the job")
	}
}

func TestStartRunsPollsAndScheduler(t *testing.T) {
	runs := newFakeRunLog()
	cfg := config.Defaults()
	cfg.PollInterval = time.Hour
	svc := newTestService(runs, cfg)
	poller := &fakePoller{done: make(chan struct{})}
	scheduler := &fakeScheduler{started: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx, poller, scheduler)

	select {
	case <-poller.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an initial poll cycle")
	}
	select {
	case <-scheduler.started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected scheduler to start")
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		svc.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("expected loops to stop after cancel")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, status := range runs.statuses() {
			if status == StatusCompleted {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the poll cycle to be recorded as completed")
}

func TestTriggerPollBeforeStart(t *testing.T) {
	svc := newTestService(newFakeRunLog(), config.Defaults())
	if svc.TriggerPoll() {
		t.Fatal("expected trigger to be refused without a poller")
	}
}

func TestBuildRunsQuery(t *testing.T) {
	query, args := buildRunsQuery(RunFilter{JobType: "zone_poll", Status: StatusFailed})
	if !strings.Contains(query, "job_type = $1") || !strings.Contains(query, "status = $2") {
		t.Fatalf("unexpected query %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("expected two args, got %v", args)
	}
	query, args = buildRunsQuery(RunFilter{Status: StatusRunning})
	if !strings.Contains(query, "status = $1") || len(args) != 1 {
		t.Fatalf("expected status as first placeholder, got %q", query)
	}
}
