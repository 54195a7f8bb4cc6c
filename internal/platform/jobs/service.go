package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"shiftwatch/internal/domain/zones"
	"shiftwatch/internal/platform/config"
	"shiftwatch/internal/platform/metrics"
	"shiftwatch/internal/platform/querier"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Poller interface {
	Cycle(ctx context.Context) (zones.CycleResult, error)
}

type Scheduler interface {
	Run(ctx context.Context)
}

// Service drives the engine loops. Poll cycles go through a single queue
// worker so a manual trigger never overlaps a scheduled cycle.
type Service struct {
	Runs    RunLog
	Cfg     config.Config
	Metrics *metrics.Collector
	queue   chan job
	poller  Poller
	wg      sync.WaitGroup
}

type job struct {
	Type    string
	Subject string
	Run     func(context.Context) (any, error)
}

func New(db querier.Querier, cfg config.Config, m *metrics.Collector) *Service {
	return &Service{
		Runs:    NewRunStore(db),
		Cfg:     cfg,
		Metrics: m,
		queue:   make(chan job, 16),
	}
}

// Start launches the queue worker, the poll ticker and the notification
// scheduler. Wait blocks until all of them have returned.
func (s *Service) Start(ctx context.Context, poller Poller, scheduler Scheduler) {
	s.poller = poller
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
	if poller != nil && s.Cfg.PollInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.schedulePolls(ctx, poller, s.Cfg.PollInterval)
		}()
	}
	if scheduler != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			scheduler.Run(ctx)
		}()
	}
}

func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue reports whether the job was accepted; a full queue drops it.
func (s *Service) Enqueue(jobType, subject string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Subject: subject, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "subject", subject)
		return false
	}
}

// EnqueuePoll queues one poll cycle.
func (s *Service) EnqueuePoll(poller Poller) bool {
	return s.Enqueue(zones.JobPoll, "", func(ctx context.Context) (any, error) {
		return poller.Cycle(ctx)
	})
}

// TriggerPoll queues an out-of-band poll cycle with the poller given to Start.
func (s *Service) TriggerPoll() bool {
	if s.poller == nil {
		return false
	}
	return s.EnqueuePoll(s.poller)
}

func (s *Service) RecentRuns(ctx context.Context, filter RunFilter, limit int) ([]Run, error) {
	return s.Runs.Recent(ctx, filter, limit)
}

func (s *Service) RunNow(ctx context.Context, jobType, subject string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Subject: subject, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil && ctx.Err() == nil {
				slog.Warn("job run failed", "jobType", j.Type, "subject", j.Subject, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ulid.Make().String()
	logger := slog.With("runId", runID, "jobType", j.Type)
	if err := s.Runs.Start(ctx, runID, j.Type, j.Subject); err != nil {
		logger.Warn("job run insert failed", "err", err)
		runID = ""
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	s.Metrics.JobRun(j.Type, status)
	logger.Debug("job run finished", "status", status, "duration", time.Since(started))

	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		logger.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if err != nil {
		detailsJSON, _ = json.Marshal(map[string]any{"error": err.Error(), "details": json.RawMessage(detailsJSON)})
	}
	if runID != "" {
		// The run row is finished even when ctx was cancelled mid-run.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if updErr := s.Runs.Finish(finishCtx, runID, status, detailsJSON); updErr != nil {
			logger.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedulePolls(ctx context.Context, poller Poller, interval time.Duration) {
	s.EnqueuePoll(poller)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EnqueuePoll(poller)
		}
	}
}
