package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/db"
	"shiftwatch/internal/platform/metrics"
	"shiftwatch/internal/platform/querier"
)

const (
	JobDispatch   = "notification_dispatch"
	recordTimeout = 10 * time.Second
)

type Options struct {
	Location         *time.Location
	MaxJobs          int
	EvaluateInterval time.Duration
	Now              func() time.Time
	Metrics          *metrics.Collector
	Recorder         Recorder
}

// Scheduler evaluates notification jobs and dispatches each at most once
// per calendar date at a random instant inside the remaining shift window.
type Scheduler struct {
	store     StoreAPI
	dir       Directory
	tx        db.Transactor
	guard     DispatchGuard
	messenger Messenger

	loc      *time.Location
	maxJobs  int
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Collector
	recorder Recorder

	wg sync.WaitGroup
}

func NewScheduler(store StoreAPI, dir Directory, tx db.Transactor, guard DispatchGuard, messenger Messenger, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 3
	}
	if opts.EvaluateInterval <= 0 {
		opts.EvaluateInterval = 5 * time.Minute
	}
	return &Scheduler{
		store:     store,
		dir:       dir,
		tx:        tx,
		guard:     guard,
		messenger: messenger,
		loc:       opts.Location,
		maxJobs:   opts.MaxJobs,
		interval:  opts.EvaluateInterval,
		now:       opts.Now,
		metrics:   opts.Metrics,
		recorder:  opts.Recorder,
	}
}

// Run evaluates jobs until ctx is cancelled, then waits for in-flight
// dispatch goroutines. Waits never cross midnight so a new day is picked
// up promptly.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.wg.Wait()
	var lastDay time.Time
	for {
		now := s.now().In(s.loc)
		today := shift.DateOf(now)
		if !today.Equal(lastDay) {
			if err := s.guard.Prune(ctx, today.AddDate(0, 0, -1)); err != nil {
				slog.Warn("dispatch guard prune failed", "err", err)
			}
			lastDay = today
		}
		if _, err := s.Evaluate(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("notification evaluation failed", "err", err)
		}

		wait := s.interval
		if untilMidnight := today.AddDate(0, 0, 1).Sub(now); untilMidnight < wait {
			wait = untilMidnight + time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Evaluate schedules today's due jobs and returns how many were armed.
func (s *Scheduler) Evaluate(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	today := shift.DateOf(now)

	jobs, err := s.store.ActiveJobs(ctx)
	if err != nil {
		return 0, err
	}
	scheduleIDs := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		scheduleIDs = append(scheduleIDs, j.ScheduleID)
	}
	schedules, err := s.dir.Schedules(ctx, nil, scheduleIDs)
	if err != nil {
		return 0, err
	}

	due := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		sched, ok := schedules[j.ScheduleID]
		if ok && sched.WorksOn(today) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ID < due[k].ID })
	if len(due) > s.maxJobs {
		for _, j := range due[s.maxJobs:] {
			slog.Warn("notification job over the daily cap ignored", "jobId", j.ID, "cap", s.maxJobs)
			s.metrics.DispatchSkip("over_cap")
		}
		due = due[:s.maxJobs]
	}

	armed := 0
	for _, j := range due {
		window, err := shift.Resolve(schedules[j.ScheduleID], today, now)
		if err != nil {
			continue
		}
		if !now.Before(window.End) {
			s.metrics.DispatchSkip("window_passed")
			continue
		}
		// An overnight shift spans two calendar dates; the guard is keyed on
		// the date the shift started so it is reminded once.
		marked, err := s.guard.TryMark(ctx, j.ID, window.Date)
		if err != nil {
			slog.Warn("dispatch guard failed", "jobId", j.ID, "err", err)
			s.metrics.DispatchSkip("guard_error")
			continue
		}
		if !marked {
			s.metrics.DispatchSkip("already_dispatched")
			continue
		}

		from := window.Start
		if now.After(from) {
			from = now
		}
		fireAt := randomInstant(from, window.End)
		slog.Info("notification job armed", "jobId", j.ID, "date", window.Date.Format(core.DateLayout), "fireAt", fireAt)
		armed++

		s.wg.Add(1)
		go func(job Job, fireAt, date time.Time) {
			defer s.wg.Done()
			if !s.sleepUntil(ctx, fireAt) {
				slog.Info("notification dispatch cancelled", "jobId", job.ID)
				return
			}
			s.runDispatch(ctx, job, date)
		}(j, fireAt, window.Date)
	}
	return armed, nil
}

// Wait blocks until every armed job has dispatched or been cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// sleepUntil reports whether the deadline was reached; false means ctx
// ended first and the caller must not dispatch.
func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time) bool {
	d := at.Sub(s.now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return ctx.Err() == nil
	}
}

func (s *Scheduler) runDispatch(ctx context.Context, job Job, date time.Time) {
	run := func(ctx context.Context) (any, error) {
		return s.Dispatch(ctx, job, date)
	}
	var err error
	if s.recorder != nil {
		_, err = s.recorder.RunNow(ctx, JobDispatch, fmt.Sprintf("job:%d", job.ID), run)
	} else {
		_, err = run(ctx)
	}
	if err != nil {
		slog.Warn("notification dispatch failed", "jobId", job.ID, "err", err)
	}
}

// Dispatch selects targets for job, delivers its message and records the
// deliveries. Delivery happens outside any transaction.
func (s *Scheduler) Dispatch(ctx context.Context, job Job, date time.Time) (DispatchSummary, error) {
	summary := DispatchSummary{JobID: job.ID, Date: date.Format(core.DateLayout)}

	filter := core.EligibilityFilter{
		Date:           date,
		OrganizationID: job.OrganizationID,
		ZoneID:         job.ZoneID,
	}
	if !job.Sampled() {
		if len(job.WorkerIDs) == 0 {
			return summary, nil
		}
		filter.WorkerIDs = job.WorkerIDs
	}

	var targets []core.Worker
	err := s.tx.RunInTx(ctx, func(ctx context.Context, q querier.Querier) error {
		eligible, err := s.dir.EligibleWorkers(ctx, q, filter)
		if err != nil {
			return err
		}
		reachable := eligible[:0]
		for _, w := range eligible {
			if w.Reachable(date) {
				reachable = append(reachable, w)
			}
		}
		summary.Eligible = len(reachable)
		targets = selectTargets(job, reachable)
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("select targets: %w", err)
	}
	summary.Targeted = len(targets)

	delivered := make([]int64, 0, len(targets))
	for _, w := range targets {
		if err := s.messenger.Send(ctx, w.MessagingHandle, job.Message); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			slog.Warn("notification delivery failed", "jobId", job.ID, "workerId", w.ID, "err", err)
			s.metrics.NotificationSent("failed")
			summary.Failed++
			continue
		}
		s.metrics.NotificationSent("sent")
		delivered = append(delivered, w.ID)
	}
	summary.Sent = len(delivered)
	if len(delivered) == 0 {
		return summary, nil
	}

	// Messages already went out; record them even if ctx ended mid-batch.
	sentAt := s.now()
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err = s.tx.RunInTx(recordCtx, func(ctx context.Context, q querier.Querier) error {
		return s.store.UpsertSent(ctx, q, job.ID, date, delivered, sentAt)
	})
	if err != nil {
		return summary, fmt.Errorf("record deliveries: %w", err)
	}
	slog.Info("notification job dispatched", "jobId", job.ID, "eligible", summary.Eligible, "sent", summary.Sent, "failed", summary.Failed)
	return summary, nil
}
