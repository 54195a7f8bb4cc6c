package zones

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shiftwatch/internal/domain/attendance"
	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/db"
	"shiftwatch/internal/platform/device"
	"shiftwatch/internal/platform/metrics"
	"shiftwatch/internal/platform/querier"
)

const JobPoll = "zone_poll"

type ZoneSource interface {
	ActiveZones(ctx context.Context) ([]core.Zone, error)
}

type Cursors interface {
	Cursors(ctx context.Context, zoneID int64) (map[device.Role]time.Time, error)
	Advance(ctx context.Context, q querier.Querier, zoneID int64, role device.Role, at time.Time) error
}

type Gateway interface {
	FetchEvents(ctx context.Context, t device.Target, since, until time.Time) ([]device.Event, error)
}

type Reconciler interface {
	Apply(ctx context.Context, q querier.Querier, punches []attendance.Punch) (attendance.Result, error)
}

type Confirmer interface {
	Apply(ctx context.Context, q querier.Querier, events []device.Event) (int, error)
}

type Options struct {
	Location    *time.Location
	Concurrency int
	Now         func() time.Time
	Metrics     *metrics.Collector
}

// Poller pulls punches from every active zone and hands them to the
// reconciler. Zones run in parallel and fail independently.
type Poller struct {
	zones      ZoneSource
	cursors    Cursors
	gateway    Gateway
	tx         db.Transactor
	reconciler Reconciler
	confirmer  Confirmer

	loc         *time.Location
	concurrency int
	now         func() time.Time
	metrics     *metrics.Collector
}

func NewPoller(zones ZoneSource, cursors Cursors, gateway Gateway, tx db.Transactor, reconciler Reconciler, confirmer Confirmer, opts Options) *Poller {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		zones:       zones,
		cursors:     cursors,
		gateway:     gateway,
		tx:          tx,
		reconciler:  reconciler,
		confirmer:   confirmer,
		loc:         opts.Location,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		metrics:     opts.Metrics,
	}
}

type CycleResult struct {
	Zones     int `json:"zones"`
	Failed    int `json:"failed"`
	Applied   int `json:"applied"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Confirmed int `json:"confirmed"`
}

// Cycle polls every active zone once. Only cancellation of ctx is returned
// as an error; zone failures are logged and counted.
func (p *Poller) Cycle(ctx context.Context) (CycleResult, error) {
	started := time.Now()
	var res CycleResult

	zones, err := p.zones.ActiveZones(ctx)
	if err != nil {
		return res, fmt.Errorf("load zones: %w", err)
	}
	res.Zones = len(zones)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, z := range zones {
		g.Go(func() error {
			zr, err := p.pollZone(gctx, z)
			mu.Lock()
			res.Applied += zr.Applied
			res.Inserted += zr.Inserted
			res.Updated += zr.Updated
			res.Confirmed += zr.Confirmed
			if err != nil {
				res.Failed++
			}
			mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("zone poll failed", "zoneId", z.ID, "zone", z.Name, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	p.metrics.CycleDone(time.Since(started).Seconds())
	return res, nil
}

type zoneResult struct {
	attendance.Result
	Confirmed int
}

type fetched struct {
	role   device.Role
	events []device.Event
}

func (p *Poller) pollZone(ctx context.Context, z core.Zone) (zoneResult, error) {
	var zr zoneResult
	if z.CredentialsErr != nil {
		p.metrics.ZoneFailed("credentials")
		return zr, z.CredentialsErr
	}
	now := p.now().In(p.loc)
	dayStart := shift.DateOf(now)
	until := dayStart.AddDate(0, 0, 1)

	cursors, err := p.cursors.Cursors(ctx, z.ID)
	if err != nil {
		return zr, fmt.Errorf("load cursors: %w", err)
	}
	since := func(role device.Role) time.Time {
		// Yesterday's cursor still counts so punches from an overnight
		// shift that straddled midnight are not lost.
		if c, ok := cursors[role]; ok && c.After(dayStart.AddDate(0, 0, -1)) {
			return c
		}
		return dayStart
	}

	var attendanceErr error
	var presence []fetched
	for _, role := range []device.Role{device.RoleEntry, device.RoleExit} {
		events, err := p.fetch(ctx, z, role, since(role), until)
		if err != nil {
			attendanceErr = err
			break
		}
		presence = append(presence, fetched{role: role, events: events})
	}

	var notifyErr error
	notify, err := p.fetch(ctx, z, device.RoleNotify, since(device.RoleNotify), until)
	if err != nil {
		notifyErr = err
	}

	if attendanceErr != nil && notifyErr != nil {
		return zr, errors.Join(attendanceErr, notifyErr)
	}

	err = p.tx.RunInTx(ctx, func(ctx context.Context, q querier.Querier) error {
		if attendanceErr == nil {
			var punches []attendance.Punch
			for _, f := range presence {
				for _, ev := range f.events {
					punches = append(punches, attendance.Punch{WorkerID: ev.WorkerID, ZoneID: z.ID, Role: f.role, Time: ev.Time})
				}
			}
			res, err := p.reconciler.Apply(ctx, q, punches)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			zr.Result = res
			for _, f := range presence {
				if err := p.advance(ctx, q, z.ID, f.role, f.events); err != nil {
					return err
				}
			}
		}
		if notifyErr == nil && len(notify) > 0 {
			n, err := p.confirmer.Apply(ctx, q, notify)
			if err != nil {
				return fmt.Errorf("confirm: %w", err)
			}
			zr.Confirmed = n
			if err := p.advance(ctx, q, z.ID, device.RoleNotify, notify); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.ZoneFailed("persist")
		return zoneResult{}, err
	}
	return zr, errors.Join(attendanceErr, notifyErr)
}

// fetch returns the verified events for role. A zone without that device
// yields nothing; a malformed payload is logged and treated as empty.
func (p *Poller) fetch(ctx context.Context, z core.Zone, role device.Role, since, until time.Time) ([]device.Event, error) {
	target, ok := z.Target(role)
	if !ok {
		return nil, nil
	}
	events, err := p.gateway.FetchEvents(ctx, target, since, until)
	if errors.Is(err, device.ErrMalformedPayload) {
		slog.Warn("malformed device payload ignored", "zoneId", z.ID, "role", role, "err", err)
		return nil, nil
	}
	if err != nil {
		p.metrics.ZoneFailed(string(role))
		return nil, fmt.Errorf("%s device: %w", role, err)
	}
	return events, nil
}

func (p *Poller) advance(ctx context.Context, q querier.Querier, zoneID int64, role device.Role, events []device.Event) error {
	if len(events) == 0 {
		return nil
	}
	newest := events[0].Time
	for _, ev := range events[1:] {
		if ev.Time.After(newest) {
			newest = ev.Time
		}
	}
	if err := p.cursors.Advance(ctx, q, zoneID, role, newest); err != nil {
		return fmt.Errorf("advance %s cursor: %w", role, err)
	}
	return nil
}
