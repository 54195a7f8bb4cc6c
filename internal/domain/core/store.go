package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"shiftwatch/internal/domain/shift"
	cryptoutil "shiftwatch/internal/platform/crypto"
	"shiftwatch/internal/platform/querier"
)

const DateLayout = "2006-01-02"

// Store reads the reference data the engine works against. Methods taking
// a querier run inside the caller's transaction; a nil querier uses the pool.
type Store struct {
	DB     querier.Querier
	Crypto *cryptoutil.Service
}

func NewStore(db querier.Querier, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}

func (s *Store) conn(q querier.Querier) querier.Querier {
	if q != nil {
		return q
	}
	return s.DB
}

func (s *Store) ActiveZones(ctx context.Context) ([]Zone, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT z.id, COALESCE(z.organization_id, 0), z.name,
           COALESCE(z.entry_url, ''), COALESCE(z.exit_url, ''), COALESCE(z.notify_url, ''),
           COALESCE(z.device_username, ''), z.device_password_enc
    FROM zones z
    LEFT JOIN organizations o ON o.id = z.organization_id
    WHERE z.deleted_at IS NULL AND o.deleted_at IS NULL
    ORDER BY z.id
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Zone
	for rows.Next() {
		var z Zone
		var passwordEnc []byte
		if err := rows.Scan(&z.ID, &z.OrganizationID, &z.Name, &z.EntryURL, &z.ExitURL, &z.NotifyURL, &z.DeviceUsername, &passwordEnc); err != nil {
			return nil, err
		}
		s.unsealCredentials(&z, passwordEnc)
		out = append(out, z)
	}
	return out, rows.Err()
}

// unsealCredentials decrypts a zone's device password. A bad ciphertext
// only marks that zone so the rest of the cycle still runs.
func (s *Store) unsealCredentials(z *Zone, passwordEnc []byte) {
	password, err := s.Crypto.DecryptString(passwordEnc)
	if err != nil {
		z.CredentialsErr = fmt.Errorf("decrypt device password: %w", err)
		slog.Warn("zone credentials unreadable", "zoneId", z.ID, "zone", z.Name, "err", err)
		return
	}
	z.DevicePassword = password
}

func (s *Store) Workers(ctx context.Context, q querier.Querier, ids []int64) (map[int64]Worker, error) {
	out := map[int64]Worker{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.conn(q).Query(ctx, `
    SELECT w.id, COALESCE(w.organization_id, 0), COALESCE(w.zone_id, 0), COALESCE(w.schedule_id, 0),
           w.full_name, w.start_work, w.end_work, COALESCE(w.messaging_handle, ''),
           (w.deleted_at IS NOT NULL OR o.deleted_at IS NOT NULL)
    FROM workers w
    LEFT JOIN organizations o ON o.id = w.organization_id
    WHERE w.id = ANY($1)
  `, ids)
	if err != nil {
		return nil, err
	}
	workers, err := scanWorkers(rows)
	if err != nil {
		return nil, err
	}
	for _, w := range workers {
		out[w.ID] = w
	}
	return out, nil
}

// EligibleWorkers lists workers that may receive a reminder on f.Date:
// reachable, employed, not deleted and already punched in that day.
func (s *Store) EligibleWorkers(ctx context.Context, q querier.Querier, f EligibilityFilter) ([]Worker, error) {
	ids := f.WorkerIDs
	if ids == nil {
		ids = []int64{}
	}
	rows, err := s.conn(q).Query(ctx, `
    SELECT w.id, COALESCE(w.organization_id, 0), COALESCE(w.zone_id, 0), COALESCE(w.schedule_id, 0),
           w.full_name, w.start_work, w.end_work, COALESCE(w.messaging_handle, ''), false
    FROM workers w
    LEFT JOIN organizations o ON o.id = w.organization_id
    WHERE w.deleted_at IS NULL
      AND o.deleted_at IS NULL
      AND COALESCE(w.messaging_handle, '') <> ''
      AND w.start_work <= $1::date
      AND (w.end_work IS NULL OR w.end_work > $1::date)
      AND ($2::bigint = 0 OR w.organization_id = $2)
      AND ($3::bigint = 0 OR w.zone_id = $3)
      AND (cardinality($4::bigint[]) = 0 OR w.id = ANY($4))
      AND EXISTS (
        SELECT 1 FROM attendance_records ar
        WHERE ar.worker_id = w.id AND ar.record_date = $1::date
      )
    ORDER BY w.id
  `, f.Date.Format(DateLayout), f.OrganizationID, f.ZoneID, ids)
	if err != nil {
		return nil, err
	}
	return scanWorkers(rows)
}

func scanWorkers(rows pgx.Rows) ([]Worker, error) {
	defer rows.Close()
	var out []Worker
	for rows.Next() {
		var w Worker
		if err := rows.Scan(&w.ID, &w.OrganizationID, &w.ZoneID, &w.ScheduleID, &w.FullName,
			&w.StartWork, &w.EndWork, &w.MessagingHandle, &w.Deleted); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Schedules loads schedules with their days and holidays.
func (s *Store) Schedules(ctx context.Context, q querier.Querier, ids []int64) (map[int64]shift.Schedule, error) {
	out := map[int64]shift.Schedule{}
	if len(ids) == 0 {
		return out, nil
	}
	conn := s.conn(q)

	rows, err := conn.Query(ctx, `
    SELECT id, name,
           EXTRACT(EPOCH FROM late_start)::bigint,
           EXTRACT(EPOCH FROM late_end)::bigint,
           EXTRACT(EPOCH FROM late_cutoff)::bigint,
           EXTRACT(EPOCH FROM early_leave_start)::bigint,
           EXTRACT(EPOCH FROM early_leave_end)::bigint
    FROM schedules
    WHERE id = ANY($1)
  `, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sc shift.Schedule
		var lateStart, lateEnd, cutoff, earlyStart, earlyEnd *int64
		if err := rows.Scan(&sc.ID, &sc.Name, &lateStart, &lateEnd, &cutoff, &earlyStart, &earlyEnd); err != nil {
			rows.Close()
			return nil, err
		}
		sc.Tolerance = shift.Tolerance{
			LateStart:       clockPtr(lateStart),
			LateEnd:         clockPtr(lateEnd),
			LateCutoff:      clockPtr(cutoff),
			EarlyLeaveStart: clockPtr(earlyStart),
			EarlyLeaveEnd:   clockPtr(earlyEnd),
		}
		out[sc.ID] = sc
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
    SELECT schedule_id, weekday, selected,
           EXTRACT(EPOCH FROM work_start)::bigint,
           EXTRACT(EPOCH FROM work_end)::bigint
    FROM schedule_days
    WHERE schedule_id = ANY($1)
    ORDER BY schedule_id, weekday
  `, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var scheduleID int64
		var weekday int
		var day shift.ScheduleDay
		var start, end *int64
		if err := rows.Scan(&scheduleID, &weekday, &day.Selected, &start, &end); err != nil {
			rows.Close()
			return nil, err
		}
		day.Weekday = time.Weekday(weekday)
		day.WorkStart = clockPtr(start)
		day.WorkEnd = clockPtr(end)
		if sc, ok := out[scheduleID]; ok {
			sc.Days = append(sc.Days, day)
			out[scheduleID] = sc
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
    SELECT schedule_id, holiday_date, COALESCE(description, '')
    FROM holidays
    WHERE schedule_id = ANY($1)
  `, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var scheduleID int64
		var h shift.Holiday
		if err := rows.Scan(&scheduleID, &h.Date, &h.Description); err != nil {
			return nil, err
		}
		if sc, ok := out[scheduleID]; ok {
			sc.Holidays = append(sc.Holidays, h)
			out[scheduleID] = sc
		}
	}
	return out, rows.Err()
}

func clockPtr(seconds *int64) *shift.Clock {
	if seconds == nil {
		return nil
	}
	c := shift.ClockFromSeconds(*seconds)
	return &c
}
