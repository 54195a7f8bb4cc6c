package reports

import (
	"context"
	"time"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) Daily(ctx context.Context, date time.Time) (DailySummary, error) {
	day := date.Format(core.DateLayout)
	rows, err := s.DB.Query(ctx, `
    SELECT status, COUNT(1), COUNT(1) FILTER (WHERE leave_time IS NULL), COALESCE(SUM(worked_hours), 0)::float8
    FROM attendance_records
    WHERE record_date = $1::date
    GROUP BY status
  `, day)
	if err != nil {
		return DailySummary{}, err
	}
	defer rows.Close()

	var statuses []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.OpenShifts, &sc.WorkedHours); err != nil {
			return DailySummary{}, err
		}
		statuses = append(statuses, sc)
	}
	if err := rows.Err(); err != nil {
		return DailySummary{}, err
	}

	var notes NotificationCounts
	if err := s.DB.QueryRow(ctx, `
    SELECT
      COUNT(1) FILTER (WHERE job_id IS NOT NULL),
      COUNT(1) FILTER (WHERE job_id IS NOT NULL AND status = $2),
      COUNT(1) FILTER (WHERE job_id IS NULL AND status = $2)
    FROM notification_records
    WHERE record_date = $1::date
  `, day, string(notify.StatusConfirmed)).Scan(&notes.Sent, &notes.Confirmed, &notes.Walkups); err != nil {
		return DailySummary{}, err
	}
	return Build(date, statuses, notes), nil
}
