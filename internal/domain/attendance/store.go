package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) conn(q querier.Querier) querier.Querier {
	if q != nil {
		return q
	}
	return s.DB
}

func (s *Store) Records(ctx context.Context, q querier.Querier, keys []Key) (map[Key]Record, error) {
	out := map[Key]Record{}
	if len(keys) == 0 {
		return out, nil
	}
	workerIDs := make([]int64, len(keys))
	dates := make([]string, len(keys))
	for i, k := range keys {
		workerIDs[i] = k.WorkerID
		dates[i] = k.Date
	}
	rows, err := s.conn(q).Query(ctx, `
    SELECT ar.id, ar.worker_id, ar.record_date, ar.arrival_time, ar.leave_time, ar.status,
           ar.mark_time, COALESCE(ar.mark_zone_id, 0), ar.worked_hours::float8
    FROM attendance_records ar
    JOIN unnest($1::bigint[], $2::date[]) AS k(worker_id, record_date)
      ON k.worker_id = ar.worker_id AND k.record_date = ar.record_date
  `, workerIDs, dates)
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		out[Key{WorkerID: r.WorkerID, Date: r.Date.Format(core.DateLayout)}] = r
	}
	return out, nil
}

// Save writes a reconciliation batch. Both statements refuse to move a
// record's mark time backwards, so a concurrent writer that got further
// wins.
func (s *Store) Save(ctx context.Context, q querier.Querier, inserts, updates []Record) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range inserts {
		batch.Queue(`
      INSERT INTO attendance_records
        (worker_id, record_date, arrival_time, leave_time, status, mark_time, mark_zone_id, worked_hours)
      VALUES ($1, $2::date, $3, $4, $5, $6, NULLIF($7::bigint, 0), $8)
      ON CONFLICT (worker_id, record_date) DO UPDATE SET
        arrival_time = EXCLUDED.arrival_time,
        leave_time = EXCLUDED.leave_time,
        status = EXCLUDED.status,
        mark_time = EXCLUDED.mark_time,
        mark_zone_id = EXCLUDED.mark_zone_id,
        worked_hours = EXCLUDED.worked_hours,
        updated_at = now()
      WHERE attendance_records.mark_time IS NULL OR attendance_records.mark_time < EXCLUDED.mark_time
    `, r.WorkerID, r.Date.Format(core.DateLayout), r.Arrival, r.Leave, string(r.Status), r.MarkTime, r.MarkZoneID, r.WorkedHours)
	}
	for _, r := range updates {
		batch.Queue(`
      UPDATE attendance_records
      SET arrival_time = $2, leave_time = $3, status = $4, mark_time = $5,
          mark_zone_id = NULLIF($6::bigint, 0), worked_hours = $7, updated_at = now()
      WHERE id = $1 AND (mark_time IS NULL OR mark_time < $5)
    `, r.ID, r.Arrival, r.Leave, string(r.Status), r.MarkTime, r.MarkZoneID, r.WorkedHours)
	}

	results := s.conn(q).SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("attendance batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}

// ListByDate returns the records attributed to date, for the admin surface.
func (s *Store) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, worker_id, record_date, arrival_time, leave_time, status,
           mark_time, COALESCE(mark_zone_id, 0), worked_hours::float8
    FROM attendance_records
    WHERE record_date = $1::date
    ORDER BY worker_id
  `, date.Format(core.DateLayout))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var status string
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.Date, &r.Arrival, &r.Leave, &status,
			&r.MarkTime, &r.MarkZoneID, &r.WorkedHours); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
