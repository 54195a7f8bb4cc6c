package notify

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

func (s *Store) ActiveJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT j.id, COALESCE(j.organization_id, 0), COALESCE(j.zone_id, 0), j.schedule_id,
           j.worker_ids, j.percentage, j.message
    FROM notification_jobs j
    LEFT JOIN organizations o ON o.id = j.organization_id
    WHERE j.deleted_at IS NULL AND o.deleted_at IS NULL
    ORDER BY j.id
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		var j Job
		var pct *int32
		if err := rows.Scan(&j.ID, &j.OrganizationID, &j.ZoneID, &j.ScheduleID, &j.WorkerIDs, &pct, &j.Message); err != nil {
			return nil, err
		}
		if pct != nil {
			p := int(*pct)
			j.Percentage = &p
		}
		out = append(out, j)
	}
	return out, rows.Err()
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
    SELECT nr.id, nr.worker_id, nr.record_date, COALESCE(nr.job_id, 0), nr.status,
           nr.sent_at, nr.arrival_time, nr.mark_time
    FROM notification_records nr
    JOIN unnest($1::bigint[], $2::date[]) AS k(worker_id, record_date)
      ON k.worker_id = nr.worker_id AND k.record_date = nr.record_date
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

// UpsertSent records deliveries for date. An existing record keeps a
// confirmed status.
func (s *Store) UpsertSent(ctx context.Context, q querier.Querier, jobID int64, date time.Time, workerIDs []int64, sentAt time.Time) error {
	if len(workerIDs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range workerIDs {
		batch.Queue(`
      INSERT INTO notification_records (worker_id, record_date, job_id, status, sent_at)
      VALUES ($1, $2::date, $3, 'sent', $4)
      ON CONFLICT (worker_id, record_date) DO UPDATE SET
        job_id = EXCLUDED.job_id,
        sent_at = EXCLUDED.sent_at,
        status = CASE WHEN notification_records.status = 'confirmed' THEN 'confirmed' ELSE 'sent' END,
        updated_at = now()
    `, id, date.Format(core.DateLayout), jobID, sentAt)
	}
	return execBatch(ctx, s.conn(q), batch)
}

func (s *Store) SaveConfirmations(ctx context.Context, q querier.Querier, inserts, updates []Record) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range inserts {
		batch.Queue(`
      INSERT INTO notification_records (worker_id, record_date, status, arrival_time, mark_time)
      VALUES ($1, $2::date, $3, $4, $5)
      ON CONFLICT (worker_id, record_date) DO UPDATE SET
        status = EXCLUDED.status,
        arrival_time = EXCLUDED.arrival_time,
        mark_time = EXCLUDED.mark_time,
        updated_at = now()
      WHERE notification_records.mark_time IS NULL OR notification_records.mark_time < EXCLUDED.mark_time
    `, r.WorkerID, r.Date.Format(core.DateLayout), string(r.Status), r.Arrival, r.MarkTime)
	}
	for _, r := range updates {
		batch.Queue(`
      UPDATE notification_records
      SET status = $2, arrival_time = $3, mark_time = $4, updated_at = now()
      WHERE id = $1 AND (mark_time IS NULL OR mark_time < $4)
    `, r.ID, string(r.Status), r.Arrival, r.MarkTime)
	}
	return execBatch(ctx, s.conn(q), batch)
}

func (s *Store) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, worker_id, record_date, COALESCE(job_id, 0), status, sent_at, arrival_time, mark_time
    FROM notification_records
    WHERE record_date = $1::date
    ORDER BY worker_id
  `, date.Format(core.DateLayout))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func execBatch(ctx context.Context, q querier.Querier, batch *pgx.Batch) error {
	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("notification batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var status string
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.Date, &r.JobID, &status, &r.SentAt, &r.Arrival, &r.MarkTime); err != nil {
			return nil, err
		}
		r.Status = RecordStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
