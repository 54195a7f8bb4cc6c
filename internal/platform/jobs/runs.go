package jobs

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"shiftwatch/internal/platform/querier"
)

type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Subject     string          `json:"subject,omitempty"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// RunLog persists job run bookkeeping.
type RunLog interface {
	Start(ctx context.Context, id, jobType, subject string) error
	Finish(ctx context.Context, id, status string, details []byte) error
	Recent(ctx context.Context, filter RunFilter, limit int) ([]Run, error)
}

type RunFilter struct {
	JobType string
	Status  string
}

type RunStore struct {
	DB querier.Querier
}

func NewRunStore(db querier.Querier) *RunStore {
	return &RunStore{DB: db}
}

func (s *RunStore) Start(ctx context.Context, id, jobType, subject string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO job_runs (id, job_type, subject, status)
    VALUES ($1, $2, $3, $4)
  `, id, jobType, subject, StatusRunning)
	return err
}

func (s *RunStore) Finish(ctx context.Context, id, status string, details []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, id)
	return err
}

func (s *RunStore) Recent(ctx context.Context, filter RunFilter, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query, args := buildRunsQuery(filter)
	query += " ORDER BY started_at DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var details []byte
		if err := rows.Scan(&r.ID, &r.JobType, &r.Subject, &r.Status, &details, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			r.Details = details
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func buildRunsQuery(filter RunFilter) (string, []any) {
	query := `
    SELECT id, job_type, subject, status, details_json, started_at, completed_at
    FROM job_runs
    WHERE true
  `
	var args []any
	if value := strings.TrimSpace(filter.JobType); value != "" {
		args = append(args, value)
		query += " AND job_type = $" + strconv.Itoa(len(args))
	}
	if value := strings.TrimSpace(filter.Status); value != "" {
		args = append(args, value)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	return query, args
}
