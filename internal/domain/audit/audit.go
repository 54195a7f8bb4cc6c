package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shiftwatch/internal/platform/querier"
)

const ActionPollTrigger = "engine.poll.trigger"

type Event struct {
	ID        int64           `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	RequestID string          `json:"requestId"`
	IP        string          `json:"ip"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Entry struct {
	Actor     string
	Action    string
	RequestID string
	IP        string
	Details   any
}

type Filter struct {
	Action string
	Actor  string
}

// Service keeps an append-only trail of operator actions against the engine.
type Service struct {
	DB querier.Querier
}

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	var details []byte
	if e.Details != nil {
		payload, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = payload
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor, action, request_id, ip, details_json)
    VALUES ($1, $2, $3, $4, $5)
  `, e.Actor, e.Action, e.RequestID, e.IP, details)
	return err
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery(filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var details []byte
		if err := rows.Scan(&evt.ID, &evt.Actor, &evt.Action, &evt.RequestID, &evt.IP, &details, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			evt.Details = details
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildBaseQuery(filter Filter) (string, []any) {
	query := "SELECT id, actor, action, request_id, ip, details_json, created_at FROM audit_events WHERE true"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		query += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	return query, args
}
