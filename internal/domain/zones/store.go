package zones

import (
	"context"
	"time"

	"shiftwatch/internal/platform/device"
	"shiftwatch/internal/platform/querier"
)

// CursorStore keeps the newest event time seen per zone and device role.
type CursorStore struct {
	DB querier.Querier
}

func NewCursorStore(db querier.Querier) *CursorStore {
	return &CursorStore{DB: db}
}

func (s *CursorStore) Cursors(ctx context.Context, zoneID int64) (map[device.Role]time.Time, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT role, last_event_at
    FROM zone_cursors
    WHERE zone_id = $1
  `, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[device.Role]time.Time{}
	for rows.Next() {
		var role string
		var at time.Time
		if err := rows.Scan(&role, &at); err != nil {
			return nil, err
		}
		out[device.Role(role)] = at
	}
	return out, rows.Err()
}

// Advance moves the cursor forward inside the caller's transaction. It
// never moves a cursor backwards.
func (s *CursorStore) Advance(ctx context.Context, q querier.Querier, zoneID int64, role device.Role, at time.Time) error {
	if q == nil {
		q = s.DB
	}
	_, err := q.Exec(ctx, `
    INSERT INTO zone_cursors (zone_id, role, last_event_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (zone_id, role) DO UPDATE SET
      last_event_at = GREATEST(zone_cursors.last_event_at, EXCLUDED.last_event_at),
      updated_at = now()
  `, zoneID, string(role), at)
	return err
}
