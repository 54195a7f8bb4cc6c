package ledger

import (
	"context"
	"time"

	"shiftwatch/internal/platform/querier"
)

const dateLayout = "2006-01-02"

// Postgres records markers in notification_dispatches; the primary key on
// (job_id, dispatch_date) makes the insert the compare-and-set.
type Postgres struct {
	db querier.Querier
}

func NewPostgres(db querier.Querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) TryMark(ctx context.Context, jobID int64, date time.Time) (bool, error) {
	tag, err := p.db.Exec(ctx, `
    INSERT INTO notification_dispatches (job_id, dispatch_date)
    VALUES ($1, $2::date)
    ON CONFLICT DO NOTHING
  `, jobID, date.Format(dateLayout))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Prune(ctx context.Context, before time.Time) error {
	_, err := p.db.Exec(ctx, `DELETE FROM notification_dispatches WHERE dispatch_date < $1::date`, before.Format(dateLayout))
	return err
}
