package ledger

import (
	"context"
	"sync"
	"time"
)

type markKey struct {
	jobID int64
	date  string
}

// Memory is a process-local dispatch guard. It does not survive restarts
// and is not shared between instances.
type Memory struct {
	mu     sync.Mutex
	marked map[markKey]time.Time
}

func NewMemory() *Memory {
	return &Memory{marked: map[markKey]time.Time{}}
}

func (m *Memory) TryMark(ctx context.Context, jobID int64, date time.Time) (bool, error) {
	key := markKey{jobID: jobID, date: date.Format(dateLayout)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.marked[key]; ok {
		return false, nil
	}
	m.marked[key] = dayOf(date)
	return true, nil
}

func (m *Memory) Prune(ctx context.Context, before time.Time) error {
	cutoff := dayOf(before)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, day := range m.marked {
		if day.Before(cutoff) {
			delete(m.marked, k)
		}
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marked)
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
