package attendance

import (
	"time"

	"shiftwatch/internal/platform/device"
)

type Status string

const (
	StatusOnTime     Status = "on_time"
	StatusLate       Status = "late"
	StatusVeryLate   Status = "very_late"
	StatusEarlyLeave Status = "early_leave"
)

// Record is one worker's attendance for one calendar date.
type Record struct {
	ID          int64      `json:"id"`
	WorkerID    int64      `json:"workerId"`
	Date        time.Time  `json:"date"`
	Arrival     time.Time  `json:"arrivalTime"`
	Leave       *time.Time `json:"leaveTime,omitempty"`
	Status      Status     `json:"status"`
	MarkTime    *time.Time `json:"markTime,omitempty"`
	MarkZoneID  int64      `json:"markZoneId,omitempty"`
	WorkedHours float64    `json:"workedHours"`
}

// Punch is a verified device event tagged with the role of its device.
type Punch struct {
	WorkerID int64
	ZoneID   int64
	Role     device.Role
	Time     time.Time
}

// Result summarises one reconciliation pass.
type Result struct {
	Applied  int `json:"applied"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}
