package core

import (
	"time"

	"shiftwatch/internal/domain/shift"
	"shiftwatch/internal/platform/device"
)

type Worker struct {
	ID              int64      `json:"id"`
	OrganizationID  int64      `json:"organizationId,omitempty"`
	ZoneID          int64      `json:"zoneId,omitempty"`
	ScheduleID      int64      `json:"scheduleId,omitempty"`
	FullName        string     `json:"fullName"`
	StartWork       time.Time  `json:"startWork"`
	EndWork         *time.Time `json:"endWork,omitempty"`
	MessagingHandle string     `json:"-"`
	Deleted         bool       `json:"deleted"`
}

// EmployedOn reports whether date falls in [StartWork, EndWork).
func (w Worker) EmployedOn(date time.Time) bool {
	day := shift.DateIn(date, time.UTC)
	if day.Before(shift.DateIn(w.StartWork, time.UTC)) {
		return false
	}
	return w.EndWork == nil || day.Before(shift.DateIn(*w.EndWork, time.UTC))
}

// Active reports whether the worker takes part in attendance on date.
func (w Worker) Active(date time.Time) bool {
	return !w.Deleted && w.EmployedOn(date)
}

// Reachable reports whether the worker can be sent a notification.
func (w Worker) Reachable(date time.Time) bool {
	return w.Active(date) && w.MessagingHandle != ""
}

type Zone struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organizationId,omitempty"`
	Name           string `json:"name"`
	EntryURL       string `json:"entryUrl,omitempty"`
	ExitURL        string `json:"exitUrl,omitempty"`
	NotifyURL      string `json:"notifyUrl,omitempty"`
	DeviceUsername string `json:"-"`
	DevicePassword string `json:"-"`
	// CredentialsErr is set when the stored device password could not be
	// decrypted. Such a zone is listed but cannot be polled.
	CredentialsErr error `json:"-"`
}

// Target returns the device endpoint for role, if the zone has one.
func (z Zone) Target(role device.Role) (device.Target, bool) {
	var base string
	switch role {
	case device.RoleEntry:
		base = z.EntryURL
	case device.RoleExit:
		base = z.ExitURL
	case device.RoleNotify:
		base = z.NotifyURL
	}
	if base == "" {
		return device.Target{}, false
	}
	return device.Target{
		ZoneID:   z.ID,
		Role:     role,
		BaseURL:  base,
		Username: z.DeviceUsername,
		Password: z.DevicePassword,
	}, true
}

// EligibilityFilter narrows notification targets. Zero ids match everything.
type EligibilityFilter struct {
	Date           time.Time
	OrganizationID int64
	ZoneID         int64
	WorkerIDs      []int64
}
