package reports

import (
	"math"
	"sort"
	"time"
)

// StatusCount is one attendance status bucket for a day.
type StatusCount struct {
	Status      string
	Count       int
	OpenShifts  int
	WorkedHours float64
}

type NotificationCounts struct {
	Sent      int
	Confirmed int
	Walkups   int
}

// DailySummary is the per-date rollup shown on the ops surface.
type DailySummary struct {
	Date                   string         `json:"date"`
	Present                int            `json:"present"`
	ByStatus               map[string]int `json:"byStatus"`
	OpenShifts             int            `json:"openShifts"`
	AverageWorkedHours     float64        `json:"averageWorkedHours"`
	NotificationsSent      int            `json:"notificationsSent"`
	NotificationsConfirmed int            `json:"notificationsConfirmed"`
	ConfirmationRate       float64        `json:"confirmationRate"`
	UnpromptedConfirmation int            `json:"unpromptedConfirmations"`
}

// Build folds store rows into a summary. Average worked hours only counts
// closed shifts; a shift without an exit punch has no hours yet.
func Build(date time.Time, statuses []StatusCount, notes NotificationCounts) DailySummary {
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Status < statuses[j].Status })
	out := DailySummary{
		Date:                   date.Format(time.DateOnly),
		ByStatus:               map[string]int{},
		NotificationsSent:      notes.Sent,
		NotificationsConfirmed: notes.Confirmed,
		UnpromptedConfirmation: notes.Walkups,
	}
	var hours float64
	for _, s := range statuses {
		out.ByStatus[s.Status] += s.Count
		out.Present += s.Count
		out.OpenShifts += s.OpenShifts
		hours += s.WorkedHours
	}
	if closed := out.Present - out.OpenShifts; closed > 0 {
		out.AverageWorkedHours = round2(hours / float64(closed))
	}
	if notes.Sent > 0 {
		out.ConfirmationRate = round2(float64(notes.Confirmed) / float64(notes.Sent))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
