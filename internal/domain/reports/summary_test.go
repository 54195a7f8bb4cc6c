package reports

import (
	"testing"
	"time"
)

func TestBuildSummary(t *testing.T) {
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	got := Build(date, []StatusCount{
		{Status: "on_time", Count: 6, OpenShifts: 2, WorkedHours: 36},
		{Status: "late", Count: 2, OpenShifts: 0, WorkedHours: 15},
		{Status: "early_leave", Count: 1, OpenShifts: 0, WorkedHours: 4},
	}, NotificationCounts{Sent: 4, Confirmed: 3, Walkups: 1})

	if got.Date != "2025-03-03" {
		t.Fatalf("unexpected date %q", got.Date)
	}
	if got.Present != 9 || got.OpenShifts != 2 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.ByStatus["late"] != 2 || got.ByStatus["on_time"] != 6 {
		t.Fatalf("unexpected buckets %v", got.ByStatus)
	}
	if got.AverageWorkedHours != 7.86 {
		t.Fatalf("expected 55h over 7 closed shifts, got %v", got.AverageWorkedHours)
	}
	if got.ConfirmationRate != 0.75 {
		t.Fatalf("expected 0.75 confirmation rate, got %v", got.ConfirmationRate)
	}
	if got.UnpromptedConfirmation != 1 {
		t.Fatalf("expected one unprompted confirmation, got %d", got.UnpromptedConfirmation)
	}
}

func TestBuildSummaryEmptyDay(t *testing.T) {
	got := Build(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), nil, NotificationCounts{})
	if got.Present != 0 || got.AverageWorkedHours != 0 || got.ConfirmationRate != 0 {
		t.Fatalf("expected zero summary, got %+v", got)
	}
	if got.ByStatus == nil {
		t.Fatal("expected an empty, non-nil status map")
	}
}
