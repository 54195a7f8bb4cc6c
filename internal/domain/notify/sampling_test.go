package notify

import (
	"testing"
	"time"

	"shiftwatch/internal/domain/core"
)

func workers(n int) []core.Worker {
	out := make([]core.Worker, n)
	for i := range out {
		out[i] = core.Worker{ID: int64(i + 1), MessagingHandle: "h"}
	}
	return out
}

func TestSampleSize(t *testing.T) {
	cases := []struct{ n, pct, want int }{
		{10, 10, 1},
		{10, 15, 2},
		{7, 50, 4},
		{3, 100, 3},
		{1, 1, 1},
		{0, 50, 0},
		{200, 33, 66},
		{5, 250, 5},
	}
	for _, tc := range cases {
		if got := sampleSize(tc.n, tc.pct); got != tc.want {
			t.Fatalf("sampleSize(%d, %d) = %d, want %d", tc.n, tc.pct, got, tc.want)
		}
	}
}

func TestSampleDistinctAndBounded(t *testing.T) {
	pool := workers(25)
	for pct := 1; pct <= 100; pct += 7 {
		want := sampleSize(len(pool), pct)
		for round := 0; round < 20; round++ {
			got := sample(pool, want)
			if len(got) != want {
				t.Fatalf("pct %d: expected %d workers, got %d", pct, want, len(got))
			}
			seen := map[int64]bool{}
			for _, w := range got {
				if seen[w.ID] {
					t.Fatalf("pct %d: duplicate worker %d", pct, w.ID)
				}
				seen[w.ID] = true
			}
		}
	}
	if pool[0].ID != 1 || pool[24].ID != 25 {
		t.Fatal("sample must not reorder the caller's slice")
	}
}

func TestSelectTargetsExplicitList(t *testing.T) {
	job := Job{ID: 1, WorkerIDs: []int64{2, 4, 99}}
	got := selectTargets(job, workers(5))
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 4 {
		t.Fatalf("expected eligible listed workers only, got %+v", got)
	}
}

func TestRandomInstantInRange(t *testing.T) {
	from := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	for i := 0; i < 200; i++ {
		got := randomInstant(from, to)
		if got.Before(from) || !got.Before(to) {
			t.Fatalf("instant %v outside [%v, %v)", got, from, to)
		}
	}
	if got := randomInstant(to, from); !got.Equal(to) {
		t.Fatalf("empty range should return its start, got %v", got)
	}
}
