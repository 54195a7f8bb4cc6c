package notify

import (
	"math/rand/v2"
	"time"

	"shiftwatch/internal/domain/core"
)

// sampleSize is ceil(n*pct/100), never more than n.
func sampleSize(n, pct int) int {
	if n <= 0 || pct <= 0 {
		return 0
	}
	k := (n*pct + 99) / 100
	if k > n {
		k = n
	}
	return k
}

// sample picks k distinct workers uniformly with a partial Fisher-Yates
// shuffle over a copy of pool.
func sample(pool []core.Worker, k int) []core.Worker {
	if k >= len(pool) {
		return append([]core.Worker(nil), pool...)
	}
	buf := append([]core.Worker(nil), pool...)
	for i := 0; i < k; i++ {
		j := i + rand.IntN(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:k]
}

// randomInstant returns a uniform instant in [from, to). It returns from
// when the interval is empty.
func randomInstant(from, to time.Time) time.Time {
	span := to.Sub(from)
	if span <= 0 {
		return from
	}
	return from.Add(time.Duration(rand.Int64N(int64(span))))
}

// selectTargets applies the job's targeting rule to the eligible pool.
func selectTargets(job Job, eligible []core.Worker) []core.Worker {
	if job.Sampled() {
		return sample(eligible, sampleSize(len(eligible), *job.Percentage))
	}
	wanted := make(map[int64]bool, len(job.WorkerIDs))
	for _, id := range job.WorkerIDs {
		wanted[id] = true
	}
	var out []core.Worker
	for _, w := range eligible {
		if wanted[w.ID] {
			out = append(out, w)
		}
	}
	return out
}
