package counters

import "time"

// Window is one of the two rolling aggregation windows maintained per
// mint.
type Window string

const (
	Window5m Window = "5m"
	Window1h Window = "1h"
)

// bucketWidth and bucketCount give each window's fixed-width bucketing:
// 5m = 30 buckets of 10s; 1h = 60 buckets of 60s.
func (w Window) bucketWidth() time.Duration {
	switch w {
	case Window5m:
		return 10 * time.Second
	case Window1h:
		return 60 * time.Second
	default:
		panic("counters: unknown window " + string(w))
	}
}

func (w Window) bucketCount() int64 {
	switch w {
	case Window5m:
		return 30
	case Window1h:
		return 60
	default:
		panic("counters: unknown window " + string(w))
	}
}

func (w Window) Duration() time.Duration {
	return w.bucketWidth() * time.Duration(w.bucketCount())
}

// bucketIndex returns the bucket index t falls into: a monotonically
// increasing counter, not wrapped — bucket keys expire via Redis TTL, so
// collisions across wraps never happen.
func (w Window) bucketIndex(t time.Time) int64 {
	return t.UnixNano() / int64(w.bucketWidth())
}

// activeBuckets returns every bucket index currently within the window,
// oldest first, ending at t's own bucket.
func (w Window) activeBuckets(t time.Time) []int64 {
	cur := w.bucketIndex(t)
	n := w.bucketCount()
	out := make([]int64, n)
	for i := int64(0); i < n; i++ {
		out[i] = cur - (n - 1) + i
	}
	return out
}
