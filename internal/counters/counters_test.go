package counters

import (
	"math"
	"testing"
	"time"
)

func TestBuySellRatio_ZeroSellIsPositiveInfinity(t *testing.T) {
	got := buySellRatio(5, 0)
	if !math.IsInf(got, 1) {
		t.Fatalf("ratio = %v, want +Inf", got)
	}
}

func TestBuySellRatio_BothZeroIsZero(t *testing.T) {
	if got := buySellRatio(0, 0); got != 0 {
		t.Fatalf("ratio = %v, want 0", got)
	}
}

func TestBuySellRatio_InfinityComparesGreaterThanAnyFinite(t *testing.T) {
	got := buySellRatio(1, 0)
	if !(got > 1_000_000.0) {
		t.Fatalf("+Inf sentinel must compare greater than every finite literal")
	}
}

func TestWindow_ActiveBuckets_CountMatchesSpec(t *testing.T) {
	if n := len(Window5m.activeBuckets(time.Now())); n != 30 {
		t.Fatalf("5m window should have 30 buckets, got %d", n)
	}
	if n := len(Window1h.activeBuckets(time.Now())); n != 60 {
		t.Fatalf("1h window should have 60 buckets, got %d", n)
	}
}

func TestWindow_BucketIndexMonotonic(t *testing.T) {
	t0 := time.Now()
	t1 := t0.Add(Window5m.bucketWidth())
	if Window5m.bucketIndex(t1) <= Window5m.bucketIndex(t0) {
		t.Fatalf("bucket index must increase across a bucket-width step")
	}
}

func TestTopKShare_EmptyVolumeIsZero(t *testing.T) {
	if got := topKShare(nil, 3, 0); got != 0 {
		t.Fatalf("share with zero total volume = %v, want 0", got)
	}
}

func TestTopKShare_MergesAcrossBucketsAndCaps(t *testing.T) {
	lists := []topList{
		{{wallet: "a", volume: 10}, {wallet: "b", volume: 5}},
		{{wallet: "a", volume: 2}, {wallet: "c", volume: 1}},
	}
	// totals: a=12, b=5, c=1; total buy volume say 20; top-3 share = (12+5+1)/20
	got := topKShare(lists, 3, 20)
	want := (12.0 + 5.0 + 1.0) / 20.0
	if got != want {
		t.Fatalf("top3 share = %v, want %v", got, want)
	}
}
