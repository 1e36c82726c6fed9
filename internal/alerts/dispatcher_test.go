package alerts

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSentinelRatio_InfinityBecomesLargeFiniteNumber(t *testing.T) {
	inf := posInf()
	got := SentinelRatio(inf)
	if got != infinitySentinel {
		t.Fatalf("SentinelRatio(+Inf) = %v, want %v", got, infinitySentinel)
	}
}

func TestSentinelRatio_FiniteValuesPassThrough(t *testing.T) {
	if got := SentinelRatio(3.5); got != 3.5 {
		t.Fatalf("SentinelRatio(3.5) = %v, want 3.5", got)
	}
}

func posInf() float64 {
	var z float64
	return 1 / z
}

func TestChannel_DeliversOnFirstSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch, err := NewChannel("test", srv.URL, 100, 10, filepath.Join(t.TempDir(), "q.jsonl"), 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	ch.deliver(t.Context(), Alert{TriggerName: "x"})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestChannel_NonRetryable4xxStopsAfterOneAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ch, err := NewChannel("test", srv.URL, 100, 10, filepath.Join(t.TempDir(), "q.jsonl"), 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	ch.deliver(t.Context(), Alert{TriggerName: "x"})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want exactly 1 (400 is non-retryable)", got)
	}
}

func TestChannel_ServerErrorRetriesUpToMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch, err := NewChannel("test", srv.URL, 100, 10, filepath.Join(t.TempDir(), "q.jsonl"), 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	ch.deliver(t.Context(), Alert{TriggerName: "x"})

	if got := atomic.LoadInt32(&calls); got != defaultMaxAttempts {
		t.Fatalf("calls = %d, want %d", got, defaultMaxAttempts)
	}
}

func TestChannel_429RetryAfterOverridesDefaultBackoffDelay(t *testing.T) {
	var calls int32
	var firstAttemptAt, secondAttemptAt time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			firstAttemptAt = time.Now()
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		secondAttemptAt = time.Now()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch, err := NewChannel("test", srv.URL, 100, 10, filepath.Join(t.TempDir(), "q.jsonl"), 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	start := time.Now()
	ch.deliver(t.Context(), Alert{TriggerName: "x"})

	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if secondAttemptAt.Sub(firstAttemptAt) > 500*time.Millisecond {
		t.Fatalf("retry_after=0 should make the retry near-immediate, took %v (%v since deliver began)", secondAttemptAt.Sub(firstAttemptAt), secondAttemptAt.Sub(start))
	}
}
