package ingest

import (
	"testing"
	"time"
)

// newBareStream builds a Stream with only the bookkeeping fields
// populated, exercising the ack/low-water-mark logic without a live
// Kafka broker.
func newBareStream(start int64) *Stream {
	return &Stream{
		pending: make(map[int64]time.Time),
		acked:   make(map[int64]bool),
		lwm:     start,
	}
}

func TestAck_AdvancesLowWaterMarkOverContiguousPrefix(t *testing.T) {
	s := newBareStream(0)
	s.pending[0] = time.Now()
	s.pending[1] = time.Now()
	s.pending[2] = time.Now()

	s.Ack(1) // out of order: 0 still unacked
	if got := s.LowWaterMark(); got != 0 {
		t.Fatalf("lwm should stay at 0 until offset 0 acks, got %d", got)
	}

	s.Ack(0)
	if got := s.LowWaterMark(); got != 2 {
		t.Fatalf("lwm should jump to 2 once 0 and 1 are both acked, got %d", got)
	}

	s.Ack(2)
	if got := s.LowWaterMark(); got != 3 {
		t.Fatalf("lwm should advance to 3 after acking 2, got %d", got)
	}
}

func TestAck_Idempotent(t *testing.T) {
	s := newBareStream(0)
	s.pending[0] = time.Now()
	s.Ack(0)
	s.Ack(0) // re-ack of an already-passed offset must not panic or regress lwm
	if got := s.LowWaterMark(); got != 1 {
		t.Fatalf("want lwm=1, got %d", got)
	}
}

func TestAck_BelowWatermarkIsNoop(t *testing.T) {
	s := newBareStream(5)
	s.Ack(3) // offset already behind the watermark
	if got := s.LowWaterMark(); got != 5 {
		t.Fatalf("acking a stale offset must not move lwm backward, got %d", got)
	}
}
