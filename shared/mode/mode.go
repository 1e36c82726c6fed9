// Package mode holds the process-wide backpressure mode: a single
// atomically-loaded enum published by the backpressure controller and
// read by the orchestrator, which gates sink persistence and counter
// updates on it, with no synchronization beyond the load.
package mode

import "sync/atomic"

type Mode int32

const (
	Normal Mode = iota
	Degraded
	Critical
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "NORMAL"
	case Degraded:
		return "DEGRADED"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// PersistSwaps reports whether inferred SwapEvents should be handed to
// the append-only sink. False in DEGRADED and CRITICAL.
func (m Mode) PersistSwaps() bool { return m == Normal }

// UpdateCounters reports whether rolling counter increments should
// happen for newly processed records. False only in CRITICAL.
func (m Mode) UpdateCounters() bool { return m != Critical }

// Publisher is a process-wide, lock-free holder for the current Mode.
type Publisher struct {
	v atomic.Int32
}

func NewPublisher() *Publisher {
	p := &Publisher{}
	p.v.Store(int32(Normal))
	return p
}

func (p *Publisher) Load() Mode { return Mode(p.v.Load()) }

func (p *Publisher) Store(m Mode) { p.v.Store(int32(m)) }

// CompareAndSwap stores new only if the current mode is old, and reports
// whether it did. The controller itself publishes with Store.
func (p *Publisher) CompareAndSwap(old, new Mode) bool {
	return p.v.CompareAndSwap(int32(old), int32(new))
}
