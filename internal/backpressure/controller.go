// Package backpressure samples processing lag and buffer depth once a
// second and drives the process-wide mode.Publisher through
// NORMAL/DEGRADED/CRITICAL, with 5-consecutive-sample hysteresis before
// recovering toward NORMAL. Thresholds are hot-reloadable via atomic
// pointer swap, the same discipline the trigger evaluator uses for rule
// reloads. The saturation-banded decision shape is narrowed to the three
// discrete modes this pipeline needs instead of a continuous
// batch/interval signal.
package backpressure

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rlaau/swapsentry/shared/mode"
)

type Thresholds struct {
	LagWarn    time.Duration // Lw
	LagCrit    time.Duration // Lc
	BufferWarn int64         // Bw
	BufferCrit int64         // Bc
}

// Sampler provides the two raw inputs the controller observes each tick.
type Sampler interface {
	ProcessingLag() time.Duration
	BufferLength() int64
}

type Controller struct {
	thresholds atomic.Pointer[Thresholds]
	publisher  *mode.Publisher
	log        *zap.Logger

	consecutiveDowngradeConfirms int
}

func New(thresholds Thresholds, publisher *mode.Publisher, log *zap.Logger) *Controller {
	c := &Controller{publisher: publisher, log: log}
	c.thresholds.Store(&thresholds)
	return c
}

func (c *Controller) SetThresholds(t Thresholds) { c.thresholds.Store(&t) }

// Sample evaluates one tick's lag/buffer reading and applies the mode
// transition table, returning the mode now in effect.
func (c *Controller) Sample(lag time.Duration, bufferLen int64) mode.Mode {
	t := *c.thresholds.Load()
	target := classify(lag, bufferLen, t)
	current := c.publisher.Load()

	if target == current {
		c.consecutiveDowngradeConfirms = 0
		return current
	}

	if isRecovery(current, target) {
		c.consecutiveDowngradeConfirms++
		if c.consecutiveDowngradeConfirms < 5 {
			return current
		}
		c.consecutiveDowngradeConfirms = 0
	} else {
		c.consecutiveDowngradeConfirms = 0
	}

	c.publisher.Store(target)
	if c.log != nil {
		c.log.Info("backpressure mode transition",
			zap.String("from", current.String()), zap.String("to", target.String()),
			zap.Duration("lag", lag), zap.Int64("buffer_len", bufferLen))
	}
	return target
}

// isRecovery reports whether target is a step toward NORMAL from current
// (CRITICAL→DEGRADED, DEGRADED→NORMAL, CRITICAL→NORMAL all count).
func isRecovery(current, target mode.Mode) bool { return target < current }

func classify(lag time.Duration, bufferLen int64, t Thresholds) mode.Mode {
	if lag >= t.LagCrit || bufferLen >= t.BufferCrit {
		return mode.Critical
	}
	if lag >= t.LagWarn || bufferLen >= t.BufferWarn {
		return mode.Degraded
	}
	return mode.Normal
}

// Run samples s once a second until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, s Sampler) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sample(s.ProcessingLag(), s.BufferLength())
		}
	}
}
