package backpressure

import (
	"testing"
	"time"

	"github.com/rlaau/swapsentry/shared/mode"
)

func testThresholds() Thresholds {
	return Thresholds{
		LagWarn: 5 * time.Second, LagCrit: 20 * time.Second,
		BufferWarn: 1000, BufferCrit: 5000,
	}
}

func TestSample_StaysNormalBelowWarnThresholds(t *testing.T) {
	c := New(testThresholds(), mode.NewPublisher(), nil)
	got := c.Sample(time.Second, 10)
	if got != mode.Normal {
		t.Fatalf("mode = %v, want NORMAL", got)
	}
}

func TestSample_DowngradesImmediatelyOnBreach(t *testing.T) {
	c := New(testThresholds(), mode.NewPublisher(), nil)
	got := c.Sample(30*time.Second, 10)
	if got != mode.Critical {
		t.Fatalf("mode = %v, want CRITICAL (downgrade is immediate, no hysteresis)", got)
	}
}

func TestSample_RecoveryRequiresFiveConsecutiveConfirmations(t *testing.T) {
	pub := mode.NewPublisher()
	pub.Store(mode.Critical)
	c := New(testThresholds(), pub, nil)

	for i := 0; i < 4; i++ {
		got := c.Sample(time.Second, 10)
		if got != mode.Critical {
			t.Fatalf("sample %d: mode = %v, want still CRITICAL before 5 confirmations", i, got)
		}
	}
	got := c.Sample(time.Second, 10)
	if got != mode.Normal {
		t.Fatalf("mode after 5th confirming sample = %v, want NORMAL", got)
	}
}

func TestSample_RecoveryResetsCounterOnNonConfirmingSample(t *testing.T) {
	pub := mode.NewPublisher()
	pub.Store(mode.Critical)
	c := New(testThresholds(), pub, nil)

	c.Sample(time.Second, 10)
	c.Sample(time.Second, 10)
	// A breach resets the recovery streak.
	c.Sample(30*time.Second, 10)
	for i := 0; i < 4; i++ {
		got := c.Sample(time.Second, 10)
		if got != mode.Critical {
			t.Fatalf("sample %d after reset: mode = %v, want still CRITICAL", i, got)
		}
	}
	if got := c.Sample(time.Second, 10); got != mode.Normal {
		t.Fatalf("mode = %v, want NORMAL after a fresh run of 5 confirmations", got)
	}
}

func TestSample_DegradedIsAnIntermediateRecoveryStepFromCritical(t *testing.T) {
	pub := mode.NewPublisher()
	pub.Store(mode.Critical)
	c := New(testThresholds(), pub, nil)

	// Lag/buffer sit in the DEGRADED band, not NORMAL.
	for i := 0; i < 4; i++ {
		got := c.Sample(10*time.Second, 10)
		if got != mode.Critical {
			t.Fatalf("sample %d: mode = %v, want still CRITICAL", i, got)
		}
	}
	got := c.Sample(10*time.Second, 10)
	if got != mode.Degraded {
		t.Fatalf("mode = %v, want DEGRADED", got)
	}
}
