package state

import (
	"testing"
	"time"

	"github.com/rlaau/swapsentry/shared/domain"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(t.TempDir(), time.Hour, 30*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func addr(b byte) domain.Address {
	var a domain.Address
	a[31] = b
	return a
}

func TestTouch_FirstContactMovesColdToWarm(t *testing.T) {
	m := newManager(t)
	now := time.Now()
	p, err := m.Touch(addr(1), now)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if p.State != domain.TokenWarm {
		t.Fatalf("state = %v, want WARM", p.State)
	}
}

func TestPromote_WarmToHotSetsTTLAndSchedulesBackfillOnce(t *testing.T) {
	m := newManager(t)
	mint := addr(2)
	now := time.Now()
	if _, err := m.Touch(mint, now); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	backfills := 0
	m.Backfill = func(domain.Address) { backfills++ }

	p, err := m.Promote(mint, now)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if p.State != domain.TokenHot {
		t.Fatalf("state = %v, want HOT", p.State)
	}
	if p.HotTTLExpiresAt == nil {
		t.Fatalf("expected hot_ttl_expires_at to be set")
	}

	// Refiring while already HOT must not re-trigger backfill.
	if _, err := m.Promote(mint, now.Add(time.Minute)); err != nil {
		t.Fatalf("Promote (refire): %v", err)
	}
	if backfills != 1 {
		t.Fatalf("backfills = %d, want exactly 1", backfills)
	}
}

func TestSweepExpiredHot_DemotesExactlyAtDeadline(t *testing.T) {
	m := newManager(t)
	mint := addr(3)
	now := time.Now()
	if _, err := m.Touch(mint, now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if _, err := m.Promote(mint, now); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	deadline := now.Add(m.hotTTL)
	if err := m.SweepExpiredHot(deadline); err != nil {
		t.Fatalf("SweepExpiredHot: %v", err)
	}

	p, found, err := m.Get(mint)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if p.State != domain.TokenWarm {
		t.Fatalf("state at exact deadline = %v, want WARM (deadline is inclusive)", p.State)
	}
}

func TestSweepExpiredHot_LeavesUnexpiredHotAlone(t *testing.T) {
	m := newManager(t)
	mint := addr(4)
	now := time.Now()
	if _, err := m.Touch(mint, now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if _, err := m.Promote(mint, now); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	if err := m.SweepExpiredHot(now.Add(time.Minute)); err != nil {
		t.Fatalf("SweepExpiredHot: %v", err)
	}
	p, _, err := m.Get(mint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.State != domain.TokenHot {
		t.Fatalf("state = %v, want still HOT before ttl elapses", p.State)
	}
}

func TestShouldAlert_CooldownGatesIndependentlyOfState(t *testing.T) {
	m := newManager(t)
	mint := addr(5)
	now := time.Now()

	ok, err := m.ShouldAlert(mint, now)
	if err != nil || !ok {
		t.Fatalf("first alert should be allowed: ok=%v err=%v", ok, err)
	}
	ok, err = m.ShouldAlert(mint, now.Add(time.Second))
	if err != nil || ok {
		t.Fatalf("second alert within cooldown should be denied: ok=%v err=%v", ok, err)
	}
	ok, err = m.ShouldAlert(mint, now.Add(10*time.Minute))
	if err != nil || !ok {
		t.Fatalf("alert after cooldown elapses should be allowed: ok=%v err=%v", ok, err)
	}
}
