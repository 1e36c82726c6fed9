package triggers

import (
	"testing"
	"time"

	"github.com/rlaau/swapsentry/shared/domain"
)

func addr(b byte) domain.Address {
	var a domain.Address
	a[31] = b
	return a
}

const validYAML = `
rules:
  - name: extreme_ratio
    enabled: true
    conditions:
      - field: buy_sell_ratio_5m
        op: ">"
        literal: 5
`

func TestLoad_ValidYAMLInstallsRules(t *testing.T) {
	e := NewEvaluator(time.Minute)
	if err := e.Load([]byte(validYAML)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	mint := addr(1)
	fired := e.Evaluate(mint, map[domain.FieldID]float64{domain.FieldBuySellRatio5m: 10}, time.Now())
	if len(fired) != 1 {
		t.Fatalf("expected rule to fire, got %d firings", len(fired))
	}
}

func TestLoad_UnknownFieldRejectedLeavesOldRulesIntact(t *testing.T) {
	e := NewEvaluator(time.Minute)
	if err := e.Load([]byte(validYAML)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	badYAML := `
rules:
  - name: bogus
    enabled: true
    conditions:
      - field: not_a_real_field
        op: ">"
        literal: 1
`
	if err := e.Load([]byte(badYAML)); err == nil {
		t.Fatalf("expected validation error for unknown field")
	}

	// Old rule must still fire: the bad reload must not have touched the
	// live pointer.
	mint := addr(1)
	fired := e.Evaluate(mint, map[domain.FieldID]float64{domain.FieldBuySellRatio5m: 10}, time.Now())
	if len(fired) != 1 {
		t.Fatalf("rejected reload must leave prior rules intact, got %d firings", len(fired))
	}
}

func TestEvaluate_CooldownSuppressesRefiring(t *testing.T) {
	e := NewEvaluator(time.Minute)
	if err := e.Load([]byte(validYAML)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	mint := addr(2)
	snap := map[domain.FieldID]float64{domain.FieldBuySellRatio5m: 10}
	now := time.Now()

	first := e.Evaluate(mint, snap, now)
	if len(first) != 1 {
		t.Fatalf("first evaluation should fire, got %d", len(first))
	}
	second := e.Evaluate(mint, snap, now.Add(time.Second))
	if len(second) != 0 {
		t.Fatalf("second evaluation within cooldown should be suppressed, got %d", len(second))
	}
	third := e.Evaluate(mint, snap, now.Add(2*time.Minute))
	if len(third) != 1 {
		t.Fatalf("evaluation after cooldown elapses should fire again, got %d", len(third))
	}
}

func TestEvaluate_InfinityLiteralComparisonAndPositiveInfSnapshot(t *testing.T) {
	e := NewEvaluator(time.Minute)
	if err := e.Load([]byte(validYAML)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	mint := addr(3)
	snap := map[domain.FieldID]float64{domain.FieldBuySellRatio5m: posInf()}
	fired := e.Evaluate(mint, snap, time.Now())
	if len(fired) != 1 {
		t.Fatalf("+Inf ratio must compare greater than the finite literal 5, got %d firings", len(fired))
	}
}

func posInf() float64 {
	var z float64
	return 1 / z
}
