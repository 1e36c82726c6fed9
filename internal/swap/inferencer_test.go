package swap

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rlaau/swapsentry/shared/domain"
)

func addr(b byte) domain.Address {
	var a domain.Address
	a[31] = b
	return a
}

func TestInfer_SimpleBuyClearsConfidenceFloor(t *testing.T) {
	wallet, mint := addr(1), addr(2)
	d := domain.ExtractedDeltas{
		Signature:   "sig-1",
		TokenDeltas: map[domain.TokenDeltaKey]decimal.Decimal{{Owner: wallet, Mint: mint}: decimal.NewFromInt(100)},
		NativeDeltas: map[domain.Address]decimal.Decimal{
			wallet: decimal.NewFromFloat(-1.5),
		},
		VenueHint: domain.VenuePump,
	}

	inf := New(0.5)
	res := inf.Infer(d, time.Now(), 5000, func(domain.Address) bool { return true })

	if res.Swap == nil {
		t.Fatalf("expected a SwapEvent, got none (touches=%v)", res.Touches)
	}
	if res.Swap.Side != domain.SideBuy {
		t.Fatalf("side = %v, want buy", res.Swap.Side)
	}
	if res.Swap.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0 (no penalties apply)", res.Swap.Confidence)
	}
}

func TestInfer_BelowFloorEmitsOnlyTouches(t *testing.T) {
	wallet, mint := addr(1), addr(2)
	d := domain.ExtractedDeltas{
		Signature:   "sig-2",
		TokenDeltas: map[domain.TokenDeltaKey]decimal.Decimal{{Owner: wallet, Mint: mint}: decimal.NewFromInt(100)},
		NativeDeltas: map[domain.Address]decimal.Decimal{
			wallet: decimal.NewFromFloat(-1.5),
		},
		VenueHint: domain.VenueUnknown, // -0.15
	}

	inf := New(0.95) // floor just above 1 - 0.15
	res := inf.Infer(d, time.Now(), 5000, func(domain.Address) bool { return false })

	if res.Swap != nil {
		t.Fatalf("expected no SwapEvent below floor, got %+v", res.Swap)
	}
	if len(res.Touches) != 1 {
		t.Fatalf("want exactly one MintTouchEvent, got %d", len(res.Touches))
	}
}

func TestInfer_ConfidenceEqualToFloorIsAccepted(t *testing.T) {
	wallet, mint := addr(1), addr(2)
	d := domain.ExtractedDeltas{
		Signature:   "sig-3",
		TokenDeltas: map[domain.TokenDeltaKey]decimal.Decimal{{Owner: wallet, Mint: mint}: decimal.NewFromInt(100)},
		NativeDeltas: map[domain.Address]decimal.Decimal{
			wallet: decimal.NewFromFloat(-1.5),
		},
		VenueHint: domain.VenueUnknown, // -0.15 -> confidence 0.85
	}

	inf := New(0.85)
	res := inf.Infer(d, time.Now(), 5000, func(domain.Address) bool { return true })
	if res.Swap == nil {
		t.Fatalf("confidence==floor must be accepted (inclusive)")
	}
}

func TestInfer_TiesBreakByLargerNativeDeltaThenMint(t *testing.T) {
	wallet := addr(1)
	mintLow, mintHigh := addr(2), addr(9)
	d := domain.ExtractedDeltas{
		Signature: "sig-4",
		TokenDeltas: map[domain.TokenDeltaKey]decimal.Decimal{
			{Owner: wallet, Mint: mintLow}:  decimal.NewFromInt(100),
			{Owner: wallet, Mint: mintHigh}: decimal.NewFromInt(100),
		},
		NativeDeltas: map[domain.Address]decimal.Decimal{wallet: decimal.NewFromFloat(-1.5)},
		VenueHint:    domain.VenuePump,
	}

	inf := New(0.1)
	res := inf.Infer(d, time.Now(), 5000, func(domain.Address) bool { return true })
	if res.Swap == nil {
		t.Fatalf("expected a swap event")
	}
	if res.Swap.BaseMint != mintLow {
		t.Fatalf("tie-break should pick lexicographically smaller mint")
	}
}
