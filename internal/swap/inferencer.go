// Package swap, given one transaction's extracted deltas, identifies at
// most one (base_mint, wallet, side) swap and scores its confidence. The
// inferencer is pure — same input, same output — so it needs no
// external state beyond the short-term unseen-mint cache it is handed.
package swap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rlaau/swapsentry/shared/domain"
)

// Penalties are the confidence deductions applied per defect, calibrated
// so a single missing-venue swap with no other defects still clears the
// default 0.7 floor.
const (
	PenaltyMissingVenue     = 0.15
	PenaltyCompetingDelta   = 0.10
	PenaltyCompetingDeltaCap = 0.30
	PenaltyFeeRatioAnomaly  = 0.20
	PenaltyUnseenMint       = 0.10
)

// dustFloor below which an opposing native delta is too small to count
// as a swap's quote leg (vs. rounding noise).
var dustFloor = decimal.NewFromFloat(0.0001)

// typicalFeeRatioMax bounds |native_delta| / fee as "not anomalous";
// beyond this the native leg looks more like an unrelated transfer than
// a swap's SOL leg.
const typicalFeeRatioMax = 1_000_000.0

type Inferencer struct {
	ConfidenceFloor float64
}

func New(confidenceFloor float64) *Inferencer {
	return &Inferencer{ConfidenceFloor: confidenceFloor}
}

// MintSeenBefore is injected by the caller, backed by a short-term
// cache; returning false applies the unseen-mint penalty.
type MintSeenBefore func(mint domain.Address) bool

// Result carries the SwapEvent when confidence cleared the floor (nil
// otherwise) and, in both cases, one MintTouchEvent per token delta.
type Result struct {
	Swap    *domain.SwapEvent
	Touches []domain.MintTouchEvent
}

func (inf *Inferencer) Infer(d domain.ExtractedDeltas, effectiveTime time.Time, feeLamports uint64, seen MintSeenBefore) Result {
	candidates := nonZeroCandidates(d)
	if len(candidates) == 0 {
		return Result{}
	}

	best := selectDominant(candidates, d.NativeDeltas)
	touches := touchesFor(d, effectiveTime)

	if best == nil {
		return Result{Touches: touches}
	}

	nativeDelta := d.NativeDeltas[best.Owner]
	var side domain.Side
	switch {
	case best.Delta.GreaterThan(decimal.Zero) && nativeDelta.LessThan(decimal.Zero):
		side = domain.SideBuy
	case best.Delta.LessThan(decimal.Zero) && nativeDelta.GreaterThan(decimal.Zero):
		side = domain.SideSell
	default:
		return Result{Touches: touches} // no buy/sell-consistent pairing
	}

	confidence := 1.0
	if d.VenueHint == domain.VenueUnknown {
		confidence -= PenaltyMissingVenue
	}
	if extra := len(candidates) - 1; extra > 0 {
		confidence -= min(float64(extra)*PenaltyCompetingDelta, PenaltyCompetingDeltaCap)
	}
	if isFeeRatioAnomalous(nativeDelta, feeLamports) {
		confidence -= PenaltyFeeRatioAnomaly
	}
	if seen != nil && !seen(best.Mint) {
		confidence -= PenaltyUnseenMint
	}
	if confidence < 0 {
		confidence = 0
	}

	if confidence < inf.ConfidenceFloor {
		return Result{Touches: touches}
	}

	quoteAmount := nativeDelta.Abs()
	swapEvt := &domain.SwapEvent{
		Signature:   d.Signature,
		Slot:        d.Slot,
		Time:        effectiveTime,
		Side:        side,
		BaseMint:    best.Mint,
		QuoteMint:   nativeMintAddr,
		BaseAmount:  best.Delta.Abs(),
		QuoteAmount: quoteAmount,
		Wallet:      best.Owner,
		Venue:       d.VenueHint,
		Confidence:  confidence,
	}
	return Result{Swap: swapEvt, Touches: touches}
}

type candidate struct {
	Owner domain.Address
	Mint  domain.Address
	Delta decimal.Decimal
}

func nonZeroCandidates(d domain.ExtractedDeltas) []candidate {
	var out []candidate
	for k, v := range d.TokenDeltas {
		if !v.IsZero() {
			out = append(out, candidate{Owner: k.Owner, Mint: k.Mint, Delta: v})
		}
	}
	return out
}

// selectDominant picks the candidate with the largest |token_delta| whose
// owner also has an opposing-sign native delta above dustFloor. Ties
// break by larger |native_delta|, then lexicographic mint.
func selectDominant(candidates []candidate, nativeDeltas map[domain.Address]decimal.Decimal) *candidate {
	var best *candidate
	var bestNativeAbs decimal.Decimal

	for i := range candidates {
		c := candidates[i]
		nd, ok := nativeDeltas[c.Owner]
		if !ok || nd.Abs().LessThanOrEqual(dustFloor) {
			continue
		}
		if c.Delta.Sign() == nd.Sign() {
			continue // same-sign pair can't be a buy or sell leg
		}

		switch {
		case best == nil:
			best = &c
			bestNativeAbs = nd.Abs()
		case c.Delta.Abs().GreaterThan(best.Delta.Abs()):
			best = &c
			bestNativeAbs = nd.Abs()
		case c.Delta.Abs().Equal(best.Delta.Abs()):
			switch {
			case nd.Abs().GreaterThan(bestNativeAbs):
				best = &c
				bestNativeAbs = nd.Abs()
			case nd.Abs().Equal(bestNativeAbs) && c.Mint.IsSmallerThan(best.Mint):
				best = &c
				bestNativeAbs = nd.Abs()
			}
		}
	}
	return best
}

func touchesFor(d domain.ExtractedDeltas, effectiveTime time.Time) []domain.MintTouchEvent {
	var touches []domain.MintTouchEvent
	for k := range d.TokenDeltas {
		touches = append(touches, domain.MintTouchEvent{
			Signature: d.Signature,
			Slot:      d.Slot,
			Time:      effectiveTime,
			Mint:      k.Mint,
			Wallet:    k.Owner,
		})
	}
	return touches
}

func isFeeRatioAnomalous(nativeDelta decimal.Decimal, feeLamports uint64) bool {
	if feeLamports == 0 {
		return false
	}
	fee := decimal.New(int64(feeLamports), -int32(domain.NativeDecimals))
	if fee.IsZero() {
		return false
	}
	ratio, _ := nativeDelta.Abs().Div(fee).Float64()
	return ratio > typicalFeeRatioMax
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

var nativeMintAddr = mustParseNativeMint()

func mustParseNativeMint() domain.Address {
	a, err := domain.ParseAddress(domain.NativeMint)
	if err != nil {
		panic(err)
	}
	return a
}
