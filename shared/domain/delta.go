package domain

import "github.com/shopspring/decimal"

// TokenDeltaKey identifies a per-(owner, mint) balance change.
type TokenDeltaKey struct {
	Owner Address
	Mint  Address
}

// ExtractedDeltas is the delta extractor's output: the per-owner/mint and
// per-owner-native balance changes for one transaction, plus the first
// recognized venue.
type ExtractedDeltas struct {
	Signature    string
	Slot         uint64
	TokenDeltas  map[TokenDeltaKey]decimal.Decimal // mint != native
	NativeDeltas map[Address]decimal.Decimal       // native units (SOL), wrapped-SOL folded in
	VenueHint    Venue
}
