package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SwapEvent is emitted by the swap inferencer when confidence clears the
// configured floor.
type SwapEvent struct {
	Signature   string
	Slot        uint64
	Time        time.Time
	Side        Side
	BaseMint    Address
	QuoteMint   Address // always the native mint
	BaseAmount  decimal.Decimal
	QuoteAmount decimal.Decimal
	Wallet      Address
	Venue       Venue
	Confidence  float64
	McapAtSwap  *decimal.Decimal
}

// MintTouchEvent is the lightweight fallback when confidence is below
// floor: a mint was touched by this wallet but no swap is recorded.
type MintTouchEvent struct {
	Signature string
	Slot      uint64
	Time      time.Time
	Mint      Address
	Wallet    Address
}
