package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance is one entry of a transaction's pre/post token balance list.
type TokenBalance struct {
	Owner     Address
	Mint      Address
	RawAmount decimal.Decimal // integer, in the mint's smallest unit
	Decimals  int32
}

// Amount returns the balance converted into decimal units.
func (b TokenBalance) Amount() decimal.Decimal {
	return b.RawAmount.Shift(-b.Decimals)
}

// RawTransaction is the immutable record the durable stream emits on read
// and the delta extractor consumes. It is never mutated after ingestion.
type RawTransaction struct {
	Signature         string
	Slot              uint64
	IngestTime         time.Time
	BlockTime          *time.Time // optional; nil when upstream omits it
	AccountKeys        []Address
	PreTokenBalances   []TokenBalance
	PostTokenBalances  []TokenBalance
	PreLamports        map[Address]uint64
	PostLamports       map[Address]uint64
	ProgramIDsTouched  []string
	FeePayer           Address
	FeeLamports        uint64
}

// EffectiveTime is block_time when present, otherwise ingest_time.
func (r RawTransaction) EffectiveTime() time.Time {
	if r.BlockTime != nil {
		return *r.BlockTime
	}
	return r.IngestTime
}

// DedupKey is the signature, or a synthetic id:<record-id> substitute when
// the signature is empty/sentinel so dedup never collapses unrelated
// records.
func (r RawTransaction) DedupKey(recordID string) string {
	if r.Signature == "" || r.Signature == "1111111111111111111111111111111111111111111111111111111111111111" {
		return "id:" + recordID
	}
	return r.Signature
}
