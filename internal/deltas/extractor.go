// Package deltas derives per-(owner,mint) token deltas and per-owner
// native deltas from a RawTransaction's pre/post balance snapshots,
// folding wrapped-SOL into the native delta and attributing the
// transaction fee to the fee payer.
package deltas

import (
	"github.com/shopspring/decimal"

	"github.com/rlaau/swapsentry/shared/domain"
)

// dustThreshold below which a one-sided native transfer is treated as a
// rent-exempt account-creation transfer rather than swap activity, when
// it also touches no known venue program id.
var dustThreshold = decimal.NewFromFloat(0.002) // ~ rent-exempt minimum for a token account

var nativeMintAddr = mustParseNative()

func Extract(tx domain.RawTransaction) domain.ExtractedDeltas {
	tokenDeltas := make(map[domain.TokenDeltaKey]decimal.Decimal)
	for _, pre := range tx.PreTokenBalances {
		tokenDeltas[domain.TokenDeltaKey{Owner: pre.Owner, Mint: pre.Mint}] = pre.Amount().Neg()
	}
	for _, post := range tx.PostTokenBalances {
		key := domain.TokenDeltaKey{Owner: post.Owner, Mint: post.Mint}
		tokenDeltas[key] = tokenDeltas[key].Add(post.Amount())
	}
	for k, v := range tokenDeltas {
		if v.IsZero() {
			delete(tokenDeltas, k)
		}
	}

	nativeDeltas := make(map[domain.Address]decimal.Decimal)
	for owner, pre := range tx.PreLamports {
		post := tx.PostLamports[owner]
		delta := lamportsToNative(int64(post) - int64(pre))
		nativeDeltas[owner] = nativeDeltas[owner].Add(delta)
	}

	// Fold wrapped-SOL token deltas into native_deltas, then remove them
	// from token_deltas so the swap inferencer never double-counts SOL
	// as both a token leg and the native leg.
	for k, v := range tokenDeltas {
		if k.Mint == nativeMintAddr {
			nativeDeltas[k.Owner] = nativeDeltas[k.Owner].Add(v)
			delete(tokenDeltas, k)
		}
	}

	if !tx.FeePayer.IsZero() {
		feeNative := lamportsToNative(int64(tx.FeeLamports))
		nativeDeltas[tx.FeePayer] = nativeDeltas[tx.FeePayer].Sub(feeNative)
	}

	if isLikelyRentExemptTransfer(tx, nativeDeltas) {
		nativeDeltas = map[domain.Address]decimal.Decimal{}
	}

	return domain.ExtractedDeltas{
		Signature:    tx.Signature,
		Slot:         tx.Slot,
		TokenDeltas:  tokenDeltas,
		NativeDeltas: nativeDeltas,
		VenueHint:    domain.VenueForProgramIDs(tx.ProgramIDsTouched),
	}
}

func lamportsToNative(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -int32(domain.NativeDecimals))
}

// isLikelyRentExemptTransfer excludes small, one-sided native transfers
// that touch no recognized swap venue, treating them as account-creation
// rent funding rather than swap activity.
func isLikelyRentExemptTransfer(tx domain.RawTransaction, nativeDeltas map[domain.Address]decimal.Decimal) bool {
	if domain.VenueForProgramIDs(tx.ProgramIDsTouched) != domain.VenueUnknown {
		return false
	}
	if len(nativeDeltas) != 2 {
		return false
	}
	var positives, negatives int
	for _, d := range nativeDeltas {
		if d.IsZero() {
			continue
		}
		if d.GreaterThan(decimal.Zero) {
			positives++
		} else {
			negatives++
		}
		if d.Abs().GreaterThan(dustThreshold) {
			return false
		}
	}
	return positives == 1 && negatives == 1
}

func mustParseNative() domain.Address {
	addr, err := domain.ParseAddress(domain.NativeMint)
	if err != nil {
		panic(err)
	}
	return addr
}
