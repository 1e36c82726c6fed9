package deltas

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rlaau/swapsentry/shared/domain"
)

func addr(b byte) domain.Address {
	var a domain.Address
	a[31] = b
	return a
}

func TestExtract_SimpleBuyDeltas(t *testing.T) {
	wallet := addr(1)
	mint := addr(2)

	tx := domain.RawTransaction{
		Signature: "sig-1",
		PreTokenBalances: []domain.TokenBalance{
			{Owner: wallet, Mint: mint, RawAmount: decimal.NewFromInt(0), Decimals: 6},
		},
		PostTokenBalances: []domain.TokenBalance{
			{Owner: wallet, Mint: mint, RawAmount: decimal.NewFromInt(1_000_000), Decimals: 6},
		},
		PreLamports:  map[domain.Address]uint64{wallet: 2_000_000_000},
		PostLamports: map[domain.Address]uint64{wallet: 1_000_000_000},
		FeePayer:     wallet,
		FeeLamports:  5_000,
	}

	out := Extract(tx)

	gotToken, ok := out.TokenDeltas[domain.TokenDeltaKey{Owner: wallet, Mint: mint}]
	if !ok || !gotToken.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("token delta = %v, ok=%v; want 1", gotToken, ok)
	}

	gotNative := out.NativeDeltas[wallet]
	wantNative := decimal.New(-1_000_005_000, -9)
	if !gotNative.Equal(wantNative) {
		t.Fatalf("native delta = %v, want %v", gotNative, wantNative)
	}
}

func TestExtract_WrappedSolFoldsIntoNativeDeltas(t *testing.T) {
	wallet := addr(1)
	wsol, err := domain.ParseAddress(domain.NativeMint)
	if err != nil {
		t.Fatalf("parse native mint: %v", err)
	}

	tx := domain.RawTransaction{
		Signature: "sig-2",
		PostTokenBalances: []domain.TokenBalance{
			{Owner: wallet, Mint: wsol, RawAmount: decimal.NewFromInt(500_000_000), Decimals: 9},
		},
		PreLamports:  map[domain.Address]uint64{wallet: 1_000_000_000},
		PostLamports: map[domain.Address]uint64{wallet: 1_000_000_000},
	}

	out := Extract(tx)

	if _, ok := out.TokenDeltas[domain.TokenDeltaKey{Owner: wallet, Mint: wsol}]; ok {
		t.Fatalf("wrapped-SOL must not appear in token_deltas")
	}
	want := decimal.New(500_000_000, -9)
	if got := out.NativeDeltas[wallet]; !got.Equal(want) {
		t.Fatalf("native delta = %v, want %v", got, want)
	}
}

func TestExtract_MissingPrePostTreatedAsZero(t *testing.T) {
	wallet := addr(1)
	mint := addr(3)

	// Only a post balance, no pre entry at all.
	tx := domain.RawTransaction{
		Signature: "sig-3",
		PostTokenBalances: []domain.TokenBalance{
			{Owner: wallet, Mint: mint, RawAmount: decimal.NewFromInt(42), Decimals: 0},
		},
	}

	out := Extract(tx)
	got := out.TokenDeltas[domain.TokenDeltaKey{Owner: wallet, Mint: mint}]
	if !got.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("token delta = %v, want 42", got)
	}
}
