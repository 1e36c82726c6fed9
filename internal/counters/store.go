// Package counters implements bucketed rolling 5m/1h aggregates per
// mint, backed by Redis. Unique-buyer/seller counts use a HyperLogLog
// per bucket (merged at read time); heavy-hitter wallet volume uses a
// bounded per-bucket sorted set merged client-side into a global top-3
// with a small heap.
package counters

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/redis/go-redis/v9"

	"github.com/rlaau/swapsentry/shared/domain"
)

const walletFirstSeenTTL = 7 * 24 * time.Hour

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Record applies one SwapEvent's contribution to every window's current
// bucket. The wallet_first_seen write happens unconditionally inside
// this call, never gated on a later write's success.
func (s *Store) Record(ctx context.Context, evt domain.SwapEvent) error {
	fsErr := s.recordWalletFirstSeen(ctx, evt.Wallet, evt.Time)
	for _, w := range []Window{Window5m, Window1h} {
		if err := s.recordWindow(ctx, evt, w); err != nil {
			return fmt.Errorf("counters: record %s: %w", w, err)
		}
	}
	return fsErr
}

func (s *Store) recordWindow(ctx context.Context, evt domain.SwapEvent, w Window) error {
	bucket := w.bucketIndex(evt.Time)
	mint := evt.BaseMint.String()
	ttl := w.Duration()

	countField, volField, hllKind := fieldsFor(evt.Side)

	pipe := s.rdb.TxPipeline()
	pipe.IncrBy(ctx, cntKey(mint, w, bucket, countField), 1)
	pipe.Expire(ctx, cntKey(mint, w, bucket, countField), ttl)

	volAmount, _ := evt.QuoteAmount.Float64()
	pipe.IncrByFloat(ctx, cntKey(mint, w, bucket, volField), volAmount)
	pipe.Expire(ctx, cntKey(mint, w, bucket, volField), ttl)

	if evt.Side == domain.SideBuy {
		pipe.ZIncrBy(ctx, topKey(mint, w, bucket), volAmount, evt.Wallet.String())
		pipe.ZRemRangeByRank(ctx, topKey(mint, w, bucket), 0, -11) // keep top 10 per bucket
		pipe.Expire(ctx, topKey(mint, w, bucket), ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return s.mergeIntoHLL(ctx, hllKey(mint, w, bucket, hllKind), evt.Wallet.String(), ttl)
}

func fieldsFor(side domain.Side) (countField, volField, hllKind string) {
	if side == domain.SideBuy {
		return fieldBuyCount, fieldBuyVolume, "buyers"
	}
	return fieldSellCount, fieldSellVolume, "sellers"
}

// mergeIntoHLL reads the bucket's current sketch (if any), inserts
// wallet, and writes it back. Bucket-granularity sketches keep the
// read-side merge cheap (at most bucketCount() merges per query).
func (s *Store) mergeIntoHLL(ctx context.Context, key, wallet string, ttl time.Duration) error {
	sk := hyperloglog.New()
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		if uerr := sk.UnmarshalBinary(raw); uerr != nil {
			return fmt.Errorf("unmarshal hll: %w", uerr)
		}
	} else if err != redis.Nil {
		return err
	}

	sk.Insert([]byte(wallet))

	raw, err := sk.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal hll: %w", err)
	}
	return s.rdb.Set(ctx, key, raw, ttl).Err()
}

func (s *Store) recordWalletFirstSeen(ctx context.Context, wallet domain.Address, t time.Time) error {
	key := walletFirstSeenKey(wallet.String())
	return s.rdb.SetNX(ctx, key, t.Unix(), walletFirstSeenTTL).Err()
}

// Snapshot computes every derived aggregate field for one (mint, window)
// pair, reading only buckets still within the window. All reads succeed
// even when counters are empty.
type Snapshot map[domain.FieldID]float64

func (s *Store) Snapshot(ctx context.Context, mint domain.Address, w Window) (Snapshot, error) {
	mintStr := mint.String()
	buckets := w.activeBuckets(time.Now())

	var buyCount, sellCount int64
	var buyVolume, sellVolume float64
	buyerHLL := hyperloglog.New()
	sellerHLL := hyperloglog.New()
	var topLists []topList
	var newWalletBuyers, totalBuyers int64

	for _, b := range buckets {
		bc, _ := s.rdb.Get(ctx, cntKey(mintStr, w, b, fieldBuyCount)).Int64()
		sc, _ := s.rdb.Get(ctx, cntKey(mintStr, w, b, fieldSellCount)).Int64()
		bv, _ := s.rdb.Get(ctx, cntKey(mintStr, w, b, fieldBuyVolume)).Float64()
		sv, _ := s.rdb.Get(ctx, cntKey(mintStr, w, b, fieldSellVolume)).Float64()
		buyCount += bc
		sellCount += sc
		buyVolume += bv
		sellVolume += sv

		if raw, err := s.rdb.Get(ctx, hllKey(mintStr, w, b, "buyers")).Bytes(); err == nil {
			var sk hyperloglog.Sketch
			if uerr := sk.UnmarshalBinary(raw); uerr == nil {
				_ = buyerHLL.Merge(&sk)
			}
		}
		if raw, err := s.rdb.Get(ctx, hllKey(mintStr, w, b, "sellers")).Bytes(); err == nil {
			var sk hyperloglog.Sketch
			if uerr := sk.UnmarshalBinary(raw); uerr == nil {
				_ = sellerHLL.Merge(&sk)
			}
		}

		if zs, err := s.rdb.ZRevRangeWithScores(ctx, topKey(mintStr, w, b), 0, 9).Result(); err == nil {
			tl := make(topList, 0, len(zs))
			for _, z := range zs {
				tl = append(tl, topEntry{wallet: fmt.Sprint(z.Member), volume: z.Score})
			}
			topLists = append(topLists, tl)
		}
	}

	cutoff := time.Now().Add(-w.Duration()).Unix()
	for _, tl := range topLists {
		for _, e := range tl {
			totalBuyers++
			if seenAt, err := s.rdb.Get(ctx, walletFirstSeenKey(e.wallet)).Int64(); err == nil && seenAt >= cutoff {
				newWalletBuyers++
			}
		}
	}

	snap := Snapshot{}
	snap[fieldByWindow(w, domain.FieldBuyCount5m, domain.FieldBuyCount1h)] = float64(buyCount)
	snap[fieldByWindow(w, domain.FieldSellCount5m, domain.FieldSellCount1h)] = float64(sellCount)
	snap[fieldByWindow(w, domain.FieldUniqueBuyers5m, domain.FieldUniqueBuyers1h)] = float64(buyerHLL.Estimate())
	snap[fieldByWindow(w, domain.FieldUniqueSellers5m, domain.FieldUniqueSellers1h)] = float64(sellerHLL.Estimate())
	snap[fieldByWindow(w, domain.FieldBuyVolumeSol5m, domain.FieldBuyVolumeSol1h)] = buyVolume
	snap[fieldByWindow(w, domain.FieldSellVolumeSol5m, domain.FieldSellVolumeSol1h)] = sellVolume

	avgBuy := 0.0
	if buyCount > 0 {
		avgBuy = buyVolume / float64(buyCount)
	}
	snap[fieldByWindow(w, domain.FieldAvgBuySize5m, domain.FieldAvgBuySize1h)] = avgBuy

	snap[fieldByWindow(w, domain.FieldBuySellRatio5m, domain.FieldBuySellRatio1h)] = buySellRatio(buyCount, sellCount)

	top3Share := topKShare(topLists, 3, buyVolume)
	snap[fieldByWindow(w, domain.FieldTop3BuyersVolShare5m, domain.FieldTop3BuyersVolShare1h)] = top3Share

	newWalletPct := 0.0
	if totalBuyers > 0 {
		newWalletPct = float64(newWalletBuyers) / float64(totalBuyers)
	}
	snap[fieldByWindow(w, domain.FieldNewWalletPct5m, domain.FieldNewWalletPct1h)] = newWalletPct

	return snap, nil
}

// buySellRatio uses a +∞ sentinel: ratio is +∞ only when sell_count is 0
// AND buy_count > 0; when both are 0 the ratio is 0.
func buySellRatio(buyCount, sellCount int64) float64 {
	if sellCount == 0 {
		if buyCount == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(buyCount) / float64(sellCount)
}

func fieldByWindow(w Window, f5m, f1h domain.FieldID) domain.FieldID {
	if w == Window5m {
		return f5m
	}
	return f1h
}

type topEntry struct {
	wallet string
	volume float64
}

type topList []topEntry

// topKShare merges every bucket's bounded top-10 list and returns the
// share of total buy_volume held by the global top-3 wallets, using a
// small bounded min-heap over the merged candidate set.
func topKShare(lists []topList, k int, totalBuyVolume float64) float64 {
	if totalBuyVolume <= 0 {
		return 0
	}
	byWallet := map[string]float64{}
	for _, tl := range lists {
		for _, e := range tl {
			byWallet[e.wallet] += e.volume
		}
	}

	h := &walletHeap{}
	heap.Init(h)
	for wallet, vol := range byWallet {
		heap.Push(h, topEntry{wallet: wallet, volume: vol})
		if h.Len() > k {
			heap.Pop(h)
		}
	}

	var sum float64
	for _, e := range *h {
		sum += e.volume
	}
	return sum / totalBuyVolume
}

// walletHeap is a min-heap on volume, so popping drops the smallest
// entry and the heap retains the k largest — the standard bounded top-K
// pattern over container/heap.
type walletHeap []topEntry

func (h walletHeap) Len() int            { return len(h) }
func (h walletHeap) Less(i, j int) bool  { return h[i].volume < h[j].volume }
func (h walletHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *walletHeap) Push(x interface{}) { *h = append(*h, x.(topEntry)) }
func (h *walletHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopBuyers merges every active bucket's bounded top-10 list for
// (mint, w) and returns up to k wallet addresses ranked by buy volume,
// for an alert's top_buyers field.
func (s *Store) TopBuyers(ctx context.Context, mint domain.Address, w Window, k int) ([]string, error) {
	mintStr := mint.String()
	byWallet := map[string]float64{}
	for _, b := range w.activeBuckets(time.Now()) {
		zs, err := s.rdb.ZRevRangeWithScores(ctx, topKey(mintStr, w, b), 0, 9).Result()
		if err != nil {
			continue
		}
		for _, z := range zs {
			byWallet[fmt.Sprint(z.Member)] += z.Score
		}
	}

	h := &walletHeap{}
	heap.Init(h)
	for wallet, vol := range byWallet {
		heap.Push(h, topEntry{wallet: wallet, volume: vol})
		if h.Len() > k {
			heap.Pop(h)
		}
	}

	out := make([]string, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		e := heap.Pop(h).(topEntry)
		out[i] = e.wallet
	}
	return out, nil
}

// Client lets callers (e.g. token-state promotion sweeps, trigger
// hot-reload pub/sub) reuse the same Redis connection.
func (s *Store) Client() *redis.Client { return s.rdb }
