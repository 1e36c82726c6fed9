// Package orchestrator wires every pipeline component into the five
// background loops the running process supervises: stream consumers,
// the trigger detector tick, the alert dispatcher drain, the delta log
// flusher, and the backpressure sampler. It owns no business logic of
// its own beyond sequencing calls into the components it holds.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rlaau/swapsentry/internal/alerts"
	"github.com/rlaau/swapsentry/internal/backpressure"
	"github.com/rlaau/swapsentry/internal/cluster"
	"github.com/rlaau/swapsentry/internal/counters"
	"github.com/rlaau/swapsentry/internal/dedup"
	"github.com/rlaau/swapsentry/internal/deltalog"
	"github.com/rlaau/swapsentry/internal/deltas"
	"github.com/rlaau/swapsentry/internal/ingest"
	"github.com/rlaau/swapsentry/internal/sink"
	"github.com/rlaau/swapsentry/internal/state"
	"github.com/rlaau/swapsentry/internal/swap"
	"github.com/rlaau/swapsentry/internal/triggers"
	"github.com/rlaau/swapsentry/internal/txsource"
	"github.com/rlaau/swapsentry/shared/domain"
	"github.com/rlaau/swapsentry/shared/metrics"
	"github.com/rlaau/swapsentry/shared/mode"
)

const (
	defaultDetectTickInterval = time.Second
	defaultFlushInterval      = 10 * time.Minute
	defaultClaimIdleInterval  = 30 * time.Second
	alertTopBuyersCount       = 3
	defaultClaimIdleMinAge    = time.Minute
	activeMintEvictAfter      = 2 * time.Hour
)

// Deps bundles every already-constructed component the orchestrator
// sequences. Assembling these belongs to the process entry point; the
// orchestrator itself only wires calls between them.
type Deps struct {
	Stream       *ingest.Stream
	Dedup        *dedup.Filter
	Inferencer   *swap.Inferencer
	Counters     *counters.Store
	Evaluator    *triggers.Evaluator
	State        *state.Manager
	DeltaLog     *deltalog.Log
	Backpressure *backpressure.Controller
	Clusters     *cluster.UnionFind
	Scorer       *cluster.Scorer
	Dispatcher   *alerts.Dispatcher
	Upstream     *txsource.Client
	Sink         *sink.Client
	Publisher    *mode.Publisher
	Log          *zap.Logger

	ConsumerCount        int
	ConsumerNameOverride string
	DeltaLogRetention    time.Duration
}

type Orchestrator struct {
	Deps

	active        sync.Map // domain.Address -> time.Time (last touch)
	seenMints     sync.Map // domain.Address -> struct{} (short-term unseen-mint cache)
	seenWallets   sync.Map // domain.Address -> struct{} (first-swap funder linking)
	lastProcessed atomic.Int64
}

func New(d Deps) *Orchestrator {
	if d.ConsumerCount < 1 {
		d.ConsumerCount = 1
	}
	if d.DeltaLogRetention <= 0 {
		d.DeltaLogRetention = 48 * time.Hour
	}
	o := &Orchestrator{Deps: d}
	o.lastProcessed.Store(time.Now().UnixNano())
	o.State.Backfill = func(mint domain.Address) { go o.backfillMint(mint) }
	return o
}

// Role restricts which of the five background loops a process runs,
// for splitting the pipeline across multiple deployed processes instead
// of running everything in one.
type Role int

const (
	RoleAll Role = iota
	RoleIngestOnly
	RoleConsumeOnly
	RoleDetectOnly
)

// Run blocks until ctx is cancelled or an unrecoverable loop error
// occurs, supervising every background loop this role owns via errgroup
// so one loop's fatal error tears down the others instead of leaking
// goroutines.
func (o *Orchestrator) Run(ctx context.Context, role Role) error {
	g, ctx := errgroup.WithContext(ctx)

	if role == RoleAll || role == RoleIngestOnly {
		rawCh := make(chan domain.RawTransaction, 1024)
		g.Go(func() error { return o.Upstream.Subscribe(ctx, rawCh) })
		g.Go(func() error { return o.appendLoop(ctx, rawCh) })
	}

	if role == RoleAll || role == RoleConsumeOnly {
		for i := 0; i < o.ConsumerCount; i++ {
			idx := i
			g.Go(func() error { return o.consumeLoop(ctx, consumerName(o.ConsumerNameOverride, idx)) })
		}
		g.Go(func() error { return o.deltaLogFlushLoop(ctx) })
		g.Go(func() error { o.Backpressure.Run(ctx, o); return nil })
	}

	if role == RoleAll || role == RoleConsumeOnly || role == RoleDetectOnly {
		g.Go(func() error { return o.detectLoop(ctx) })
		o.Dispatcher.Start(ctx)
	}

	g.Go(func() error { o.gaugeLoop(ctx); return nil })

	return g.Wait()
}

// appendLoop moves decoded transactions from the upstream feed onto the
// durable stream, so every consumer (including a restarted one) reads
// from the same at-least-once log instead of the live feed directly.
func (o *Orchestrator) appendLoop(ctx context.Context, in <-chan domain.RawTransaction) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-in:
			if !ok {
				return nil
			}
			value, err := msgpack.Marshal(tx)
			if err != nil {
				o.Log.Warn("orchestrator: dropping unmarshalable transaction", zap.Error(err))
				continue
			}
			if err := o.Stream.Append(ctx, []byte(tx.DedupKey(tx.Signature)), value); err != nil {
				o.Log.Error("orchestrator: append to stream failed", zap.Error(err))
			}
		}
	}
}

// consumeLoop is one of ConsumerCount parallel readers of the durable
// stream. Consumer 0 additionally reclaims idle (claimed but never
// acked) records on a timer, since one reclaimer per process is enough.
func (o *Orchestrator) consumeLoop(ctx context.Context, name string) error {
	var claimTicker *time.Ticker
	if name == consumerName(o.ConsumerNameOverride, 0) {
		claimTicker = time.NewTicker(defaultClaimIdleInterval)
		defer claimTicker.Stop()
	}

	for {
		if claimTicker != nil {
			select {
			case <-claimTicker.C:
				o.reclaimIdle(ctx)
			default:
			}
		}

		rec, err := o.Stream.ReadGroup(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.Log.Warn("orchestrator: read from stream failed, retrying", zap.String("consumer", name), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		o.processRecord(ctx, rec)
	}
}

func (o *Orchestrator) reclaimIdle(ctx context.Context) {
	stale, err := o.Stream.ClaimIdle(ctx, defaultClaimIdleMinAge)
	if err != nil {
		o.Log.Warn("orchestrator: claim_idle failed", zap.Error(err))
		return
	}
	for _, rec := range stale {
		o.processRecord(ctx, rec)
	}
}

// processRecord runs one stream record through dedup, delta extraction,
// swap inference, state/counter/delta-log updates, and trigger-relevant
// bookkeeping, acknowledging it exactly once at the end regardless of
// outcome: a malformed or already-seen record must never be redelivered
// forever.
func (o *Orchestrator) processRecord(ctx context.Context, rec ingest.Record) {
	defer o.Stream.Ack(rec.Offset)
	o.lastProcessed.Store(time.Now().UnixNano())

	var tx domain.RawTransaction
	if err := msgpack.Unmarshal(rec.Value, &tx); err != nil {
		metrics.IngestedRecords.WithLabelValues("malformed").Inc()
		o.Log.Warn("orchestrator: dropping unparseable record", zap.Int64("offset", rec.Offset), zap.Error(err))
		return
	}

	recordID := tx.DedupKey(fmt.Sprintf("%d", rec.Offset))
	seen, err := o.Dedup.SeenBefore(ctx, "stream", recordID)
	if err != nil {
		o.Log.Warn("orchestrator: dedup check failed, processing anyway", zap.Error(err))
	} else if seen {
		metrics.IngestedRecords.WithLabelValues("duplicate").Inc()
		return
	}

	deltaSet := deltas.Extract(tx)
	result := o.Inferencer.Infer(deltaSet, tx.EffectiveTime(), tx.FeeLamports, o.mintSeenBefore)

	m := o.Publisher.Load()
	now := time.Now()

	if result.Swap != nil {
		metrics.IngestedRecords.WithLabelValues("processed").Inc()
		metrics.SwapsInferred.WithLabelValues(string(result.Swap.Side), "true").Inc()
		o.handleSwap(ctx, *result.Swap, m, now)
		o.maybeLinkFunder(result.Swap.Wallet, tx.FeePayer, now)
	} else {
		metrics.IngestedRecords.WithLabelValues("processed").Inc()
	}

	for _, touch := range result.Touches {
		if _, err := o.State.Touch(touch.Mint, now); err != nil {
			o.Log.Warn("orchestrator: state touch failed", zap.Error(err))
			continue
		}
		o.markActive(touch.Mint, now)
	}
}

func (o *Orchestrator) handleSwap(ctx context.Context, evt domain.SwapEvent, m mode.Mode, now time.Time) {
	if _, err := o.State.Touch(evt.BaseMint, now); err != nil {
		o.Log.Warn("orchestrator: state touch failed", zap.Error(err))
	}
	o.markActive(evt.BaseMint, now)

	if m.PersistSwaps() {
		if err := o.Sink.AppendSwap(ctx, evt); err != nil {
			o.Log.Warn("orchestrator: sink append_swap failed", zap.Error(err))
		}
	}
	if m.UpdateCounters() {
		if err := o.Counters.Record(ctx, evt); err != nil {
			o.Log.Warn("orchestrator: counter record failed", zap.Error(err))
		}
	}

	if err := o.DeltaLog.Append(toSummary(evt, m.UpdateCounters())); err != nil {
		o.Log.Warn("orchestrator: delta log append failed", zap.Error(err))
	}
}

func toSummary(evt domain.SwapEvent, countedLive bool) deltalog.DeltaSummary {
	return deltalog.DeltaSummary{
		Signature:   evt.Signature,
		Mint:        evt.BaseMint,
		Wallet:      evt.Wallet,
		Side:        evt.Side,
		BaseAmount:  evt.BaseAmount.String(),
		QuoteAmount: evt.QuoteAmount.String(),
		Venue:       evt.Venue,
		Confidence:  evt.Confidence,
		Time:        evt.Time,
		CountedLive: countedLive,
	}
}

// maybeLinkFunder records a wallet's first swap as funded by the
// transaction's fee payer, a simple grounded stand-in for full
// funded_by resolution (which depends on the external enrichment
// service, out of scope here): the fee payer usually sponsored the
// wallet's very first on-chain activity, so linking on first sighting
// only avoids re-unioning the same pair on every later swap.
func (o *Orchestrator) maybeLinkFunder(wallet, feePayer domain.Address, now time.Time) {
	if wallet == feePayer || feePayer.IsZero() || wallet.IsZero() {
		return
	}
	if _, loaded := o.seenWallets.LoadOrStore(wallet, struct{}{}); loaded {
		return
	}
	if err := o.Clusters.Union(wallet, feePayer); err != nil {
		o.Log.Warn("orchestrator: cluster union failed", zap.Error(err))
		return
	}
	if err := o.Clusters.SaveProfile(domain.WalletProfile{Address: wallet, FirstSeen: now, FundedBy: &feePayer}); err != nil {
		o.Log.Warn("orchestrator: save wallet profile failed", zap.Error(err))
	}
}

// mintSeenBefore is the short-term unseen-mint cache the inferencer
// penalizes a first-contact mint against; the cache only ever grows
// within a process lifetime, since a mint once seen stays "known" for
// the rest of the run.
func (o *Orchestrator) mintSeenBefore(mint domain.Address) bool {
	_, loaded := o.seenMints.LoadOrStore(mint, struct{}{})
	return loaded
}

func (o *Orchestrator) markActive(mint domain.Address, at time.Time) {
	o.active.Store(mint, at)
}

// detectLoop evaluates trigger rules against every recently active
// mint's rolling snapshot once a second, promoting and alerting on a
// fire, and sweeps any HOT mint whose TTL has lapsed back to WARM.
func (o *Orchestrator) detectLoop(ctx context.Context) error {
	ticker := time.NewTicker(defaultDetectTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			if err := o.State.SweepExpiredHot(now); err != nil {
				o.Log.Warn("orchestrator: sweep expired HOT mints failed", zap.Error(err))
			}
			o.evictStaleActive(now)
			o.evaluateActiveMints(ctx, now)
			o.reportTokenStates()
		}
	}
}

// reportTokenStates refreshes the tokens-in-state gauge from a full
// state-store scan; a stale state keeps its last reported count, which
// only matters for a state with zero tracked mints.
func (o *Orchestrator) reportTokenStates() {
	counts, err := o.State.CountByState()
	if err != nil {
		o.Log.Warn("orchestrator: count tokens by state failed", zap.Error(err))
		return
	}
	for state, n := range counts {
		metrics.TokenStateGauge.WithLabelValues(string(state)).Set(float64(n))
	}
}

func (o *Orchestrator) evaluateActiveMints(ctx context.Context, now time.Time) {
	o.active.Range(func(key, _ any) bool {
		mint := key.(domain.Address)
		snapshot, err := o.snapshotMint(ctx, mint)
		if err != nil {
			o.Log.Warn("orchestrator: snapshot failed", zap.String("mint", mint.String()), zap.Error(err))
			return true
		}
		fired := o.Evaluator.Evaluate(mint, snapshot, now)
		for _, f := range fired {
			metrics.TriggersFired.WithLabelValues(f.Rule.Name).Inc()
			o.fireAlert(ctx, mint, f, snapshot, now)
		}
		return true
	})
}

func (o *Orchestrator) snapshotMint(ctx context.Context, mint domain.Address) (map[domain.FieldID]float64, error) {
	merged := make(map[domain.FieldID]float64)
	for _, w := range []counters.Window{counters.Window5m, counters.Window1h} {
		snap, err := o.Counters.Snapshot(ctx, mint, w)
		if err != nil {
			return nil, err
		}
		for field, v := range snap {
			merged[field] = v
		}
	}
	return merged, nil
}

func (o *Orchestrator) fireAlert(ctx context.Context, mint domain.Address, f triggers.Fired, snapshot map[domain.FieldID]float64, now time.Time) {
	if _, err := o.State.Promote(mint, now); err != nil {
		o.Log.Warn("orchestrator: promote to HOT failed", zap.Error(err))
		return
	}
	ok, err := o.State.ShouldAlert(mint, now)
	if err != nil {
		o.Log.Warn("orchestrator: alert cooldown check failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	// The scorer's cluster component needs a per-wallet buyer/cluster
	// feed this snapshot doesn't carry (it depends on the external
	// enrichment service's funded_by resolution, out of scope here), so
	// only the snapshot-derived inputs go into the score itself; the
	// scorer's own partial-score path (cluster weight contributes 0)
	// covers the rest of the formula exactly as it does on a deadline
	// timeout. The alert's own top_buyers/clusters fields are filled
	// separately below from the counter store's top-wallet tracking and
	// the union-find clusterer, independent of the CTO score.
	inputs := cluster.Inputs{
		TotalBuyVolume:     snapshot[domain.FieldBuyVolumeSol5m],
		Top3BuyersVolShare: snapshot[domain.FieldTop3BuyersVolShare5m],
		NewWalletPct:       snapshot[domain.FieldNewWalletPct5m],
		BuySellRatio:       snapshot[domain.FieldBuySellRatio5m],
	}
	scored := o.Scorer.Score(ctx, inputs)

	topBuyers, err := o.Counters.TopBuyers(ctx, mint, counters.Window5m, alertTopBuyersCount)
	if err != nil {
		o.Log.Warn("orchestrator: top buyers lookup failed", zap.Error(err))
	}
	clusters := o.clusterRoots(topBuyers)

	alert := alerts.Alert{
		Mint:           mint,
		TriggerName:    f.Rule.Name,
		VolumeSol5m:    snapshot[domain.FieldBuyVolumeSol5m] + snapshot[domain.FieldSellVolumeSol5m],
		BuyCount5m:     int64(snapshot[domain.FieldBuyCount5m]),
		SellCount5m:    int64(snapshot[domain.FieldSellCount5m]),
		UniqueBuyers5m: int64(snapshot[domain.FieldUniqueBuyers5m]),
		BuySellRatio5m: alerts.SentinelRatio(snapshot[domain.FieldBuySellRatio5m]),
		CTOScore:       scored.Score,
		CTOComponents: map[string]float64{
			"cluster_used":     boolFloat(scored.ClusterUsed),
			"cluster_fraction": scored.ClusterFraction,
		},
		TopBuyers: topBuyers,
		Clusters:  clusters,
		CreatedAt: now,
	}

	if err := o.Dispatcher.Dispatch(alert); err != nil {
		o.Log.Error("orchestrator: alert dispatch failed", zap.Error(err))
		return
	}
	if err := o.Sink.AppendAlert(ctx, alert); err != nil {
		o.Log.Warn("orchestrator: sink append_alert failed", zap.Error(err))
	}
}

// clusterRoots resolves each buyer wallet to its union-find root and
// returns the distinct set, so an alert lists clusters rather than raw
// wallets (one funder behind several buyers collapses to one entry).
func (o *Orchestrator) clusterRoots(wallets []string) []string {
	seen := make(map[string]struct{}, len(wallets))
	var out []string
	for _, w := range wallets {
		addr, err := domain.ParseAddress(w)
		if err != nil {
			continue
		}
		root, err := o.Clusters.Find(addr)
		if err != nil {
			continue
		}
		rs := root.String()
		if _, ok := seen[rs]; ok {
			continue
		}
		seen[rs] = struct{}{}
		out = append(out, rs)
	}
	return out
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (o *Orchestrator) evictStaleActive(now time.Time) {
	o.active.Range(func(key, value any) bool {
		lastTouch := value.(time.Time)
		if now.Sub(lastTouch) > activeMintEvictAfter {
			o.active.Delete(key)
		}
		return true
	})
}

// deltaLogFlushLoop trims delta log segments older than the retention
// horizon so disk use stays bounded; the currently-open segment is never
// a trim candidate regardless of age.
func (o *Orchestrator) deltaLogFlushLoop(ctx context.Context) error {
	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-o.DeltaLogRetention)
			if err := o.DeltaLog.TrimBefore(cutoff); err != nil {
				o.Log.Warn("orchestrator: delta log trim failed", zap.Error(err))
			}
		}
	}
}

// gaugeLoop keeps the backpressure mode gauge current for scraping;
// it is observability plumbing only, not one of the sequencing loops.
func (o *Orchestrator) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultDetectTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.BackpressureMode.Set(float64(o.Publisher.Load()))
		}
	}
}

// ProcessingLag and BufferLength implement backpressure.Sampler.
func (o *Orchestrator) ProcessingLag() time.Duration {
	last := time.Unix(0, o.lastProcessed.Load())
	return time.Since(last)
}

func (o *Orchestrator) BufferLength() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := o.Stream.Length(ctx)
	if err != nil {
		return 0
	}
	return n
}

// backfillMint replays every delta-summary logged for mint since the
// retention horizon through the counter store, so a mint promoted to
// HOT has its rolling windows populated from before it first crossed
// the COLD→WARM threshold instead of starting from zero. Records already
// counted live in NORMAL/DEGRADED mode are skipped; only the ones a
// CRITICAL-mode drop left uncounted are replayed, so a mint that was
// never under backpressure backfills nothing.
func (o *Orchestrator) backfillMint(mint domain.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	since := time.Now().Add(-o.DeltaLogRetention)
	records, err := o.DeltaLog.RangeSince(mint, since)
	if err != nil {
		o.Log.Warn("orchestrator: backfill range query failed", zap.String("mint", mint.String()), zap.Error(err))
		return
	}

	for _, d := range records {
		if d.CountedLive {
			continue
		}
		evt, err := summaryToSwapEvent(d)
		if err != nil {
			o.Log.Warn("orchestrator: backfill skipping unparsable summary", zap.Error(err))
			continue
		}
		if err := o.Counters.Record(ctx, evt); err != nil {
			o.Log.Warn("orchestrator: backfill counter record failed", zap.Error(err))
		}
	}
}

func summaryToSwapEvent(d deltalog.DeltaSummary) (domain.SwapEvent, error) {
	base, err := decimal.NewFromString(d.BaseAmount)
	if err != nil {
		return domain.SwapEvent{}, fmt.Errorf("parse base_amount: %w", err)
	}
	quote, err := decimal.NewFromString(d.QuoteAmount)
	if err != nil {
		return domain.SwapEvent{}, fmt.Errorf("parse quote_amount: %w", err)
	}
	return domain.SwapEvent{
		Signature:   d.Signature,
		Time:        d.Time,
		Side:        d.Side,
		BaseMint:    d.Mint,
		QuoteMint:   mustNativeMint(),
		BaseAmount:  base,
		QuoteAmount: quote,
		Wallet:      d.Wallet,
		Venue:       d.Venue,
		Confidence:  d.Confidence,
	}, nil
}

func mustNativeMint() domain.Address {
	addr, err := domain.ParseAddress(domain.NativeMint)
	if err != nil {
		panic(err) // the native mint constant is fixed at compile time
	}
	return addr
}
