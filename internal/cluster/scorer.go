package cluster

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rlaau/swapsentry/shared/domain"
	"github.com/rlaau/swapsentry/shared/workflow/workerpool"
)

const (
	weightCluster       = 0.30
	weightConcentration = 0.25
	weightTiming        = 0.15
	weightNewWallet     = 0.15
	weightRatio         = 0.15

	ratioCap = 10.0

	defaultScoreDeadline = 2 * time.Second
)

// BuyerVolume is one wallet's contribution to a window's buy volume,
// keyed by cluster root so the scorer can find the dominant cluster.
type BuyerVolume struct {
	Wallet      domain.Address
	ClusterRoot domain.Address
	Volume      float64
	Timestamps  []time.Time
}

// Inputs bundles everything the CTO scorer needs for one mint.
type Inputs struct {
	Buyers              []BuyerVolume
	TotalBuyVolume       float64
	Top3BuyersVolShare   float64
	NewWalletPct         float64
	BuySellRatio         float64
}

type Result struct {
	Score          float64
	ClusterUsed    bool // false when the deadline fell back to the partial score
	ClusterFraction float64
}

// scoreJob adapts one scoring Inputs into a workerpool.Job so scoring
// never blocks the pipeline's main loop; Do() sends its Result back over
// a dedicated channel instead of returning a value the pool would drop.
type scoreJob struct {
	in  Inputs
	out chan Result
}

func (j scoreJob) Do(ctx context.Context) error {
	j.out <- compute(j.in)
	return nil
}

// Scorer runs CTO scoring on a bounded worker pool with a per-call
// deadline; on timeout it falls back to the concentration+new_wallet+ratio
// partial score with cluster contributing 0.
type Scorer struct {
	jobs     chan workerpool.Job
	pool     *workerpool.Pool
	deadline time.Duration
}

func NewScorer(ctx context.Context, numWorkers int) *Scorer {
	jobs := make(chan workerpool.Job)
	return &Scorer{
		jobs:     jobs,
		pool:     workerpool.New(ctx, numWorkers, jobs),
		deadline: defaultScoreDeadline,
	}
}

func (s *Scorer) Shutdown() { s.pool.Shutdown() }

func (s *Scorer) Score(ctx context.Context, in Inputs) Result {
	out := make(chan Result, 1)
	select {
	case s.jobs <- scoreJob{in: in, out: out}:
	case <-ctx.Done():
		return partialScore(in)
	}

	timer := time.NewTimer(s.deadline)
	defer timer.Stop()
	select {
	case r := <-out:
		return r
	case <-timer.C:
		return partialScore(in)
	case <-ctx.Done():
		return partialScore(in)
	}
}

func compute(in Inputs) Result {
	frac := dominantClusterFraction(in.Buyers, in.TotalBuyVolume)
	score := weightCluster*frac +
		weightConcentration*in.Top3BuyersVolShare +
		weightTiming*burstiness(in.Buyers) +
		weightNewWallet*in.NewWalletPct +
		weightRatio*ratioComponent(in.BuySellRatio)
	return Result{Score: score, ClusterUsed: true, ClusterFraction: frac}
}

// partialScore is the timeout fallback: cluster contributes 0, every
// other factor still applies.
func partialScore(in Inputs) Result {
	score := weightConcentration*in.Top3BuyersVolShare +
		weightTiming*burstiness(in.Buyers) +
		weightNewWallet*in.NewWalletPct +
		weightRatio*ratioComponent(in.BuySellRatio)
	return Result{Score: score, ClusterUsed: false}
}

func dominantClusterFraction(buyers []BuyerVolume, totalBuyVolume float64) float64 {
	if totalBuyVolume <= 0 {
		return 0
	}
	byCluster := map[domain.Address]float64{}
	for _, b := range buyers {
		byCluster[b.ClusterRoot] += b.Volume
	}
	var max float64
	for _, v := range byCluster {
		if v > max {
			max = v
		}
	}
	return max / totalBuyVolume
}

func ratioComponent(ratio float64) float64 {
	if math.IsInf(ratio, 1) {
		return 1
	}
	return math.Min(ratio/ratioCap, 1)
}

// burstiness normalizes the variance of inter-arrival times across every
// buyer's timestamps into [0, 1], where 1 is maximally bursty (all buys
// clustered together) and 0 is evenly spaced.
func burstiness(buyers []BuyerVolume) float64 {
	var all []time.Time
	for _, b := range buyers {
		all = append(all, b.Timestamps...)
	}
	if len(all) < 3 {
		return 0
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	gaps := make([]float64, 0, len(all)-1)
	for i := 1; i < len(all); i++ {
		d := all[i].Sub(all[i-1]).Seconds()
		if d < 0 {
			d = -d
		}
		gaps = append(gaps, d)
	}
	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return 1
	}
	var variance float64
	for _, g := range gaps {
		diff := g - mean
		variance += diff * diff
	}
	variance /= float64(len(gaps))
	cv := math.Sqrt(variance) / mean // coefficient of variation
	return math.Min(cv/(cv+1), 1)    // squash to [0,1)
}
