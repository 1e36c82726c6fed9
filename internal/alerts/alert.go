// Package alerts implements per-channel durable queues, retry with
// exponential backoff, and token-bucket rate limiting for outbound alert
// delivery over HTTP POST.
package alerts

import (
	"math"
	"time"

	"github.com/rlaau/swapsentry/shared/domain"
)

const infinitySentinel = 1e18

// Alert is the JSON payload delivered to every enabled channel.
type Alert struct {
	ID             string             `json:"id"`
	Mint           domain.Address     `json:"mint"`
	TokenSymbol    string             `json:"token_symbol,omitempty"`
	TokenName      string             `json:"token_name,omitempty"`
	TokenImage     string             `json:"token_image,omitempty"`
	TriggerName    string             `json:"trigger_name"`
	Venue          domain.Venue       `json:"venue"`
	VolumeSol5m    float64            `json:"volume_sol_5m"`
	BuyCount5m     int64              `json:"buy_count_5m"`
	SellCount5m    int64              `json:"sell_count_5m"`
	UniqueBuyers5m int64              `json:"unique_buyers_5m"`
	BuySellRatio5m float64            `json:"buy_sell_ratio_5m"`
	McapSol        *float64           `json:"mcap_sol,omitempty"`
	AvgEntryMcap   *float64           `json:"avg_entry_mcap,omitempty"`
	CTOScore       float64            `json:"cto_score"`
	CTOComponents  map[string]float64 `json:"cto_components"`
	TopBuyers      []string           `json:"top_buyers"`
	Clusters       []string           `json:"clusters"`
	CreatedAt      time.Time          `json:"created_at"`
}

// SentinelRatio substitutes a large finite number for +Inf, since JSON
// has no infinity literal.
func SentinelRatio(ratio float64) float64 {
	if math.IsInf(ratio, 1) {
		return infinitySentinel
	}
	return ratio
}
