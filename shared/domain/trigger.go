package domain

// Op is a predicate comparison operator.
type Op string

const (
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpEQ  Op = "=="
)

// FieldID is a closed enum of the aggregate fields a Predicate may
// reference; unknown field names fail validation at load time instead of
// being looked up dynamically.
type FieldID string

const (
	FieldBuyCount5m             FieldID = "buy_count_5m"
	FieldSellCount5m            FieldID = "sell_count_5m"
	FieldUniqueBuyers5m         FieldID = "unique_buyers_5m"
	FieldUniqueSellers5m        FieldID = "unique_sellers_5m"
	FieldBuyVolumeSol5m         FieldID = "buy_volume_sol_5m"
	FieldSellVolumeSol5m        FieldID = "sell_volume_sol_5m"
	FieldAvgBuySize5m           FieldID = "avg_buy_size_5m"
	FieldBuySellRatio5m         FieldID = "buy_sell_ratio_5m"
	FieldTop3BuyersVolShare5m   FieldID = "top_3_buyers_volume_share_5m"
	FieldNewWalletPct5m         FieldID = "new_wallet_pct_5m"
	FieldBuyCount1h             FieldID = "buy_count_1h"
	FieldSellCount1h            FieldID = "sell_count_1h"
	FieldUniqueBuyers1h         FieldID = "unique_buyers_1h"
	FieldUniqueSellers1h        FieldID = "unique_sellers_1h"
	FieldBuyVolumeSol1h         FieldID = "buy_volume_sol_1h"
	FieldSellVolumeSol1h        FieldID = "sell_volume_sol_1h"
	FieldAvgBuySize1h           FieldID = "avg_buy_size_1h"
	FieldBuySellRatio1h         FieldID = "buy_sell_ratio_1h"
	FieldTop3BuyersVolShare1h   FieldID = "top_3_buyers_volume_share_1h"
	FieldNewWalletPct1h         FieldID = "new_wallet_pct_1h"
)

// KnownFields is the complete set of FieldIDs a Predicate may reference.
var KnownFields = map[FieldID]struct{}{
	FieldBuyCount5m: {}, FieldSellCount5m: {}, FieldUniqueBuyers5m: {}, FieldUniqueSellers5m: {},
	FieldBuyVolumeSol5m: {}, FieldSellVolumeSol5m: {}, FieldAvgBuySize5m: {}, FieldBuySellRatio5m: {},
	FieldTop3BuyersVolShare5m: {}, FieldNewWalletPct5m: {},
	FieldBuyCount1h: {}, FieldSellCount1h: {}, FieldUniqueBuyers1h: {}, FieldUniqueSellers1h: {},
	FieldBuyVolumeSol1h: {}, FieldSellVolumeSol1h: {}, FieldAvgBuySize1h: {}, FieldBuySellRatio1h: {},
	FieldTop3BuyersVolShare1h: {}, FieldNewWalletPct1h: {},
}

// Predicate is one compiled condition: field OP numeric_literal.
type Predicate struct {
	Field   FieldID
	Op      Op
	Literal float64
}

// TriggerRule fires iff every condition is true against a mint's snapshot.
type TriggerRule struct {
	Name       string
	Enabled    bool
	Conditions []Predicate
}
