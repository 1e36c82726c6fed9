package counters

import "fmt"

// cntKey follows the schema cnt:{mint}:{window}:{bucket}:{field}.
func cntKey(mint string, w Window, bucket int64, field string) string {
	return fmt.Sprintf("cnt:%s:%s:%d:%s", mint, w, bucket, field)
}

func hllKey(mint string, w Window, bucket int64, kind string) string {
	return fmt.Sprintf("hll:%s:%s:%d:%s", mint, w, bucket, kind)
}

func topKey(mint string, w Window, bucket int64) string {
	return fmt.Sprintf("top:%s:%s:%d", mint, w, bucket)
}

func walletFirstSeenKey(wallet string) string {
	return fmt.Sprintf("wallet:first_seen:%s", wallet)
}

func hotKey(mint string) string {
	return fmt.Sprintf("hot:%s", mint)
}

const (
	fieldBuyCount    = "buy_count"
	fieldSellCount   = "sell_count"
	fieldBuyVolume   = "buy_volume"
	fieldSellVolume  = "sell_volume"
)
