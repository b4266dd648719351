package common

import "fmt"

// MarketStats are the four running counters a Market tracks. filled_buys
// must never exceed total_buys, and likewise for sells; cancel never
// mutates these — they're cumulative attempted volume, not resting size.
type MarketStats struct {
	TotalBuys   uint64
	TotalSells  uint64
	FilledBuys  uint64
	FilledSells uint64
}

// MarketInfo is the read-only snapshot of a market's identity and stats,
// used for rendering `show`/`price`/`account show` responses without
// exposing the live book.
type MarketInfo struct {
	Symbol      string
	Name        string
	Stats       MarketStats
	LatestPrice *float64 // nil until the first trade.
}

func (m MarketInfo) String() string {
	price := "NONE"
	if m.LatestPrice != nil {
		price = fmt.Sprintf("%.2f", *m.LatestPrice)
	}
	return fmt.Sprintf(
		"%s (%s): last=%s total_buys=%d total_sells=%d filled_buys=%d filled_sells=%d",
		m.Symbol, m.Name, price,
		m.Stats.TotalBuys, m.Stats.TotalSells, m.Stats.FilledBuys, m.Stats.FilledSells,
	)
}
