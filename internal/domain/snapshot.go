package domain

import "github.com/shopspring/decimal"

// PriceSnapshot maps a symbol to its price at one point of simulated time.
// Snapshots are immutable once published: the feed hands out copies, never
// its internal state.
type PriceSnapshot map[string]decimal.Decimal

// PriceOf returns the price for symbol. A symbol absent from the snapshot
// trades at zero; this mirrors the behavior of the data source, where a
// column simply does not exist for an unlisted stock.
func (s PriceSnapshot) PriceOf(symbol string) decimal.Decimal {
	price, ok := s[symbol]
	if !ok {
		return decimal.Zero
	}
	return price
}

// Clone returns an independent copy of the snapshot.
func (s PriceSnapshot) Clone() PriceSnapshot {
	out := make(PriceSnapshot, len(s))
	for symbol, price := range s {
		out[symbol] = price
	}
	return out
}
