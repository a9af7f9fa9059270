package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side distinguishes buy and sell transactions.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Transaction is one executed trade in a portfolio's history.
// Records are append-only: once written they are never mutated or removed.
type Transaction struct {
	Side     Side            `json:"type"`
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"timestamp"`
}
