package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Lot records shares acquired in one buy at one price. Lots for a symbol
// are kept oldest-first; sells consume them in that order (FIFO cost basis).
type Lot struct {
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Portfolio holds one user's cash, holdings, purchase lots and transaction
// history. It is a plain in-memory value: callers are responsible for
// serializing access to it (see ledger.Service).
type Portfolio struct {
	UserID       int64
	Cash         decimal.Decimal
	Holdings     map[string]int64
	Lots         map[string][]Lot
	Transactions []Transaction
}

// NewPortfolio creates an empty portfolio with the given starting cash.
func NewPortfolio(userID int64, cash decimal.Decimal) (*Portfolio, error) {
	if cash.IsNegative() {
		return nil, errors.New("starting cash must not be negative")
	}
	return &Portfolio{
		UserID:   userID,
		Cash:     cash,
		Holdings: make(map[string]int64),
		Lots:     make(map[string][]Lot),
	}, nil
}

// Quantity returns the held share count for symbol, zero when not held.
func (p *Portfolio) Quantity(symbol string) int64 {
	return p.Holdings[symbol]
}

// CheckInvariant verifies that every holdings entry equals the sum of its
// lot quantities and that lot queues exist exactly for held symbols.
func (p *Portfolio) CheckInvariant() error {
	for symbol, qty := range p.Holdings {
		if qty <= 0 {
			return fmt.Errorf("holdings entry %s has non-positive quantity %d", symbol, qty)
		}
		var lotSum int64
		for _, lot := range p.Lots[symbol] {
			if lot.Quantity <= 0 {
				return fmt.Errorf("lot for %s has non-positive quantity %d", symbol, lot.Quantity)
			}
			lotSum += lot.Quantity
		}
		if lotSum != qty {
			return fmt.Errorf("holdings/lots mismatch for %s: held %d, lots sum %d", symbol, qty, lotSum)
		}
	}
	for symbol, lots := range p.Lots {
		if _, held := p.Holdings[symbol]; !held && len(lots) > 0 {
			return fmt.Errorf("lot queue for %s exists without a holdings entry", symbol)
		}
	}
	return nil
}

// Clone returns a deep copy, used to hand state across API boundaries
// without exposing the ledger-owned value.
func (p *Portfolio) Clone() *Portfolio {
	out := &Portfolio{
		UserID:   p.UserID,
		Cash:     p.Cash,
		Holdings: make(map[string]int64, len(p.Holdings)),
		Lots:     make(map[string][]Lot, len(p.Lots)),
	}
	for symbol, qty := range p.Holdings {
		out.Holdings[symbol] = qty
	}
	for symbol, lots := range p.Lots {
		out.Lots[symbol] = append([]Lot(nil), lots...)
	}
	out.Transactions = append([]Transaction(nil), p.Transactions...)
	return out
}

// Settlement is the result of a successfully executed order: the post-trade
// cash and positions plus the price the order filled at and the appended
// transaction record.
type Settlement struct {
	Cash         decimal.Decimal
	Holdings     map[string]int64
	Lots         map[string][]Lot
	Price        decimal.Decimal
	Transaction  Transaction
	Transactions []Transaction
}
