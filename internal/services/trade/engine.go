package trade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mocktrader/internal/domain"
	"mocktrader/internal/services/ledger"
)

// Quoter exposes the price feed's published state.
type Quoter interface {
	Current() (domain.PriceSnapshot, time.Time, bool)
}

// Journal records executed trades outside the portfolio row, used for
// recovery and streaming. Journal writes are best-effort: the portfolio is
// already consistent and persisted when Append is called.
type Journal interface {
	Append(userID int64, tx domain.Transaction) error
}

// Engine executes buy and sell orders against a portfolio. It is stateless:
// all portfolio state lives behind the ledger, all price state behind the
// feed, and every order is applied as a single atomic step inside the
// user's critical section.
type Engine struct {
	feed    Quoter
	ledger  *ledger.Service
	journal Journal
	logger  *zap.Logger
}

// New creates a trade engine. journal may be nil.
func New(feed Quoter, ledgerSvc *ledger.Service, journal Journal, logger *zap.Logger) *Engine {
	return &Engine{
		feed:    feed,
		ledger:  ledgerSvc,
		journal: journal,
		logger:  logger,
	}
}

// Quotes returns the current snapshot and its rotation timestamp.
// ok is false when the feed has no data.
func (e *Engine) Quotes() (domain.PriceSnapshot, time.Time, bool) {
	return e.feed.Current()
}

// Buy purchases quantity shares of symbol at the feed's current price.
// A symbol missing from the snapshot trades at price zero; only a feed with
// no snapshots at all yields ErrPriceUnavailable. On any validation failure
// the persisted portfolio is left untouched.
func (e *Engine) Buy(ctx context.Context, userID int64, symbol string, quantity int64) (*domain.Settlement, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var price decimal.Decimal
	updated, err := e.ledger.Update(ctx, userID, func(p *domain.Portfolio) error {
		snapshot, _, ok := e.feed.Current()
		if !ok {
			return domain.ErrPriceUnavailable
		}
		price = snapshot.PriceOf(symbol)

		cost := price.Mul(decimal.NewFromInt(quantity))
		if p.Cash.LessThan(cost) {
			return domain.ErrInsufficientFunds
		}

		p.Cash = p.Cash.Sub(cost)
		p.Holdings[symbol] += quantity
		p.Lots[symbol] = append(p.Lots[symbol], domain.Lot{Quantity: quantity, Price: price})
		p.Transactions = append(p.Transactions, domain.Transaction{
			Side:     domain.SideBuy,
			Symbol:   symbol,
			Quantity: quantity,
			Price:    price,
			Time:     time.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.settle(userID, updated, price), nil
}

// Sell disposes quantity shares of symbol at the feed's current price,
// consuming purchase lots oldest-first. The cash settlement reproduces the
// legacy formula: full current-price proceeds PLUS the per-lot gain of every
// consumed lot. That double-counts realized gains; it is kept deliberately
// until a product decision says otherwise, and is pinned by tests.
func (e *Engine) Sell(ctx context.Context, userID int64, symbol string, quantity int64) (*domain.Settlement, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var price decimal.Decimal
	updated, err := e.ledger.Update(ctx, userID, func(p *domain.Portfolio) error {
		if p.Quantity(symbol) < quantity {
			return domain.ErrInsufficientHoldings
		}

		snapshot, _, ok := e.feed.Current()
		if !ok {
			return domain.ErrPriceUnavailable
		}
		price = snapshot.PriceOf(symbol)

		proceeds := price.Mul(decimal.NewFromInt(quantity))
		remaining := quantity
		rebuilt := make([]domain.Lot, 0, len(p.Lots[symbol]))
		for _, lot := range p.Lots[symbol] {
			switch {
			case remaining == 0:
				rebuilt = append(rebuilt, lot)
			case lot.Quantity <= remaining:
				// lot fully consumed
				proceeds = proceeds.Add(decimal.NewFromInt(lot.Quantity).Mul(price.Sub(lot.Price)))
				remaining -= lot.Quantity
			default:
				// lot partially consumed, the remainder stays at its cost basis
				proceeds = proceeds.Add(decimal.NewFromInt(remaining).Mul(price.Sub(lot.Price)))
				lot.Quantity -= remaining
				rebuilt = append(rebuilt, lot)
				remaining = 0
			}
		}

		p.Cash = p.Cash.Add(proceeds)
		p.Holdings[symbol] -= quantity
		if p.Holdings[symbol] == 0 {
			delete(p.Holdings, symbol)
			delete(p.Lots, symbol)
		} else {
			p.Lots[symbol] = rebuilt
		}
		p.Transactions = append(p.Transactions, domain.Transaction{
			Side:     domain.SideSell,
			Symbol:   symbol,
			Quantity: quantity,
			Price:    price,
			Time:     time.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.settle(userID, updated, price), nil
}

func (e *Engine) settle(userID int64, updated *domain.Portfolio, price decimal.Decimal) *domain.Settlement {
	tx := updated.Transactions[len(updated.Transactions)-1]

	if e.journal != nil {
		if err := e.journal.Append(userID, tx); err != nil {
			e.logger.Warn("failed to journal trade",
				zap.Int64("user_id", userID),
				zap.String("symbol", tx.Symbol),
				zap.Error(err))
		}
	}

	e.logger.Info("order executed",
		zap.Int64("user_id", userID),
		zap.String("side", string(tx.Side)),
		zap.String("symbol", tx.Symbol),
		zap.Int64("quantity", tx.Quantity),
		zap.String("price", price.String()),
		zap.String("cash", updated.Cash.String()))

	return &domain.Settlement{
		Cash:         updated.Cash,
		Holdings:     updated.Holdings,
		Lots:         updated.Lots,
		Price:        price,
		Transaction:  tx,
		Transactions: updated.Transactions,
	}
}
