package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidQuantity is returned when an order quantity is not a positive integer.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")

	// ErrInsufficientFunds is returned when a buy costs more than the available cash.
	ErrInsufficientFunds = errors.New("insufficient funds to buy stock")

	// ErrInsufficientHoldings is returned when a sell requests more shares than held.
	ErrInsufficientHoldings = errors.New("insufficient stocks to sell")

	// ErrPortfolioNotFound is returned when no portfolio exists for the user.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrPriceUnavailable is returned when the price feed has no snapshots loaded.
	// Note: a symbol missing from a loaded snapshot is NOT this error, it trades
	// at price zero (see TradeEngine docs).
	ErrPriceUnavailable = errors.New("no stock price data available")
)
