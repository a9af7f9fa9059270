package trade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mocktrader/internal/domain"
	"mocktrader/internal/services/ledger"
)

type memGateway struct {
	mu         sync.Mutex
	portfolios map[int64]*domain.Portfolio
}

func newMemGateway() *memGateway {
	return &memGateway{portfolios: make(map[int64]*domain.Portfolio)}
}

func (g *memGateway) Load(_ context.Context, userID int64) (*domain.Portfolio, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.portfolios[userID]
	if !ok {
		return nil, domain.ErrPortfolioNotFound
	}
	return p.Clone(), nil
}

func (g *memGateway) Save(_ context.Context, p *domain.Portfolio) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.portfolios[p.UserID] = p.Clone()
	return nil
}

func (g *memGateway) snapshot(userID int64) *domain.Portfolio {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.portfolios[userID].Clone()
}

type stubQuoter struct {
	snapshot domain.PriceSnapshot
	ok       bool
}

func (q *stubQuoter) Current() (domain.PriceSnapshot, time.Time, bool) {
	if !q.ok {
		return nil, time.Time{}, false
	}
	return q.snapshot.Clone(), time.Now(), true
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []domain.Transaction
}

func (j *recordingJournal) Append(_ int64, tx domain.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, tx)
	return nil
}

const testUser int64 = 7

func newTestEngine(t *testing.T, cash int64, prices map[string]decimal.Decimal) (*Engine, *memGateway, *recordingJournal) {
	t.Helper()
	gateway := newMemGateway()
	p, err := domain.NewPortfolio(testUser, decimal.NewFromInt(cash))
	require.NoError(t, err)
	require.NoError(t, gateway.Save(context.Background(), p))

	quoter := &stubQuoter{snapshot: prices, ok: prices != nil}
	journal := &recordingJournal{}
	engine := New(quoter, ledger.New(gateway, zap.NewNop()), journal, zap.NewNop())
	return engine, gateway, journal
}

func prices(symbol string, value int64) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{symbol: decimal.NewFromInt(value)}
}

func TestEngine_BuyUpdatesCashHoldingsAndLots(t *testing.T) {
	engine, gateway, journal := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	settlement, err := engine.Buy(ctx, testUser, "APPL", 10)
	require.NoError(t, err)

	assert.True(t, settlement.Cash.Equal(decimal.NewFromInt(9000)))
	assert.Equal(t, int64(10), settlement.Holdings["APPL"])
	require.Len(t, settlement.Lots["APPL"], 1)
	assert.Equal(t, int64(10), settlement.Lots["APPL"][0].Quantity)
	assert.True(t, settlement.Lots["APPL"][0].Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.SideBuy, settlement.Transaction.Side)

	persisted := gateway.snapshot(testUser)
	assert.True(t, persisted.Cash.Equal(decimal.NewFromInt(9000)))
	require.Len(t, persisted.Transactions, 1)
	require.Len(t, journal.entries, 1)
}

func TestEngine_BuyAppendsLotsToBack(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 3)
	require.NoError(t, err)

	engine.feed = &stubQuoter{snapshot: prices("APPL", 120), ok: true}
	_, err = engine.Buy(ctx, testUser, "APPL", 2)
	require.NoError(t, err)

	persisted := gateway.snapshot(testUser)
	require.Len(t, persisted.Lots["APPL"], 2)
	assert.True(t, persisted.Lots["APPL"][0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, persisted.Lots["APPL"][1].Price.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, int64(5), persisted.Holdings["APPL"])
}

func TestEngine_BuyInvalidQuantity(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10000, prices("APPL", 100))

	for _, qty := range []int64{0, -5} {
		_, err := engine.Buy(context.Background(), testUser, "APPL", qty)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	}
}

func TestEngine_BuyInsufficientFundsLeavesPortfolioUnchanged(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 500, prices("APPL", 100))

	before := gateway.snapshot(testUser)
	_, err := engine.Buy(context.Background(), testUser, "APPL", 10)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	after := gateway.snapshot(testUser)
	assert.True(t, after.Cash.Equal(before.Cash))
	assert.Empty(t, after.Holdings)
	assert.Empty(t, after.Transactions)
}

func TestEngine_BuyPriceUnavailableOnEmptyFeed(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10000, nil)

	_, err := engine.Buy(context.Background(), testUser, "APPL", 1)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

// A symbol absent from a loaded snapshot trades at price zero. This mirrors
// the historical behavior of the system; do not "fix" it here without a
// product decision.
func TestEngine_BuyUnknownSymbolUsesZeroPrice(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 10000, prices("APPL", 100))

	settlement, err := engine.Buy(context.Background(), testUser, "GHOST", 5)
	require.NoError(t, err)

	assert.True(t, settlement.Price.IsZero())
	assert.True(t, settlement.Cash.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, int64(5), gateway.snapshot(testUser).Holdings["GHOST"])
}

func TestEngine_BuyUnknownPortfolio(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10000, prices("APPL", 100))

	_, err := engine.Buy(context.Background(), 999, "APPL", 1)
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestEngine_SellConsumesLotsOldestFirst(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 5)
	require.NoError(t, err)
	engine.feed = &stubQuoter{snapshot: prices("APPL", 120), ok: true}
	_, err = engine.Buy(ctx, testUser, "APPL", 5)
	require.NoError(t, err)

	engine.feed = &stubQuoter{snapshot: prices("APPL", 110), ok: true}
	_, err = engine.Sell(ctx, testUser, "APPL", 7)
	require.NoError(t, err)

	persisted := gateway.snapshot(testUser)
	// first lot (5@100) fully consumed, second lot partially: 3 shares remain
	require.Len(t, persisted.Lots["APPL"], 1)
	assert.Equal(t, int64(3), persisted.Lots["APPL"][0].Quantity)
	assert.True(t, persisted.Lots["APPL"][0].Price.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, int64(3), persisted.Holdings["APPL"])
}

// Pins the legacy settlement formula: proceeds = qty*price plus, per
// consumed lot, consumed*(price - lot.price). The per-lot term double-counts
// the realized gain on top of full current-price proceeds. Reproduced
// faithfully; changing it is a product decision and must change this test.
func TestEngine_SellSettlementFormula(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 10)
	require.NoError(t, err)

	engine.feed = &stubQuoter{snapshot: prices("APPL", 110), ok: true}
	settlement, err := engine.Sell(ctx, testUser, "APPL", 10)
	require.NoError(t, err)

	// proceeds = 10*110 + 10*(110-100) = 1200, cash = 9000 + 1200 = 10200
	assert.True(t, settlement.Cash.Equal(decimal.NewFromInt(10200)),
		"got %s", settlement.Cash)
}

func TestEngine_SellPartialLotSettlement(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 5) // cash 9500
	require.NoError(t, err)
	engine.feed = &stubQuoter{snapshot: prices("APPL", 120), ok: true}
	_, err = engine.Buy(ctx, testUser, "APPL", 5) // cash 8900
	require.NoError(t, err)

	engine.feed = &stubQuoter{snapshot: prices("APPL", 110), ok: true}
	_, err = engine.Sell(ctx, testUser, "APPL", 7)
	require.NoError(t, err)

	// proceeds = 7*110 + 5*(110-100) + 2*(110-120) = 770 + 50 - 20 = 800
	assert.True(t, gateway.snapshot(testUser).Cash.Equal(decimal.NewFromInt(9700)))
}

func TestEngine_SellFullHoldingRemovesSymbolEntirely(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 10)
	require.NoError(t, err)
	_, err = engine.Sell(ctx, testUser, "APPL", 10)
	require.NoError(t, err)

	persisted := gateway.snapshot(testUser)
	_, held := persisted.Holdings["APPL"]
	assert.False(t, held, "holdings entry must be removed")
	_, hasLots := persisted.Lots["APPL"]
	assert.False(t, hasLots, "lot queue must be removed")
}

func TestEngine_SellInsufficientHoldingsLeavesPortfolioUnchanged(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 5)
	require.NoError(t, err)
	before := gateway.snapshot(testUser)

	_, err = engine.Sell(ctx, testUser, "APPL", 6)
	require.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	after := gateway.snapshot(testUser)
	assert.True(t, after.Cash.Equal(before.Cash))
	assert.Equal(t, before.Holdings, after.Holdings)
	assert.Equal(t, before.Lots, after.Lots)
	assert.Len(t, after.Transactions, len(before.Transactions))
}

func TestEngine_SellChecksHoldingsBeforePriceAvailability(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 5)
	require.NoError(t, err)

	engine.feed = &stubQuoter{ok: false}

	_, err = engine.Sell(ctx, testUser, "APPL", 6)
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	_, err = engine.Sell(ctx, testUser, "APPL", 5)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestEngine_RoundTrip(t *testing.T) {
	engine, gateway, journal := newTestEngine(t, 10000, prices("X", 100))
	ctx := context.Background()

	settlement, err := engine.Buy(ctx, testUser, "X", 10)
	require.NoError(t, err)
	assert.True(t, settlement.Cash.Equal(decimal.NewFromInt(9000)))
	assert.Equal(t, int64(10), settlement.Holdings["X"])

	engine.feed = &stubQuoter{snapshot: prices("X", 110), ok: true}
	_, err = engine.Sell(ctx, testUser, "X", 10)
	require.NoError(t, err)

	persisted := gateway.snapshot(testUser)
	assert.Empty(t, persisted.Holdings)
	assert.Empty(t, persisted.Lots)
	require.Len(t, persisted.Transactions, 2)
	assert.Equal(t, domain.SideBuy, persisted.Transactions[0].Side)
	assert.Equal(t, domain.SideSell, persisted.Transactions[1].Side)
	require.Len(t, journal.entries, 2)
}

func TestEngine_ConcurrentSellsNeverOversell(t *testing.T) {
	engine, gateway, _ := newTestEngine(t, 100000, prices("APPL", 100))
	ctx := context.Background()

	_, err := engine.Buy(ctx, testUser, "APPL", 10)
	require.NoError(t, err)

	const workers = 8
	const sellQty = 3

	var wg sync.WaitGroup
	var sold int64
	var soldMu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Sell(ctx, testUser, "APPL", sellQty); err == nil {
				soldMu.Lock()
				sold += sellQty
				soldMu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, sold, int64(10), "sold more shares than held")

	persisted := gateway.snapshot(testUser)
	assert.Equal(t, int64(10)-sold, persisted.Quantity("APPL"))
	require.NoError(t, persisted.CheckInvariant())
}
