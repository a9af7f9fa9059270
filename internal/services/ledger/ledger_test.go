package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mocktrader/internal/domain"
)

type memGateway struct {
	mu         sync.Mutex
	portfolios map[int64]*domain.Portfolio
	saves      int
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
	g.saves++
	g.portfolios[p.UserID] = p.Clone()
	return nil
}

func TestService_CreateAndGet(t *testing.T) {
	svc := New(newMemGateway(), zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.True(t, created.Cash.Equal(decimal.NewFromInt(10000)))

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(10000)))
}

func TestService_GetUnknownUser(t *testing.T) {
	svc := New(newMemGateway(), zap.NewNop())

	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestService_UpdateDiscardsMutationOnError(t *testing.T) {
	gateway := newMemGateway()
	svc := New(gateway, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, decimal.NewFromInt(100))
	require.NoError(t, err)
	savesBefore := gateway.saves

	_, err = svc.Update(ctx, 1, func(p *domain.Portfolio) error {
		p.Cash = decimal.Zero // mutation before failing must not leak
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, savesBefore, gateway.saves)

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(100)))
}

func TestService_UpdateRefusesInvariantViolation(t *testing.T) {
	svc := New(newMemGateway(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = svc.Update(ctx, 1, func(p *domain.Portfolio) error {
		p.Holdings["APPL"] = 5 // no matching lots
		return nil
	})
	require.Error(t, err)

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got.Holdings)
}

func TestService_UpdateReadYourWrites(t *testing.T) {
	svc := New(newMemGateway(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, decimal.NewFromInt(100))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 1, func(p *domain.Portfolio) error {
		p.Cash = p.Cash.Sub(decimal.NewFromInt(40))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.Cash.Equal(decimal.NewFromInt(60)))

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(60)))
}

func TestService_ConcurrentUpdatesSerialize(t *testing.T) {
	svc := New(newMemGateway(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, decimal.Zero)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, 1, func(p *domain.Portfolio) error {
				p.Cash = p.Cash.Add(decimal.NewFromInt(1))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(workers)), "lost update: %s", got.Cash)
}
