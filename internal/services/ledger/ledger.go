package ledger

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mocktrader/internal/domain"
)

// Gateway loads and saves portfolio state. Save must provide
// read-your-writes consistency: a Load after a successful Save observes
// the saved state.
type Gateway interface {
	Load(ctx context.Context, userID int64) (*domain.Portfolio, error)
	Save(ctx context.Context, portfolio *domain.Portfolio) error
}

// Service serializes all access to a portfolio. Every read-modify-write
// runs under a per-user mutex, so two concurrent orders against the same
// portfolio can never validate against stale state; orders for different
// users do not contend.
type Service struct {
	gateway Gateway
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a ledger service over the given gateway.
func New(gateway Gateway, logger *zap.Logger) *Service {
	return &Service{
		gateway: gateway,
		logger:  logger,
		locks:   make(map[int64]*sync.Mutex),
	}
}

func (s *Service) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// Update loads the user's portfolio, applies fn and persists the result,
// all inside the user's critical section. When fn returns an error nothing
// is saved and the mutation is discarded, so failures leave the persisted
// portfolio untouched. The returned portfolio is a clone safe to hand out.
func (s *Service) Update(ctx context.Context, userID int64, fn func(*domain.Portfolio) error) (*domain.Portfolio, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	portfolio, err := s.gateway.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := fn(portfolio); err != nil {
		return nil, err
	}

	if err := portfolio.CheckInvariant(); err != nil {
		s.logger.Error("refusing to persist inconsistent portfolio",
			zap.Int64("user_id", userID), zap.Error(err))
		return nil, errors.Wrap(err, "portfolio invariant violated")
	}

	if err := s.gateway.Save(ctx, portfolio); err != nil {
		return nil, errors.Wrap(err, "save portfolio")
	}

	return portfolio.Clone(), nil
}

// Get returns a clone of the user's current portfolio. It takes the same
// per-user lock as Update so a reader never observes a half-applied trade.
func (s *Service) Get(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	portfolio, err := s.gateway.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return portfolio.Clone(), nil
}

// Create initializes and persists an empty portfolio with the given
// starting cash. Used by registration.
func (s *Service) Create(ctx context.Context, userID int64, startingCash decimal.Decimal) (*domain.Portfolio, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	portfolio, err := domain.NewPortfolio(userID, startingCash)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.Save(ctx, portfolio); err != nil {
		return nil, errors.Wrap(err, "save new portfolio")
	}
	return portfolio.Clone(), nil
}
