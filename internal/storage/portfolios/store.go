package portfolios

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mocktrader/internal/domain"
)

// record is the persisted shape of a portfolio: one row per user with cash
// as a decimal string and the structured state as JSON blobs. The blob
// layout is this package's schema; the core never parses it.
type record struct {
	UserID       int64  `gorm:"primaryKey;column:user_id"`
	Cash         string `gorm:"not null"`
	Holdings     []byte
	Lots         []byte
	Transactions []byte
	UpdatedAt    time.Time
}

func (record) TableName() string { return "portfolios" }

// Store persists portfolios in SQLite. It implements ledger.Gateway.
type Store struct {
	db *gorm.DB
}

// New migrates the portfolios table and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, errors.Wrap(err, "migrate portfolios table")
	}
	return &Store{db: db}, nil
}

// Load reads the user's portfolio. Missing users yield
// domain.ErrPortfolioNotFound.
func (s *Store) Load(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	var rec record
	err := s.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load portfolio")
	}
	return decode(&rec)
}

// Save upserts the full portfolio state in one row.
func (s *Store) Save(ctx context.Context, portfolio *domain.Portfolio) error {
	rec, err := encode(portfolio)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return errors.Wrap(err, "save portfolio")
	}
	return nil
}

func encode(p *domain.Portfolio) (*record, error) {
	holdings, err := json.Marshal(p.Holdings)
	if err != nil {
		return nil, errors.Wrap(err, "encode holdings")
	}
	lots, err := json.Marshal(p.Lots)
	if err != nil {
		return nil, errors.Wrap(err, "encode lots")
	}
	transactions, err := json.Marshal(p.Transactions)
	if err != nil {
		return nil, errors.Wrap(err, "encode transactions")
	}
	return &record{
		UserID:       p.UserID,
		Cash:         p.Cash.String(),
		Holdings:     holdings,
		Lots:         lots,
		Transactions: transactions,
	}, nil
}

func decode(rec *record) (*domain.Portfolio, error) {
	cash, err := decimal.NewFromString(rec.Cash)
	if err != nil {
		return nil, errors.Wrap(err, "decode cash")
	}

	portfolio := &domain.Portfolio{
		UserID:   rec.UserID,
		Cash:     cash,
		Holdings: make(map[string]int64),
		Lots:     make(map[string][]domain.Lot),
	}
	if len(rec.Holdings) > 0 {
		if err := json.Unmarshal(rec.Holdings, &portfolio.Holdings); err != nil {
			return nil, errors.Wrap(err, "decode holdings")
		}
	}
	if len(rec.Lots) > 0 {
		if err := json.Unmarshal(rec.Lots, &portfolio.Lots); err != nil {
			return nil, errors.Wrap(err, "decode lots")
		}
	}
	if len(rec.Transactions) > 0 {
		if err := json.Unmarshal(rec.Transactions, &portfolio.Transactions); err != nil {
			return nil, errors.Wrap(err, "decode transactions")
		}
	}
	return portfolio, nil
}
