package tradelog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"mocktrader/internal/domain"
)

const (
	defaultTradeDir   = "./wal/trades"
	tradeSegmentLimit = 1000
	tradeMaxSegments  = 100
	tradeKeyPrefix    = "trade_"
)

// Record is one executed trade as journaled in the WAL.
type Record struct {
	ID       string          `json:"id"`
	UserID   int64           `json:"user_id"`
	Side     domain.Side     `json:"side"`
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}

// Entry pairs a journaled trade with its WAL index so stream consumers can
// resume from where they left off.
type Entry struct {
	Index  uint64
	Record Record
}

// WALStore persists executed trades in an append-only WAL for recovery and
// streaming. It does not replace the portfolio row: the ledger stays the
// source of truth.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed trade journal under the provided
// directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultTradeDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: tradeSegmentLimit,
		MaxSegments:      tradeMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append journals one executed trade. Satisfies trade.Journal.
func (s *WALStore) Append(userID int64, tx domain.Transaction) error {
	if s == nil || s.wal == nil {
		return errors.New("trade journal is not initialized")
	}

	record := Record{
		ID:       uuid.New().String(),
		UserID:   userID,
		Side:     tx.Side,
		Symbol:   tx.Symbol,
		Quantity: tx.Quantity,
		Price:    tx.Price,
		Time:     tx.Time,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}

	key := fmt.Sprintf("%s%d", tradeKeyPrefix, userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all trades journaled after the provided WAL index.
func (s *WALStore) EventsAfter(index uint64) ([]Entry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]Entry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, tradeKeyPrefix) {
			continue
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode trade record")
		}
		entries = append(entries, Entry{Index: idx, Record: record})
	}

	return entries, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("trade journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
