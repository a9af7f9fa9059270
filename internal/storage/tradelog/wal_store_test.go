package tradelog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocktrader/internal/domain"
)

func testTransaction(symbol string, qty int64) domain.Transaction {
	return domain.Transaction{
		Side:     domain.SideBuy,
		Symbol:   symbol,
		Quantity: qty,
		Price:    decimal.NewFromInt(100),
		Time:     time.Now().UTC(),
	}
}

func TestWALStore_AppendAndReadBack(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(1, testTransaction("APPL", 10)))
	require.NoError(t, store.Append(2, testTransaction("TSLA", 3)))

	entries, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "APPL", entries[0].Record.Symbol)
	assert.Equal(t, int64(1), entries[0].Record.UserID)
	assert.Equal(t, "TSLA", entries[1].Record.Symbol)
	assert.NotEmpty(t, entries[0].Record.ID)
	assert.Less(t, entries[0].Index, entries[1].Index)
}

func TestWALStore_EventsAfterResumesFromIndex(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(1, testTransaction("APPL", 1)))
	first, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, store.Append(1, testTransaction("GOOGL", 2)))

	rest, err := store.EventsAfter(first[0].Index)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "GOOGL", rest[0].Record.Symbol)

	none, err := store.EventsAfter(rest[0].Index)
	require.NoError(t, err)
	assert.Empty(t, none)
}
