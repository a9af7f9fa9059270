package pricefeed

import (
	"encoding/csv"
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"mocktrader/internal/domain"
)

// CSVSource reads snapshots from a CSV file: the header row names the
// symbols, every following row is one snapshot in playback order. The file
// is opened fresh on every Load so it can be replaced between rotations.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source reading from path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Load parses the whole file into an ordered snapshot sequence.
func (s *CSVSource) Load() ([]domain.PriceSnapshot, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "open price file")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse price file")
	}
	if len(records) < 2 {
		// header only (or nothing): no snapshots
		return nil, nil
	}

	symbols := records[0]
	snapshots := make([]domain.PriceSnapshot, 0, len(records)-1)
	for _, row := range records[1:] {
		snapshot := make(domain.PriceSnapshot, len(symbols))
		for i, symbol := range symbols {
			price, err := decimal.NewFromString(row[i])
			if err != nil {
				return nil, errors.Wrapf(err, "invalid price for %s", symbol)
			}
			if price.IsNegative() {
				return nil, errors.Errorf("negative price for %s: %s", symbol, price)
			}
			snapshot[symbol] = price
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
