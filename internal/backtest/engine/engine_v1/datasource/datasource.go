package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// AllIntervals lists the supported resampling intervals.
var AllIntervals = []any{
	Interval1m,
	Interval5m,
	Interval15m,
	Interval30m,
	Interval1h,
	Interval4h,
	Interval6h,
	Interval8h,
	Interval12h,
	Interval1d,
	Interval1w,
}

// DataSource provides the long-format price table a universe is built from.
type DataSource interface {
	// Initialize loads price data from path. Depending on the implementation path may be
	// a parquet file, a CSV file or a glob of either. Rows need time, symbol and close columns.
	Initialize(path string) error
	// ReadAll yields rows ordered by time and symbol. With an interval the rows are resampled
	// to the last close of each bucket.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) func(yield func(types.PriceRow, error) bool)
	// Count returns the number of raw rows in the time range
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// GetAllSymbols returns the distinct symbols in sorted order
	GetAllSymbols() ([]string, error)
	// Close releases any resources
	Close() error
}

// AuxReader is implemented by data sources that can load auxiliary side tables.
type AuxReader interface {
	// ReadAuxTable loads a long-format (time, column, value) file and aligns it to ticks.
	ReadAuxTable(name string, path string, ticks []time.Time) (*universe.AuxTable, error)
}

// LoadUniverse reads every row in range and pivots it into a universe.
func LoadUniverse(ds DataSource, start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) (*universe.Universe, error) {
	var rows []types.PriceRow

	for row, err := range ds.ReadAll(start, end, interval) {
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read price data", err)
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errors.New(errors.ErrCodeNoDataFound, "no price data in the requested range")
	}

	return universe.FromRows(rows)
}

func inRange(t time.Time, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && t.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && t.After(end.Unwrap()) {
		return false
	}

	return true
}
