// Package universe holds the read-only price table a simulation runs against.
//
// A Universe is a tick-indexed, column-keyed matrix of prices. Missing
// observations are stored as NaN. Ticks are kept in the order they were
// supplied; the simulation driver is responsible for rejecting a time index
// that is not strictly increasing.
package universe

import (
	"math"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Universe is an immutable price table.
type Universe struct {
	ticks   []time.Time
	columns []string
	index   map[string]int
	// prices is column-major: prices[column][tick].
	prices [][]float64
	aux    map[string]*AuxTable
}

// New builds a universe from column-major prices. prices[i] holds the series of columns[i]
// and must have one entry per tick.
func New(ticks []time.Time, columns []string, prices [][]float64) (*Universe, error) {
	if len(ticks) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyUniverse, "universe has no ticks")
	}

	if len(columns) != len(prices) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"universe has %d columns but %d price series", len(columns), len(prices))
	}

	u := &Universe{
		ticks:   append([]time.Time(nil), ticks...),
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		prices:  make([][]float64, len(columns)),
		aux:     make(map[string]*AuxTable),
	}

	for i, column := range columns {
		if column == "" {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "column %d has an empty name", i)
		}

		if _, exists := u.index[column]; exists {
			return nil, errors.Newf(errors.ErrCodeDuplicateNode, "duplicate column %s", column)
		}

		if len(prices[i]) != len(ticks) {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter,
				"column %s has %d prices for %d ticks", column, len(prices[i]), len(ticks))
		}

		u.index[column] = i
		u.prices[i] = append([]float64(nil), prices[i]...)
	}

	return u, nil
}

// FromRows pivots long-format rows into a universe. Ticks and columns appear in the
// order they are first seen; cells without a row are NaN.
func FromRows(rows []types.PriceRow) (*Universe, error) {
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyUniverse, "no price rows")
	}

	tickIndex := make(map[int64]int)
	columnIndex := make(map[string]int)

	var ticks []time.Time

	var columns []string

	for _, row := range rows {
		key := row.Time.UnixNano()
		if _, ok := tickIndex[key]; !ok {
			tickIndex[key] = len(ticks)
			ticks = append(ticks, row.Time.Time)
		}

		if _, ok := columnIndex[row.Symbol]; !ok {
			columnIndex[row.Symbol] = len(columns)
			columns = append(columns, row.Symbol)
		}
	}

	prices := make([][]float64, len(columns))
	filled := make([][]bool, len(columns))

	for i := range prices {
		prices[i] = make([]float64, len(ticks))
		filled[i] = make([]bool, len(ticks))

		for j := range prices[i] {
			prices[i][j] = math.NaN()
		}
	}

	for _, row := range rows {
		col := columnIndex[row.Symbol]
		tick := tickIndex[row.Time.UnixNano()]

		if filled[col][tick] {
			return nil, errors.Newf(errors.ErrCodeDuplicateTick,
				"duplicate price for %s at %s", row.Symbol, row.Time.Format(time.RFC3339))
		}

		filled[col][tick] = true
		prices[col][tick] = row.Close
	}

	return New(ticks, columns, prices)
}

// Len returns the number of ticks.
func (u *Universe) Len() int {
	return len(u.ticks)
}

// Tick returns the timestamp at index i.
func (u *Universe) Tick(i int) time.Time {
	return u.ticks[i]
}

// Ticks returns a copy of the time index.
func (u *Universe) Ticks() []time.Time {
	return append([]time.Time(nil), u.ticks...)
}

// Columns returns the instrument columns in universe order.
func (u *Universe) Columns() []string {
	return append([]string(nil), u.columns...)
}

// Column resolves a symbol to its column index.
func (u *Universe) Column(symbol string) (int, bool) {
	i, ok := u.index[symbol]

	return i, ok
}

// Price returns the price of column col at tick, NaN when missing or out of range.
func (u *Universe) Price(col int, tick int) float64 {
	if col < 0 || col >= len(u.prices) || tick < 0 || tick >= len(u.ticks) {
		return math.NaN()
	}

	return u.prices[col][tick]
}

// PriceOf is Price addressed by symbol.
func (u *Universe) PriceOf(symbol string, tick int) float64 {
	col, ok := u.index[symbol]
	if !ok {
		return math.NaN()
	}

	return u.Price(col, tick)
}

// History returns up to lookback prices of col ending at tick (inclusive), oldest first.
// Missing observations are returned as NaN. A lookback <= 0 returns everything up to tick.
func (u *Universe) History(col int, tick int, lookback int) []float64 {
	if col < 0 || col >= len(u.prices) || tick < 0 {
		return nil
	}

	if tick >= len(u.ticks) {
		tick = len(u.ticks) - 1
	}

	start := 0
	if lookback > 0 && tick+1-lookback > 0 {
		start = tick + 1 - lookback
	}

	return append([]float64(nil), u.prices[col][start:tick+1]...)
}

// Between returns the sub-universe whose ticks fall in [start, end]. A zero start or end
// leaves that side unbounded. Auxiliary tables are sliced along.
func (u *Universe) Between(start, end time.Time) (*Universe, error) {
	from, to := -1, -1

	for i, tick := range u.ticks {
		if !start.IsZero() && tick.Before(start) {
			continue
		}

		if !end.IsZero() && tick.After(end) {
			continue
		}

		if from == -1 {
			from = i
		}

		to = i
	}

	if from == -1 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound,
			"no ticks between %s and %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	prices := make([][]float64, len(u.prices))
	for i := range u.prices {
		prices[i] = u.prices[i][from : to+1]
	}

	sliced, err := New(u.ticks[from:to+1], u.columns, prices)
	if err != nil {
		return nil, err
	}

	for _, name := range u.AuxNames() {
		table := u.aux[name]
		if err := sliced.AddAux(table.slice(from, to+1)); err != nil {
			return nil, err
		}
	}

	return sliced, nil
}
