package datasource

import (
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// InMemoryDataSource serves rows held in memory. It can be filled directly or
// preloaded from another DataSource so repeated runs skip the underlying query.
type InMemoryDataSource struct {
	underlying DataSource
	rows       []types.PriceRow
	mu         sync.RWMutex
}

// NewInMemoryDataSource creates a data source over rows.
func NewInMemoryDataSource(rows []types.PriceRow) *InMemoryDataSource {
	copied := append([]types.PriceRow(nil), rows...)
	sortRows(copied)

	return &InMemoryDataSource{rows: copied}
}

// NewInMemoryDataSourceFrom wraps underlying. Initialize loads it and copies every row into memory.
func NewInMemoryDataSourceFrom(underlying DataSource) *InMemoryDataSource {
	return &InMemoryDataSource{underlying: underlying}
}

// Initialize implements DataSource. Without an underlying source it is a no-op.
func (ds *InMemoryDataSource) Initialize(path string) error {
	if ds.underlying == nil {
		return nil
	}

	if err := ds.underlying.Initialize(path); err != nil {
		return err
	}

	return ds.Preload(optional.None[time.Time](), optional.None[time.Time]())
}

// Preload copies the underlying rows in range into memory.
func (ds *InMemoryDataSource) Preload(start optional.Option[time.Time], end optional.Option[time.Time]) error {
	if ds.underlying == nil {
		return errors.New(errors.ErrCodeDataSourceUnavailable, "no underlying data source to preload from")
	}

	var rows []types.PriceRow

	for row, err := range ds.underlying.ReadAll(start, end, optional.None[Interval]()) {
		if err != nil {
			return errors.Wrap(errors.ErrCodeNoDataFound, "failed to preload data", err)
		}

		rows = append(rows, row)
	}

	sortRows(rows)

	ds.mu.Lock()
	ds.rows = rows
	ds.mu.Unlock()

	return nil
}

func (ds *InMemoryDataSource) snapshot() []types.PriceRow {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return ds.rows
}

// ReadAll implements DataSource.
func (ds *InMemoryDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) func(yield func(types.PriceRow, error) bool) {
	return readRows(ds.snapshot(), start, end, interval)
}

// Count implements DataSource.
func (ds *InMemoryDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	return countRows(ds.snapshot(), start, end), nil
}

// GetAllSymbols implements DataSource.
func (ds *InMemoryDataSource) GetAllSymbols() ([]string, error) {
	return distinctSymbols(ds.snapshot()), nil
}

// ReadAuxTable implements AuxReader by delegating to the underlying source.
func (ds *InMemoryDataSource) ReadAuxTable(name string, path string, ticks []time.Time) (*universe.AuxTable, error) {
	reader, ok := ds.underlying.(AuxReader)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "data source cannot read auxiliary tables")
	}

	return reader.ReadAuxTable(name, path, ticks)
}

// Close implements DataSource.
func (ds *InMemoryDataSource) Close() error {
	ds.mu.Lock()
	ds.rows = nil
	ds.mu.Unlock()

	if ds.underlying != nil {
		return ds.underlying.Close()
	}

	return nil
}
