package datasource

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

// CSVDataSource reads long-format price CSV files (time,symbol,close) into memory.
type CSVDataSource struct {
	logger *logger.Logger
	cache  []types.PriceRow
}

// NewCSVDataSource creates an empty CSV data source. Call Initialize to load files.
func NewCSVDataSource(logger *logger.Logger) *CSVDataSource {
	return &CSVDataSource{
		logger: logger,
	}
}

// Initialize implements DataSource. Path may be a single file or a glob.
func (c *CSVDataSource) Initialize(path string) error {
	files, err := filepath.Glob(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid data path %s", path)
	}

	if len(files) == 0 {
		return errors.Newf(errors.ErrCodeDataSourceUnavailable, "no files match %s", path)
	}

	sort.Strings(files)

	var rows []types.PriceRow

	for _, file := range files {
		loaded, err := readCSVFile(file)
		if err != nil {
			return err
		}

		rows = append(rows, loaded...)
	}

	sortRows(rows)
	c.cache = rows

	c.logger.Debug("Loaded CSV price data",
		zap.String("path", path),
		zap.Int("files", len(files)),
		zap.Int("rows", len(rows)),
	)

	return nil
}

func readCSVFile(path string) ([]types.PriceRow, error) {
	csvFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to open %s", path)
	}
	defer csvFile.Close()

	var rows []types.PriceRow
	if err := gocsv.UnmarshalFile(csvFile, &rows); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to parse %s", path)
	}

	return rows, nil
}

// ReadAll implements DataSource.
func (c *CSVDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) func(yield func(types.PriceRow, error) bool) {
	return readRows(c.cache, start, end, interval)
}

// Count implements DataSource.
func (c *CSVDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	return countRows(c.cache, start, end), nil
}

// GetAllSymbols implements DataSource.
func (c *CSVDataSource) GetAllSymbols() ([]string, error) {
	return distinctSymbols(c.cache), nil
}

// Close implements DataSource.
func (c *CSVDataSource) Close() error {
	c.cache = nil

	return nil
}

// readRows filters sorted rows by time range and optionally resamples them.
func readRows(rows []types.PriceRow, start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) func(yield func(types.PriceRow, error) bool) {
	return func(yield func(types.PriceRow, error) bool) {
		filtered := make([]types.PriceRow, 0, len(rows))

		for _, row := range rows {
			if inRange(row.Time.Time, start, end) {
				filtered = append(filtered, row)
			}
		}

		if interval.IsSome() {
			resampled, err := resample(filtered, interval.Unwrap())
			if err != nil {
				yield(types.PriceRow{}, errors.Wrap(errors.ErrCodeInvalidParameter, "failed to resample", err))

				return
			}

			filtered = resampled
		}

		for _, row := range filtered {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func countRows(rows []types.PriceRow, start optional.Option[time.Time], end optional.Option[time.Time]) int {
	count := 0

	for _, row := range rows {
		if inRange(row.Time.Time, start, end) {
			count++
		}
	}

	return count
}

func distinctSymbols(rows []types.PriceRow) []string {
	seen := make(map[string]struct{})

	var symbols []string

	for _, row := range rows {
		if _, ok := seen[row.Symbol]; ok {
			continue
		}

		seen[row.Symbol] = struct{}{}
		symbols = append(symbols, row.Symbol)
	}

	sort.Strings(symbols)

	return symbols
}
