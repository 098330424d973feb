package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

const priceView = "price_data"

type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDataSource creates a new DuckDB data source. An empty path opens an in-memory database.
// This is distinct from Initialize() which loads price data into the database.
func NewDataSource(path string, logger *logger.Logger) (*DuckDBDataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	_, err = db.Exec(`SET threads=4;`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to configure duckdb", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// readFunction picks the duckdb table function for a file or glob.
func readFunction(path string) string {
	escaped := strings.ReplaceAll(path, "'", "''")
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return fmt.Sprintf("read_csv_auto('%s', header=true)", escaped)
	}

	return fmt.Sprintf("read_parquet('%s')", escaped)
}

// Initialize implements DataSource.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	_, err := d.db.Exec(`DROP VIEW IF EXISTS ` + priceView + `;`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing view", err)
	}

	// Squirrel doesn't support CREATE VIEW
	query := fmt.Sprintf(`
		CREATE VIEW %s AS
		SELECT CAST(time AS TIMESTAMP) AS time,
		       CAST(symbol AS VARCHAR) AS symbol,
		       CAST(close AS DOUBLE) AS close
		FROM %s;
	`, priceView, readFunction(path))

	if _, err = d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to load price data from %s", path)
	}

	return nil
}

func timeRange(start optional.Option[time.Time], end optional.Option[time.Time]) squirrel.And {
	conditions := squirrel.And{}

	if start.IsSome() {
		conditions = append(conditions, squirrel.GtOrEq{"time": start.Unwrap()})
	}

	if end.IsSome() {
		conditions = append(conditions, squirrel.LtOrEq{"time": end.Unwrap()})
	}

	return conditions
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	query, args, err := d.sq.
		Select("COUNT(*)").
		From(priceView).
		Where(timeRange(start, end)).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count rows", err)
	}

	return count, nil
}

func (d *DuckDBDataSource) buildReadAllQuery(start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) (string, []interface{}, error) {
	if interval.IsNone() {
		return d.sq.
			Select("time", "symbol", "close").
			From(priceView).
			Where(timeRange(start, end)).
			OrderBy("time ASC", "symbol ASC").
			ToSql()
	}

	minutes, err := getIntervalMinutes(interval.Unwrap())
	if err != nil {
		return "", nil, err
	}

	bucket := fmt.Sprintf("time_bucket(INTERVAL '%d minutes', time)", minutes)

	return d.sq.
		Select(bucket+" AS bucket", "symbol", "arg_max(close, time) AS close").
		From(priceView).
		Where(timeRange(start, end)).
		GroupBy("bucket", "symbol").
		OrderBy("bucket ASC", "symbol ASC").
		ToSql()
}

// ReadAll implements DataSource.
func (d *DuckDBDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time], interval optional.Option[Interval]) func(yield func(types.PriceRow, error) bool) {
	return func(yield func(types.PriceRow, error) bool) {
		d.logger.Debug("Reading price data from DuckDB")

		query, args, err := d.buildReadAllQuery(start, end, interval)
		if err != nil {
			yield(types.PriceRow{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err))

			return
		}

		rows, err := d.db.Query(query, args...)
		if err != nil {
			yield(types.PriceRow{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query price data", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				timestamp time.Time
				symbol    string
				price     sql.NullFloat64
			)

			if err := rows.Scan(&timestamp, &symbol, &price); err != nil {
				yield(types.PriceRow{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan row", err))

				return
			}

			close := math.NaN()
			if price.Valid {
				close = price.Float64
			}

			if !yield(types.PriceRow{Time: types.NewTimestamp(timestamp.UTC()), Symbol: symbol, Close: close}, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.PriceRow{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating rows", err))
		}
	}
}

// GetAllSymbols implements DataSource.
func (d *DuckDBDataSource) GetAllSymbols() ([]string, error) {
	query, args, err := d.sq.
		Select("DISTINCT symbol").
		From(priceView).
		OrderBy("symbol ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build symbols query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// ReadAuxTable implements AuxReader. The file needs time, column and value columns.
// Cells with no row for a tick are NaN.
func (d *DuckDBDataSource) ReadAuxTable(name string, path string, ticks []time.Time) (*universe.AuxTable, error) {
	d.logger.Debug("Reading aux table", zap.String("name", name), zap.String("path", path))

	query := fmt.Sprintf(`
		SELECT CAST(time AS TIMESTAMP) AS time, CAST("column" AS VARCHAR) AS col, CAST(value AS DOUBLE) AS value
		FROM %s
		ORDER BY col ASC, time ASC
	`, readFunction(path))

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read aux table %s", name)
	}
	defer rows.Close()

	tickIndex := make(map[int64]int, len(ticks))
	for i, tick := range ticks {
		tickIndex[tick.UTC().UnixNano()] = i
	}

	var columns []string

	columnIndex := make(map[string]int)
	values := make([][]float64, len(ticks))

	for rows.Next() {
		var (
			timestamp time.Time
			column    string
			value     sql.NullFloat64
		)

		if err := rows.Scan(&timestamp, &column, &value); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan aux row", err)
		}

		col, ok := columnIndex[column]
		if !ok {
			col = len(columns)
			columnIndex[column] = col
			columns = append(columns, column)

			for i := range values {
				values[i] = append(values[i], math.NaN())
			}
		}

		tick, ok := tickIndex[timestamp.UTC().UnixNano()]
		if !ok || !value.Valid {
			continue
		}

		values[tick][col] = value.Float64
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating aux rows", err)
	}

	return universe.NewAuxTable(name, columns, values)
}

// ExecuteSQL runs a raw query and returns each row as a column map.
func (d *DuckDBDataSource) ExecuteSQL(query string, params ...interface{}) ([]map[string]interface{}, error) {
	d.logger.Debug("Executing SQL query", zap.String("query", query))

	rows, err := d.db.Query(query, params...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to execute query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to get columns", err)
	}

	var result []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan row", err)
		}

		rowMap := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}

		result = append(result, rowMap)
	}

	return result, rows.Err()
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}
