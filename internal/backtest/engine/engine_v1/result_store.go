package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/gocarina/gocsv"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

const (
	SnapshotsFileName = "snapshots"
	PositionsFileName = "positions"
	NotesFileName     = "notes"

	// insertBatchSize bounds the rows of one INSERT statement.
	insertBatchSize = 500
)

// ResultFiles are the paths written by ResultStore.Write.
type ResultFiles struct {
	Snapshots string
	Positions string
	Notes     string
}

// SnapshotRow is the flat CSV form of a strategy snapshot.
type SnapshotRow struct {
	RunID         string          `csv:"run_id"`
	Tick          int             `csv:"tick"`
	Time          types.Timestamp `csv:"time"`
	Strategy      string          `csv:"strategy"`
	Price         float64         `csv:"price"`
	Value         float64         `csv:"value"`
	NotionalValue float64         `csv:"notional_value"`
	Cash          float64         `csv:"cash"`
	Fees          float64         `csv:"fees"`
	Flows         float64         `csv:"flows"`
}

// PositionRow is the flat CSV form of a position snapshot.
type PositionRow struct {
	RunID      string          `csv:"run_id"`
	Tick       int             `csv:"tick"`
	Time       types.Timestamp `csv:"time"`
	Strategy   string          `csv:"strategy"`
	Instrument string          `csv:"instrument"`
	Symbol     string          `csv:"symbol"`
	Position   float64         `csv:"position"`
	Price      float64         `csv:"price"`
	Value      float64         `csv:"value"`
	Weight     float64         `csv:"weight"`
	Stale      bool            `csv:"stale"`
}

// NoteRow is one recovered issue recorded on a strategy.
type NoteRow struct {
	RunID    string          `csv:"run_id"`
	Tick     int             `csv:"tick"`
	Time     types.Timestamp `csv:"time"`
	Strategy string          `csv:"strategy"`
	Note     string          `csv:"note"`
}

// ResultStore persists result logs in an in-memory DuckDB database and exports them
// as parquet or CSV files.
type ResultStore struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewResultStore opens an in-memory database with empty result tables.
func NewResultStore(logger *logger.Logger) (*ResultStore, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))

		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open result database", err)
	}

	if err := db.Ping(); err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to connect to result database", err)
	}

	store := &ResultStore{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := store.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (r *ResultStore) initialize() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT,
			tick INTEGER,
			time TIMESTAMP,
			strategy TEXT,
			price DOUBLE,
			value DOUBLE,
			notional_value DOUBLE,
			cash DOUBLE,
			fees DOUBLE,
			flows DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create snapshots table", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			run_id TEXT,
			tick INTEGER,
			time TIMESTAMP,
			strategy TEXT,
			instrument TEXT,
			symbol TEXT,
			position DOUBLE,
			price DOUBLE,
			value DOUBLE,
			weight DOUBLE,
			stale BOOLEAN
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create positions table", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			run_id TEXT,
			tick INTEGER,
			time TIMESTAMP,
			strategy TEXT,
			note TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create notes table", err)
	}

	return nil
}

// Append stores the rows of one run in a single transaction.
func (r *ResultStore) Append(runID string, snapshots []types.Snapshot, positions []types.PositionSnapshot) error {
	if r == nil || r.db == nil {
		return errors.New(errors.ErrCodeInvalidState, "result store is closed")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to begin transaction", err)
	}

	snapshotValues := make([][]any, 0, len(snapshots))
	noteValues := make([][]any, 0)

	for _, s := range snapshots {
		snapshotValues = append(snapshotValues, []any{
			runID, s.Tick, s.Time, s.Strategy, s.Price, s.Value, s.NotionalValue, s.Cash, s.Fees, s.Flows,
		})

		for _, note := range s.Notes {
			noteValues = append(noteValues, []any{runID, s.Tick, s.Time, s.Strategy, note})
		}
	}

	positionValues := make([][]any, 0, len(positions))
	for _, p := range positions {
		positionValues = append(positionValues, []any{
			runID, p.Tick, p.Time, p.Strategy, p.Instrument, p.Symbol, p.Position, p.Price, p.Value, p.Weight, p.Stale,
		})
	}

	inserts := []struct {
		table   string
		columns []string
		values  [][]any
	}{
		{"snapshots", []string{"run_id", "tick", "time", "strategy", "price", "value", "notional_value", "cash", "fees", "flows"}, snapshotValues},
		{"positions", []string{"run_id", "tick", "time", "strategy", "instrument", "symbol", "position", "price", "value", "weight", "stale"}, positionValues},
		{"notes", []string{"run_id", "tick", "time", "strategy", "note"}, noteValues},
	}

	for _, insert := range inserts {
		if err := r.insert(tx, insert.table, insert.columns, insert.values); err != nil {
			tx.Rollback()

			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to commit results", err)
	}

	r.logger.Debug("Stored results",
		zap.String("run_id", runID),
		zap.Int("snapshots", len(snapshotValues)),
		zap.Int("positions", len(positionValues)),
		zap.Int("notes", len(noteValues)),
	)

	return nil
}

func (r *ResultStore) insert(tx *sql.Tx, table string, columns []string, values [][]any) error {
	for start := 0; start < len(values); start += insertBatchSize {
		end := min(start+insertBatchSize, len(values))

		query := r.sq.Insert(table).Columns(columns...)
		for _, row := range values[start:end] {
			query = query.Values(row...)
		}

		if _, err := query.RunWith(tx).Exec(); err != nil {
			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to insert into %s", table)
		}
	}

	return nil
}

// Count returns the number of rows stored in table for a run. An empty run id counts every run.
func (r *ResultStore) Count(table string, runID string) (int, error) {
	query := r.sq.Select("COUNT(*)").From(table)
	if runID != "" {
		query = query.Where(squirrel.Eq{"run_id": runID})
	}

	var count int
	if err := query.RunWith(r.db).QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to count %s", table)
	}

	return count, nil
}

// Snapshots reads back the stored snapshots of a run ordered by tick and strategy.
// Notes are kept in their own table and are not attached.
func (r *ResultStore) Snapshots(runID string) ([]SnapshotRow, error) {
	rows, err := r.sq.
		Select("run_id", "tick", "time", "strategy", "price", "value", "notional_value", "cash", "fees", "flows").
		From("snapshots").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("tick ASC", "strategy ASC").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query snapshots", err)
	}
	defer rows.Close()

	var out []SnapshotRow

	for rows.Next() {
		var row SnapshotRow

		var at time.Time

		if err := rows.Scan(&row.RunID, &row.Tick, &at, &row.Strategy, &row.Price, &row.Value,
			&row.NotionalValue, &row.Cash, &row.Fees, &row.Flows); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan snapshot", err)
		}

		row.Time = types.NewTimestamp(at)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating snapshots", err)
	}

	return out, nil
}

// Positions reads back the stored positions of a run ordered by tick and instrument.
func (r *ResultStore) Positions(runID string) ([]PositionRow, error) {
	rows, err := r.sq.
		Select("run_id", "tick", "time", "strategy", "instrument", "symbol", "position", "price", "value", "weight", "stale").
		From("positions").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("tick ASC", "instrument ASC").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query positions", err)
	}
	defer rows.Close()

	var out []PositionRow

	for rows.Next() {
		var row PositionRow

		var at time.Time

		if err := rows.Scan(&row.RunID, &row.Tick, &at, &row.Strategy, &row.Instrument, &row.Symbol,
			&row.Position, &row.Price, &row.Value, &row.Weight, &row.Stale); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan position", err)
		}

		row.Time = types.NewTimestamp(at)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating positions", err)
	}

	return out, nil
}

// Notes reads back the recorded notes of a run in tick order.
func (r *ResultStore) Notes(runID string) ([]NoteRow, error) {
	rows, err := r.sq.
		Select("run_id", "tick", "time", "strategy", "note").
		From("notes").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("tick ASC", "strategy ASC").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query notes", err)
	}
	defer rows.Close()

	var out []NoteRow

	for rows.Next() {
		var row NoteRow

		var at time.Time

		if err := rows.Scan(&row.RunID, &row.Tick, &at, &row.Strategy, &row.Note); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan note", err)
		}

		row.Time = types.NewTimestamp(at)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating notes", err)
	}

	return out, nil
}

// Write exports every table to a parquet file in dir.
func (r *ResultStore) Write(dir string) (ResultFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ResultFiles{}, fmt.Errorf("failed to create directory: %w", err)
	}

	files := ResultFiles{
		Snapshots: filepath.Join(dir, SnapshotsFileName+".parquet"),
		Positions: filepath.Join(dir, PositionsFileName+".parquet"),
		Notes:     filepath.Join(dir, NotesFileName+".parquet"),
	}

	exports := []struct {
		table string
		path  string
	}{
		{"snapshots", files.Snapshots},
		{"positions", files.Positions},
		{"notes", files.Notes},
	}

	for _, export := range exports {
		_, err := r.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM %s ORDER BY run_id, tick) TO '%s' (FORMAT PARQUET)`, export.table, export.path))
		if err != nil {
			return ResultFiles{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to export %s to parquet", export.table)
		}
	}

	r.logger.Info("Exported results to parquet",
		zap.String("snapshots", files.Snapshots),
		zap.String("positions", files.Positions),
		zap.String("notes", files.Notes),
	)

	return files, nil
}

// Import loads parquet files written by Write back into the store. Empty paths are skipped.
func (r *ResultStore) Import(files ResultFiles) error {
	if r == nil || r.db == nil {
		return errors.New(errors.ErrCodeInvalidState, "result store is closed")
	}

	imports := []struct {
		table string
		path  string
	}{
		{"snapshots", files.Snapshots},
		{"positions", files.Positions},
		{"notes", files.Notes},
	}

	for _, imp := range imports {
		if imp.path == "" {
			continue
		}

		escaped := strings.ReplaceAll(imp.path, "'", "''")

		_, err := r.db.Exec(fmt.Sprintf(`INSERT INTO %s SELECT * FROM read_parquet('%s')`, imp.table, escaped))
		if err != nil {
			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to import %s", imp.path)
		}
	}

	return nil
}

// WriteCSV exports the rows of a run as snapshots.csv, positions.csv and notes.csv in dir.
func (r *ResultStore) WriteCSV(dir string, runID string) (ResultFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ResultFiles{}, fmt.Errorf("failed to create directory: %w", err)
	}

	snapshots, err := r.Snapshots(runID)
	if err != nil {
		return ResultFiles{}, err
	}

	positions, err := r.Positions(runID)
	if err != nil {
		return ResultFiles{}, err
	}

	notes, err := r.Notes(runID)
	if err != nil {
		return ResultFiles{}, err
	}

	files := ResultFiles{
		Snapshots: filepath.Join(dir, SnapshotsFileName+".csv"),
		Positions: filepath.Join(dir, PositionsFileName+".csv"),
		Notes:     filepath.Join(dir, NotesFileName+".csv"),
	}

	if err := writeCSV(files.Snapshots, &snapshots); err != nil {
		return ResultFiles{}, err
	}

	if err := writeCSV(files.Positions, &positions); err != nil {
		return ResultFiles{}, err
	}

	if err := writeCSV(files.Notes, &notes); err != nil {
		return ResultFiles{}, err
	}

	return files, nil
}

func writeCSV(path string, rows any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Close closes the database connection.
func (r *ResultStore) Close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}
