package universe

import (
	"math"
	"sort"

	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// AuxTable is a named side table aligned to the universe's time index, e.g. dividend
// yields or a signal computed outside the engine. Rows are ticks, columns are free-form.
type AuxTable struct {
	name    string
	columns []string
	index   map[string]int
	rows    [][]float64
}

// NewAuxTable builds a table from row-major values: rows[tick][column].
func NewAuxTable(name string, columns []string, rows [][]float64) (*AuxTable, error) {
	if name == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "aux table name is required")
	}

	table := &AuxTable{
		name:    name,
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]float64, len(rows)),
	}

	for i, column := range columns {
		if _, exists := table.index[column]; exists {
			return nil, errors.Newf(errors.ErrCodeDuplicateNode, "aux table %s has duplicate column %s", name, column)
		}

		table.index[column] = i
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter,
				"aux table %s row %d has %d values for %d columns", name, i, len(row), len(columns))
		}

		table.rows[i] = append([]float64(nil), row...)
	}

	return table, nil
}

// Name returns the table name.
func (t *AuxTable) Name() string {
	return t.name
}

// Columns returns the table columns.
func (t *AuxTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *AuxTable) Len() int {
	return len(t.rows)
}

// Value returns the cell at (tick, column), NaN when missing.
func (t *AuxTable) Value(tick int, column string) float64 {
	col, ok := t.index[column]
	if !ok || tick < 0 || tick >= len(t.rows) {
		return math.NaN()
	}

	return t.rows[tick][col]
}

func (t *AuxTable) slice(from, to int) *AuxTable {
	return &AuxTable{
		name:    t.name,
		columns: t.columns,
		index:   t.index,
		rows:    t.rows[from:to],
	}
}

// AddAux attaches a side table. It must have one row per tick.
func (u *Universe) AddAux(table *AuxTable) error {
	if table == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "aux table is nil")
	}

	if table.Len() != u.Len() {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"aux table %s has %d rows for %d ticks", table.name, table.Len(), u.Len())
	}

	if _, exists := u.aux[table.name]; exists {
		return errors.Newf(errors.ErrCodeDuplicateNode, "aux table %s already exists", table.name)
	}

	u.aux[table.name] = table

	return nil
}

// Aux returns the side table with the given name.
func (u *Universe) Aux(name string) (*AuxTable, error) {
	table, ok := u.aux[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeAuxTableNotFound, "aux table %s not found", name)
	}

	return table, nil
}

// AuxNames lists attached side tables in sorted order.
func (u *Universe) AuxNames() []string {
	names := make([]string, 0, len(u.aux))
	for name := range u.aux {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
