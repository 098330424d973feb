package datasource

import (
	"fmt"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/types"
)

func getIntervalMinutes(interval Interval) (int, error) {
	var intervalMinutes int

	switch interval {
	case Interval1m:
		intervalMinutes = 1
	case Interval5m:
		intervalMinutes = 5
	case Interval15m:
		intervalMinutes = 15
	case Interval30m:
		intervalMinutes = 30
	case Interval1h:
		intervalMinutes = 60
	case Interval4h:
		intervalMinutes = 240
	case Interval6h:
		intervalMinutes = 360
	case Interval8h:
		intervalMinutes = 480
	case Interval12h:
		intervalMinutes = 720
	case Interval1d:
		intervalMinutes = 1440
	case Interval1w:
		intervalMinutes = 10080
	default:
		return 0, fmt.Errorf("unsupported interval: %s", interval)
	}

	return intervalMinutes, nil
}

// sortRows orders rows by time, then symbol.
func sortRows(rows []types.PriceRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Time.Equal(rows[j].Time.Time) {
			return rows[i].Time.Before(rows[j].Time.Time)
		}

		return rows[i].Symbol < rows[j].Symbol
	})
}

// resample keeps the last close of every (bucket, symbol) pair. Rows must be sorted.
// Buckets are truncated in UTC.
func resample(rows []types.PriceRow, interval Interval) ([]types.PriceRow, error) {
	minutes, err := getIntervalMinutes(interval)
	if err != nil {
		return nil, err
	}

	width := time.Duration(minutes) * time.Minute

	type key struct {
		bucket int64
		symbol string
	}

	index := make(map[key]int)
	out := make([]types.PriceRow, 0, len(rows))

	for _, row := range rows {
		bucket := row.Time.UTC().Truncate(width)
		k := key{bucket: bucket.UnixNano(), symbol: row.Symbol}

		if i, ok := index[k]; ok {
			out[i].Close = row.Close

			continue
		}

		index[k] = len(out)
		out = append(out, types.PriceRow{Time: types.NewTimestamp(bucket), Symbol: row.Symbol, Close: row.Close})
	}

	sortRows(out)

	return out, nil
}
