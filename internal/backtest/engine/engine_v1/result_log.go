package engine

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// ResultLog is the append-only record of a simulation: one snapshot per strategy
// and one position row per instrument for every processed tick.
type ResultLog struct {
	mu        sync.RWMutex
	snapshots []types.Snapshot
	positions []types.PositionSnapshot
	ticks     int
	lastTick  int
}

// NewResultLog creates an empty log.
func NewResultLog() *ResultLog {
	return &ResultLog{
		lastTick: -1,
	}
}

// Append records the rows of one tick. Ticks must be appended in strictly increasing order
// and every row must belong to the same tick.
func (l *ResultLog) Append(snapshots []types.Snapshot, positions []types.PositionSnapshot) error {
	if len(snapshots) == 0 {
		return errors.New(errors.ErrCodeInvalidState, "append needs at least one strategy snapshot")
	}

	tick := snapshots[0].Tick

	for _, s := range snapshots {
		if s.Tick != tick {
			return errors.Newf(errors.ErrCodeInvalidState, "snapshot for %s is at tick %d, expected %d", s.Strategy, s.Tick, tick)
		}
	}

	for _, p := range positions {
		if p.Tick != tick {
			return errors.Newf(errors.ErrCodeInvalidState, "position for %s is at tick %d, expected %d", p.Instrument, p.Tick, tick)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tick <= l.lastTick {
		return errors.Newf(errors.ErrCodeNonIncreasingTick, "append for tick %d after tick %d", tick, l.lastTick)
	}

	l.snapshots = append(l.snapshots, snapshots...)
	l.positions = append(l.positions, positions...)
	l.lastTick = tick
	l.ticks++

	return nil
}

// Len returns the number of ticks recorded.
func (l *ResultLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.ticks
}

// LastTick returns the last recorded tick, -1 when empty.
func (l *ResultLog) LastTick() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastTick
}

// Snapshots returns a copy of every strategy snapshot in append order.
func (l *ResultLog) Snapshots() []types.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Snapshot, len(l.snapshots))
	copy(out, l.snapshots)

	return out
}

// Series returns the snapshots of one strategy path, oldest first.
func (l *ResultLog) Series(strategy string) []types.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.Snapshot

	for _, s := range l.snapshots {
		if s.Strategy == strategy {
			out = append(out, s)
		}
	}

	return out
}

// Positions returns the position rows held under a strategy path. An empty path returns all of them.
func (l *ResultLog) Positions(strategy string) []types.PositionSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.PositionSnapshot

	for _, p := range l.positions {
		if strategy == "" || p.Strategy == strategy {
			out = append(out, p)
		}
	}

	return out
}

// Strategies returns the recorded strategy paths in sorted order.
func (l *ResultLog) Strategies() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})

	var out []string

	for _, s := range l.snapshots {
		if _, ok := seen[s.Strategy]; ok {
			continue
		}

		seen[s.Strategy] = struct{}{}
		out = append(out, s.Strategy)
	}

	sort.Strings(out)

	return out
}

// Last returns the latest snapshot of a strategy.
func (l *ResultLog) Last(strategy string) (types.Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.snapshots) - 1; i >= 0; i-- {
		if l.snapshots[i].Strategy == strategy {
			return l.snapshots[i], true
		}
	}

	return types.Snapshot{}, false
}
