package tree

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newUniverse builds a daily universe. series[i] holds the prices of columns[i].
func newUniverse(t require.TestingT, columns []string, series ...[]float64) *universe.Universe {
	require.NotEmpty(t, series)

	ticks := make([]time.Time, len(series[0]))
	for i := range ticks {
		ticks[i] = day0.AddDate(0, 0, i)
	}

	u, err := universe.New(ticks, columns, series)
	require.NoError(t, err)

	return u
}

func buildTree(t require.TestingT, spec *StrategySpec, u *universe.Universe, cfg Config) *Tree {
	tr, err := Build(spec, u, cfg, logger.NewNopLogger())
	require.NoError(t, err)

	return tr
}

func child(t require.TestingT, s Strategy, name string) Node {
	n, ok := s.Child(name)
	require.True(t, ok, "missing child %s", name)

	return n
}

func subStrategy(t require.TestingT, s Strategy, name string) Strategy {
	sub, ok := child(t, s, name).AsStrategy()
	require.True(t, ok, "%s is not a strategy", name)

	return sub
}

func instrument(t require.TestingT, s Strategy, name string) Instrument {
	inst, ok := child(t, s, name).AsInstrument()
	require.True(t, ok, "%s is not an instrument", name)

	return inst
}

func someNames(names ...string) optional.Option[[]string] {
	return optional.Some(names)
}
