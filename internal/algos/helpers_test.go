package algos

import (
	"fmt"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dailyTicks(n int) []time.Time {
	ticks := make([]time.Time, n)
	for i := range ticks {
		ticks[i] = day0.AddDate(0, 0, i)
	}

	return ticks
}

// newUniverse builds a universe; series[i] holds the prices of columns[i].
func newUniverse(t require.TestingT, ticks []time.Time, columns []string, series ...[]float64) *universe.Universe {
	u, err := universe.New(ticks, columns, series)
	require.NoError(t, err)

	return u
}

func buildTree(t require.TestingT, spec *tree.StrategySpec, u *universe.Universe) *tree.Tree {
	tr, err := tree.Build(spec, u, tree.DefaultConfig(), logger.NewNopLogger())
	require.NoError(t, err)

	return tr
}

// flatTree is a root over every column of u, with no steps.
func flatTree(t require.TestingT, u *universe.Universe) *tree.Tree {
	return buildTree(t, tree.NewStrategy("root"), u)
}

// evaluateEachTick updates the tree tick by tick and collects the algo's result.
func evaluateEachTick(t require.TestingT, tr *tree.Tree, algo tree.Algo) []bool {
	out := make([]bool, 0, tr.Universe().Len())

	for tick := 0; tick < tr.Universe().Len(); tick++ {
		require.NoError(t, tr.Update(tick))

		ok, err := algo.Evaluate(tr.Root())
		require.NoError(t, err)

		out = append(out, ok)
	}

	return out
}

func hasNote(notes []string, code errors.ErrorCode) bool {
	prefix := fmt.Sprintf("[%d]", code)

	for _, note := range notes {
		if strings.HasPrefix(note, prefix) {
			return true
		}
	}

	return false
}
