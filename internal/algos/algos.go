// Package algos is the library of built-in pipeline steps.
//
// Steps are grouped the way a strategy pipeline usually reads:
//
//   - run:       decide whether the rest of the pipeline runs this tick (RunMonthly, RunEveryN, ...)
//   - select:    choose which children take part (SelectAll, SelectWhere, SelectMomentum, ...)
//   - weigh:     turn the selection into target weights (WeighEqually, WeighInvVol, ...)
//   - rebalance: move the children to the target weights
//
// Steps talk to each other only through the strategy's stores. Anything that has to
// survive a tick is kept in the persistent store under a key unique to the step
// instance, so a step value can be shared by trees simulated in parallel.
package algos

import (
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
)

// stateKey returns a persistent store key that no other step instance uses.
func stateKey(name string) string {
	return name + "/" + uuid.NewString()
}

// candidates returns the selected child names, or every child when nothing was selected.
func candidates(s tree.Strategy) []string {
	if selected := s.Transient().Selected; selected.IsSome() {
		return selected.Unwrap()
	}

	return s.ChildNames()
}

// historySymbol returns the universe column behind a child, if it is an instrument.
func historySymbol(s tree.Strategy, name string) (string, bool) {
	child, ok := s.Child(name)
	if !ok {
		return "", false
	}

	inst, ok := child.AsInstrument()
	if !ok {
		return "", false
	}

	return inst.Symbol(), true
}
