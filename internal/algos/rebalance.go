package algos

import (
	"sort"

	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Rebalance moves the children to the target weights left in the transient store.
// Children without a target are closed. Trades that free cash run before the ones
// that need it. A cash reserve shrinks the base; in notional trees the base is the
// notional value set by SetNotional, falling back to the current gross exposure.
type Rebalance struct{}

func NewRebalance() *Rebalance {
	return &Rebalance{}
}

func (a *Rebalance) Name() string {
	return "rebalance"
}

type target struct {
	child  tree.Node
	weight float64
	delta  float64
}

func (a *Rebalance) Evaluate(s tree.Strategy) (bool, error) {
	store := s.Transient()
	if store.Weights.IsNone() {
		return true, nil
	}

	weights := store.Weights.Unwrap()

	var firstErr error

	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, child := range s.Children() {
		if _, ok := weights[child.Name()]; ok {
			continue
		}

		if child.Value() != 0 || child.NotionalValue() != 0 {
			keep(s.Close(child))
		}
	}

	base := s.Value()
	if s.IsNotional() {
		base = store.NotionalValue.TakeOr(s.NotionalValue())
	}

	if store.CashReserve.IsSome() {
		base *= 1 - store.CashReserve.Unwrap()
	}

	targets := make([]target, 0, len(weights))

	for name, weight := range weights {
		child, ok := s.Child(name)
		if !ok {
			keep(errors.Newf(errors.ErrCodeUnknownChild, "%s has no child %s", s.Path(), name))

			continue
		}

		current := child.Value()
		if s.IsNotional() {
			current = child.NotionalValue()
		}

		targets = append(targets, target{child: child, weight: weight, delta: weight*base - current})
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].delta != targets[j].delta {
			return targets[i].delta < targets[j].delta
		}

		return targets[i].child.Name() < targets[j].child.Name()
	})

	for _, t := range targets {
		keep(s.RebalanceWithBase(t.weight, t.child, base))
	}

	return true, firstErr
}
