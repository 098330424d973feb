package tree

import (
	"math"

	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// CheckInvariants verifies the capital and weight invariants of the whole tree and
// returns the first violation found.
func (t *Tree) CheckInvariants() error {
	for _, n := range t.nodes {
		if err := t.checkFinite(n); err != nil {
			return err
		}
	}

	for _, n := range t.nodes {
		if !n.isStrategy() {
			continue
		}

		if err := t.checkConservation(n); err != nil {
			return err
		}

		if !t.cfg.AllowLeverage && n.cash < -t.cfg.tol(n.value) {
			return errors.Newf(errors.ErrCodeNegativeCash,
				"%s has negative cash %v at tick %d", n.path, n.cash, t.cursor)
		}

		for _, id := range n.children {
			if err := t.checkWeight(n, t.nodes[id]); err != nil {
				return err
			}
		}
	}

	root := t.nodes[RootID]
	if root.value < -t.cfg.tol(root.value) {
		return errors.Newf(errors.ErrCodeBankrupt, "root value %v is negative at tick %d", root.value, t.cursor)
	}

	return nil
}

func (t *Tree) checkFinite(n *node) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"price", n.price},
		{"value", n.value},
		{"notional_value", n.notl},
		{"weight", n.weight},
		{"cash", n.cash},
		{"position", n.position},
	}

	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return errors.Newf(errors.ErrCodeNonFiniteValue, "%s %s is %v at tick %d", n.path, f.name, f.value, t.cursor)
		}
	}

	return nil
}

func (t *Tree) checkConservation(n *node) error {
	sum := n.cash
	for _, id := range n.children {
		sum += t.nodes[id].value
	}

	if math.Abs(n.value-sum) > t.cfg.tol(n.value) {
		return errors.Newf(errors.ErrCodeConservationViolated,
			"%s value %v differs from cash plus children %v at tick %d", n.path, n.value, sum, t.cursor)
	}

	return nil
}

func (t *Tree) checkWeight(parent *node, child *node) error {
	base := parent.value
	measure := child.value

	if parent.notional {
		base = parent.notl
		measure = child.notl
	}

	if math.Abs(base) <= t.cfg.Tolerance {
		return nil
	}

	if math.Abs(child.weight-measure/base) > t.cfg.tol(child.weight) {
		return errors.Newf(errors.ErrCodeWeightViolated,
			"%s weight %v differs from %v at tick %d", child.path, child.weight, measure/base, t.cursor)
	}

	return nil
}
