package tree

import (
	"math"

	"github.com/rxtech-lab/argo-backtree/internal/utils"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

type childWeight struct {
	id     NodeID
	weight float64
}

// currentWeights captures the child weights before anything moves.
func (t *Tree) currentWeights(n *node) []childWeight {
	out := make([]childWeight, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, childWeight{id: id, weight: t.nodes[id].weight})
	}

	return out
}

// Adjust changes the strategy's cash by amount. A flow is external capital: it is
// recorded in Flows and excluded from the price index return.
// Without leverage a negative amount is capped at the cash the strategy holds.
// Returns the amount applied.
func (s Strategy) Adjust(amount float64, flow bool) float64 {
	t := s.t
	n := s.node()

	if amount < 0 && !t.cfg.AllowLeverage {
		available := math.Max(n.cash, 0)
		if -amount > available+t.cfg.tol(available) {
			t.note(n.id, errors.ErrCodeInsufficientCash,
				"withdrawal of %v capped at available cash %v", -amount, available)
			amount = -available
		}
	}

	if amount == 0 {
		return 0
	}

	n.cash += amount

	if flow {
		// the capital enters every ancestor too
		for id := n.id; ; id = t.nodes[id].parent {
			a := t.nodes[id]
			a.flows += amount
			a.netFlows += amount

			if id == RootID {
				break
			}
		}
	}

	t.revalue(n.id)

	return amount
}

// Allocate moves amount from the parent's cash into this strategy and pushes it into the
// children by their current weights. At the root the amount is an external flow.
// Negative amounts liquidate children first and return at most the cash available.
// Notional strategies keep allocated capital as cash.
func (s Strategy) Allocate(amount float64) error {
	t := s.t
	n := s.node()

	if t.cfg.nearZero(amount) {
		return nil
	}

	weights := t.currentWeights(n)

	if amount > 0 {
		amount = t.fund(n, amount)
		if t.cfg.nearZero(amount) {
			return nil
		}
	}

	var firstErr error

	if !n.notional {
		for _, cw := range weights {
			if t.cfg.nearZero(cw.weight) {
				continue
			}

			if err := t.push(n, cw.id, amount*cw.weight); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if amount < 0 {
		t.withdraw(n, -amount)
	}

	return firstErr
}

// fund moves amount into n: from the parent's cash, or from outside at the root.
// Without leverage the parent can give at most the cash it holds. Returns the amount moved.
func (t *Tree) fund(n *node, amount float64) float64 {
	if n.id == RootID {
		Strategy{Node{t: t, id: n.id}}.Adjust(amount, true)

		return amount
	}

	parent := t.nodes[n.parent]
	if !t.cfg.AllowLeverage && amount > parent.cash+t.cfg.tol(parent.cash) {
		available := math.Max(parent.cash, 0)
		t.note(parent.id, errors.ErrCodeInsufficientCash,
			"allocation of %v to %s capped at available cash %v", amount, n.name, available)
		amount = available
	}

	if t.cfg.nearZero(amount) {
		return 0
	}

	t.transfer(n, amount)

	return amount
}

// withdraw returns up to amount of n's cash to its parent, or out of the tree at the root.
func (t *Tree) withdraw(n *node, amount float64) {
	available := math.Max(n.cash, 0)
	if amount > available+t.cfg.tol(available) {
		t.note(n.id, errors.ErrCodeInsufficientCash,
			"withdrawal of %v capped at available cash %v", amount, available)
		amount = available
	}

	if t.cfg.nearZero(amount) {
		return
	}

	if n.id == RootID {
		Strategy{Node{t: t, id: n.id}}.Adjust(-amount, true)

		return
	}

	t.transfer(n, -amount)
}

// transfer moves cash between a sub-strategy and its parent. For the child it is a flow.
func (t *Tree) transfer(child *node, amount float64) {
	parent := t.nodes[child.parent]
	parent.cash -= amount
	child.cash += amount
	child.flows += amount
	child.netFlows += amount

	t.revalue(child.id)
}

// push sends amount of value from strategy n into one of its children.
func (t *Tree) push(n *node, childID NodeID, amount float64) error {
	child := t.nodes[childID]

	if child.isStrategy() {
		return Strategy{Node{t: t, id: childID}}.Allocate(amount)
	}

	if !child.priced || child.stale {
		t.note(n.id, errors.ErrCodeUnpricedInstrument, "skipped trade in %s: no current price", child.symbol)

		return nil
	}

	t.trade(child, amount/(child.price*child.multiplier), false)

	return nil
}

// Rebalance moves child to weight of the strategy's current value (gross notional in
// notional trees). A weight of zero closes the child.
func (s Strategy) Rebalance(weight float64, child Node) error {
	base := s.Value()
	if s.IsNotional() {
		base = s.NotionalValue()
	}

	return s.RebalanceWithBase(weight, child, base)
}

// RebalanceWithBase is Rebalance against an explicit base, so a step can rebalance
// several children against the value captured before any of them traded.
func (s Strategy) RebalanceWithBase(weight float64, child Node, base float64) error {
	t := s.t
	n := s.node()

	if child.t != t || t.nodes[child.id].parent != n.id || child.id == n.id {
		return errors.Newf(errors.ErrCodeUnknownChild, "%s is not a child of %s", describe(child), n.path)
	}

	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "weight for %s is not finite", child.Path())
	}

	if t.cfg.nearZero(weight) {
		return s.Close(child)
	}

	c := t.nodes[child.id]
	target := weight * base

	if n.notional {
		return t.rebalanceNotional(n, c, target)
	}

	delta := target - c.value
	if math.Abs(delta) <= t.cfg.tol(target) {
		return nil
	}

	return t.push(n, c.id, delta)
}

func (t *Tree) rebalanceNotional(n *node, c *node, target float64) error {
	if !c.isStrategy() {
		if !c.priced || c.stale {
			t.note(n.id, errors.ErrCodeUnpricedInstrument, "skipped trade in %s: no current price", c.symbol)

			return nil
		}

		delta := target - c.notl
		if math.Abs(delta) <= t.cfg.tol(target) {
			return nil
		}

		t.trade(c, delta/c.multiplier, false)

		return nil
	}

	if t.cfg.nearZero(c.notl) {
		t.note(n.id, errors.ErrCodeNotionalUnsupported,
			"cannot scale %s to notional %v: it has no exposure", c.path, target)

		return nil
	}

	sub := Strategy{Node{t: t, id: c.id}}
	base := math.Abs(target)
	sign := 1.0

	if target < 0 {
		sign = -1
	}

	var firstErr error

	for _, cw := range t.currentWeights(c) {
		if err := sub.RebalanceWithBase(sign*cw.weight, Node{t: t, id: cw.id}, base); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Close fully exits child. Instruments trade back to a zero position; sub-strategies
// are flattened and their cash returned to this strategy.
func (s Strategy) Close(child Node) error {
	t := s.t
	n := s.node()

	if child.t != t || t.nodes[child.id].parent != n.id || child.id == n.id {
		return errors.Newf(errors.ErrCodeUnknownChild, "%s is not a child of %s", describe(child), n.path)
	}

	c := t.nodes[child.id]

	if !c.isStrategy() {
		if c.position == 0 {
			t.sweep(c)

			return nil
		}

		if !c.priced || c.stale {
			t.note(n.id, errors.ErrCodeUnpricedInstrument, "cannot close %s: no current price", c.symbol)

			return nil
		}

		t.trade(c, -c.position, true)

		return nil
	}

	sub := Strategy{Node{t: t, id: c.id}}
	err := sub.Flatten()

	if !t.cfg.nearZero(c.cash) {
		t.transfer(c, -c.cash)
	}

	return err
}

// Flatten closes every child.
func (s Strategy) Flatten() error {
	var firstErr error

	for _, child := range s.Children() {
		if err := s.Close(child); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// sweep moves the realized PnL of a flat notional instrument into its parent's cash.
func (t *Tree) sweep(c *node) {
	if !c.notional || c.value == 0 {
		return
	}

	parent := t.nodes[c.parent]
	parent.cash += c.value
	c.value = 0
	c.notl = 0

	t.revalue(parent.id)
}

// trade changes an instrument's position by quantity, paying from the parent's cash.
// Quantities are truncated to the configured precision unless closing. Buys the
// parent cannot afford are clipped to the largest fee-inclusive affordable quantity.
func (t *Tree) trade(c *node, quantity float64, closing bool) {
	cfg := t.cfg
	parent := t.nodes[c.parent]

	if !closing {
		quantity = utils.RoundQuantity(quantity, cfg.Precision)
	}

	if quantity == 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return
	}

	if !cfg.AllowShort && c.position+quantity < -cfg.tol(c.position) {
		held := math.Max(c.position, 0)
		t.note(parent.id, errors.ErrCodeShortNotAllowed,
			"sell of %v %s clipped to held %v", -quantity, c.symbol, held)

		quantity = -held
		closing = true

		if quantity == 0 {
			return
		}
	}

	price := c.price
	cost := quantity * price * c.multiplier

	if c.notional {
		cost = 0
	}

	fee := cfg.Fee.Calculate(math.Abs(quantity), price)

	if quantity > 0 && !cfg.AllowLeverage && cost+fee > parent.cash+cfg.tol(parent.cash) {
		affordable := 0.0
		if !c.notional {
			affordable = utils.CalculateMaxAffordableQuantity(
				math.Max(parent.cash, 0), price, c.multiplier, cfg.Precision, cfg.Tolerance, cfg.Fee)
		} else if fee <= parent.cash+cfg.tol(parent.cash) {
			affordable = quantity
		}

		if affordable < quantity {
			t.note(parent.id, errors.ErrCodeInsufficientCash,
				"buy of %v %s clipped to %v", quantity, c.symbol, affordable)
		}

		quantity = affordable
		if quantity <= 0 {
			return
		}

		cost = quantity * price * c.multiplier
		if c.notional {
			cost = 0
		}

		fee = cfg.Fee.Calculate(quantity, price)
	}

	if quantity < 0 && !cfg.AllowLeverage {
		// fees on a sell never push cash below zero
		if limit := parent.cash - cost; fee > limit {
			fee = math.Max(limit, 0)
		}
	}

	c.position += quantity
	if closing && math.Abs(c.position) <= cfg.tol(quantity) {
		c.position = 0
	}

	parent.cash -= cost + fee

	for id := parent.id; ; id = t.nodes[id].parent {
		t.nodes[id].fees += fee

		if id == RootID {
			break
		}
	}

	if c.notional {
		c.notl = c.position * c.multiplier
	} else {
		c.value = c.position * price * c.multiplier
		c.notl = c.value
	}

	t.log.Debug("Trade executed",
		zap.String("instrument", c.path),
		zap.Int("tick", t.cursor),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.Float64("fee", fee),
		zap.Float64("position", c.position),
	)

	if c.notional && c.position == 0 {
		t.sweep(c)

		return
	}

	t.revalue(parent.id)
}

func describe(n Node) string {
	if n.t == nil {
		return "<nil node>"
	}

	return n.Path()
}
