// Package tree implements the strategy tree: an arena of strategy and instrument
// nodes that is valued bottom-up and allocated top-down once per tick.
//
// A tree is declared with NewStrategy and NewInstrument, resolved against a
// universe with Build, and then driven by calling Update and Run for each tick
// in strictly increasing order. Nodes are addressed by NodeID; the handles
// returned by Root and Node are cheap values that read and mutate the arena.
package tree

import (
	"math"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

// NodeID addresses a node in its tree.
type NodeID int

// RootID is the id of the root strategy.
const RootID NodeID = 0

type nodeKind int

const (
	kindStrategy nodeKind = iota
	kindInstrument
)

type node struct {
	id       NodeID
	name     string
	path     string
	kind     nodeKind
	parent   NodeID
	children []NodeID
	byName   map[string]NodeID
	notional bool

	price  float64
	value  float64
	notl   float64
	weight float64
	priced bool
	stale  bool
	// stamp is the tree version this node was last valued at.
	stamp uint64
	// notedAt is the tick a missing price was last reported for.
	notedAt int

	// instrument
	symbol     string
	column     int
	position   float64
	multiplier float64

	// strategy
	cash         float64
	fees         float64
	flows        float64
	netFlows     float64
	lastValue    float64
	lastPrice    float64
	lastNotional float64
	transient    *Store
	persistent   *Store
	stack        *Stack
}

func (n *node) isStrategy() bool {
	return n.kind == kindStrategy
}

// Tree is a frozen strategy tree bound to one universe. It is not safe for concurrent use.
type Tree struct {
	cfg      Config
	log      *logger.Logger
	universe *universe.Universe
	nodes    []*node
	// version increases on every new tick and every mutation.
	version uint64
	cursor  int
	notes   map[NodeID][]string
}

// Config returns the normalized configuration.
func (t *Tree) Config() Config {
	return t.cfg
}

// Universe returns the price table the tree was built against.
func (t *Tree) Universe() *universe.Universe {
	return t.universe
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Root returns the root strategy.
func (t *Tree) Root() Strategy {
	return Strategy{Node{t: t, id: RootID}}
}

// Node returns the handle for id.
func (t *Tree) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(t.nodes) {
		return Node{}, false
	}

	return Node{t: t, id: id}, true
}

// Lookup finds a node by its slash separated path, e.g. "root/equity/SPY".
func (t *Tree) Lookup(path string) (Node, bool) {
	for _, n := range t.nodes {
		if n.path == path {
			return Node{t: t, id: n.id}, true
		}
	}

	return Node{}, false
}

// Strategies returns every strategy node in pre-order.
func (t *Tree) Strategies() []Strategy {
	var out []Strategy

	t.walk(RootID, func(n *node) {
		if n.isStrategy() {
			out = append(out, Strategy{Node{t: t, id: n.id}})
		}
	})

	return out
}

// Instruments returns every instrument node in pre-order.
func (t *Tree) Instruments() []Instrument {
	var out []Instrument

	t.walk(RootID, func(n *node) {
		if !n.isStrategy() {
			out = append(out, Instrument{Node{t: t, id: n.id}})
		}
	})

	return out
}

func (t *Tree) walk(id NodeID, fn func(n *node)) {
	n := t.nodes[id]
	fn(n)

	for _, child := range n.children {
		t.walk(child, fn)
	}
}

// Cursor returns the current tick index, -1 before the first Update.
func (t *Tree) Cursor() int {
	return t.cursor
}

// Now returns the timestamp of the current tick.
func (t *Tree) Now() time.Time {
	if t.cursor < 0 {
		return time.Time{}
	}

	return t.universe.Tick(t.cursor)
}

// Notes returns the data and allocation issues recorded on a strategy during the current tick.
func (t *Tree) Notes(id NodeID) []string {
	return append([]string(nil), t.notes[id]...)
}

// Update values the tree at tick. Calling it again for the same tick is a no-op unless
// the tree was mutated in between.
func (t *Tree) Update(tick int) error {
	if tick < 0 || tick >= t.universe.Len() {
		return errors.Newf(errors.ErrCodeTickOutOfRange, "tick %d outside universe of %d ticks", tick, t.universe.Len())
	}

	if tick < t.cursor {
		return errors.Newf(errors.ErrCodeNonIncreasingTick, "update to tick %d after tick %d", tick, t.cursor)
	}

	if tick != t.cursor {
		t.beginTick(tick)
	}

	if t.nodes[RootID].stamp == t.version {
		return nil
	}

	t.value(RootID)

	return nil
}

// beginTick rolls the per-tick counters forward.
func (t *Tree) beginTick(tick int) {
	t.cursor = tick
	t.version++
	t.notes = make(map[NodeID][]string)

	for _, n := range t.nodes {
		if !n.isStrategy() {
			continue
		}

		n.lastValue = n.value
		n.lastPrice = n.price
		n.lastNotional = n.notl
		n.netFlows = 0
		n.fees = 0
		n.flows = 0
	}
}

func (t *Tree) value(id NodeID) {
	n := t.nodes[id]

	if n.isStrategy() {
		for _, child := range n.children {
			t.value(child)
		}

		t.aggregate(n)
		t.reprice(n)
	} else {
		t.valueInstrument(n)
	}

	n.stamp = t.version
}

func (t *Tree) validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && !t.cfg.nearZero(p)
}

func (t *Tree) valueInstrument(n *node) {
	p := t.universe.Price(n.column, t.cursor)
	if !t.validPrice(p) {
		if n.notedAt != t.cursor {
			n.notedAt = t.cursor
			if n.priced {
				t.note(n.parent, errors.ErrCodePriceUnavailable, "price of %s unavailable, carrying %v forward", n.symbol, n.price)
			} else {
				t.note(n.parent, errors.ErrCodePriceUnavailable, "price of %s unavailable, not yet priced", n.symbol)
			}
		}

		n.stale = n.priced

		return
	}

	if n.notional {
		if n.priced {
			n.value += n.position * (p - n.price) * n.multiplier
		}

		n.notl = n.position * n.multiplier
	} else {
		n.value = n.position * p * n.multiplier
		n.notl = n.value
	}

	n.price = p
	n.priced = true
	n.stale = false
}

// aggregate sums a strategy's children and refreshes their weights.
func (t *Tree) aggregate(n *node) {
	value := n.cash
	notl := 0.0

	for _, id := range n.children {
		child := t.nodes[id]
		value += child.value
		notl += math.Abs(child.notl)
	}

	n.value = value
	n.notl = notl

	for _, id := range n.children {
		child := t.nodes[id]
		child.weight = t.weightOf(n, child)
	}
}

func (t *Tree) weightOf(parent *node, child *node) float64 {
	if parent.notional {
		if t.cfg.nearZero(parent.notl) {
			return 0
		}

		return child.notl / parent.notl
	}

	if t.cfg.nearZero(parent.value) {
		return 0
	}

	return child.value / parent.value
}

// reprice derives a strategy's price index from its value change net of flows.
func (t *Tree) reprice(n *node) {
	if n.notional {
		if t.cfg.nearZero(n.lastNotional) {
			n.price = n.lastPrice

			return
		}

		n.price = n.lastPrice + 100*(n.value-n.lastValue-n.netFlows)/n.lastNotional

		return
	}

	// flows happen after the tick's prices are known, so they earn nothing this tick
	switch {
	case !t.cfg.nearZero(n.lastValue):
		n.price = n.lastPrice * (n.value - n.netFlows) / n.lastValue
	case !t.cfg.nearZero(n.netFlows):
		n.price = n.lastPrice * n.value / n.netFlows
	default:
		n.price = n.lastPrice
	}
}

// revalue re-aggregates from a strategy up to the root after a mutation, without
// touching price indexes.
func (t *Tree) revalue(id NodeID) {
	t.version++

	for {
		n := t.nodes[id]
		t.aggregate(n)

		if id == RootID {
			return
		}

		id = n.parent
	}
}

// note records a recoverable issue on a strategy for the current tick.
func (t *Tree) note(strategy NodeID, code errors.ErrorCode, format string, args ...any) {
	err := errors.Newf(code, format, args...)
	t.notes[strategy] = append(t.notes[strategy], err.Error())

	t.log.Warn("Recovered during tick",
		zap.String("strategy", t.nodes[strategy].path),
		zap.Int("tick", t.cursor),
		zap.Int("code", int(code)),
		zap.String("message", err.Message),
	)
}

// recordError keeps a recoverable error returned by a step.
func (t *Tree) recordError(strategy NodeID, err error) {
	t.notes[strategy] = append(t.notes[strategy], err.Error())

	t.log.Warn("Step error recovered",
		zap.String("strategy", t.nodes[strategy].path),
		zap.Int("tick", t.cursor),
		zap.Error(err),
	)
}

// Run clears each strategy's transient store and runs its pipeline, parents before children.
// Recoverable step errors are recorded as notes; fatal ones are returned.
func (t *Tree) Run() error {
	if t.cursor < 0 {
		return errors.New(errors.ErrCodeNotUpdated, "run called before the first update")
	}

	return t.runStrategy(RootID)
}

func (t *Tree) runStrategy(id NodeID) error {
	n := t.nodes[id]
	n.transient.Reset()

	if n.stack.Len() > 0 {
		if _, err := n.stack.Run(Strategy{Node{t: t, id: id}}); err != nil {
			if errors.IsFatal(err) {
				return err
			}

			t.recordError(id, err)
		}
	}

	for _, child := range n.children {
		if t.nodes[child].isStrategy() {
			if err := t.runStrategy(child); err != nil {
				return err
			}
		}
	}

	return nil
}
