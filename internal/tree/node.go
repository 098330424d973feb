package tree

import (
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Node is a handle to any node of a tree.
type Node struct {
	t  *Tree
	id NodeID
}

// Strategy is a handle to a container node.
type Strategy struct {
	Node
}

// Instrument is a handle to a leaf node.
type Instrument struct {
	Node
}

func (n Node) node() *node {
	return n.t.nodes[n.id]
}

// Valid reports whether the handle points into a tree.
func (n Node) Valid() bool {
	return n.t != nil
}

func (n Node) ID() NodeID {
	return n.id
}

func (n Node) Tree() *Tree {
	return n.t
}

func (n Node) Name() string {
	return n.node().name
}

// Path is the slash separated path from the root.
func (n Node) Path() string {
	return n.node().path
}

// Parent returns the parent strategy. The root is its own parent.
func (n Node) Parent() Strategy {
	return Strategy{Node{t: n.t, id: n.node().parent}}
}

// Root returns the root strategy of the tree.
func (n Node) Root() Strategy {
	return n.t.Root()
}

func (n Node) IsRoot() bool {
	return n.id == RootID
}

func (n Node) IsStrategy() bool {
	return n.node().isStrategy()
}

// IsNotional reports whether the node belongs to a notional tree.
func (n Node) IsNotional() bool {
	return n.node().notional
}

// Price is the market price for instruments and the price index for strategies.
func (n Node) Price() float64 {
	return n.node().price
}

func (n Node) Value() float64 {
	return n.node().value
}

// NotionalValue is the signed exposure of an instrument or the gross exposure of a strategy.
func (n Node) NotionalValue() float64 {
	return n.node().notl
}

// Weight is the node's share of its parent, by value or by notional in notional trees.
func (n Node) Weight() float64 {
	return n.node().weight
}

// Priced is false until the node has seen a valid price.
func (n Node) Priced() bool {
	nd := n.node()
	if nd.isStrategy() {
		return true
	}

	return nd.priced
}

// Stale is true when the current price was carried forward.
func (n Node) Stale() bool {
	return n.node().stale
}

// AsStrategy converts the handle when the node is a strategy.
func (n Node) AsStrategy() (Strategy, bool) {
	if !n.IsStrategy() {
		return Strategy{}, false
	}

	return Strategy{n}, true
}

// AsInstrument converts the handle when the node is an instrument.
func (n Node) AsInstrument() (Instrument, bool) {
	if n.IsStrategy() {
		return Instrument{}, false
	}

	return Instrument{n}, true
}

// Now is the timestamp of the current tick.
func (n Node) Now() time.Time {
	return n.t.Now()
}

// Tick is the index of the current tick.
func (n Node) Tick() int {
	return n.t.cursor
}

func (i Instrument) Symbol() string {
	return i.node().symbol
}

func (i Instrument) Position() float64 {
	return i.node().position
}

func (i Instrument) Multiplier() float64 {
	return i.node().multiplier
}

func (s Strategy) Cash() float64 {
	return s.node().cash
}

// Fees paid by this strategy and its descendants during the current tick.
func (s Strategy) Fees() float64 {
	return s.node().fees
}

// Flows is the external capital moved in or out during the current tick.
func (s Strategy) Flows() float64 {
	return s.node().flows
}

// Children returns the children in declaration order.
func (s Strategy) Children() []Node {
	nd := s.node()
	out := make([]Node, len(nd.children))

	for i, id := range nd.children {
		out[i] = Node{t: s.t, id: id}
	}

	return out
}

// ChildNames returns the child names in declaration order.
func (s Strategy) ChildNames() []string {
	nd := s.node()
	out := make([]string, len(nd.children))

	for i, id := range nd.children {
		out[i] = s.t.nodes[id].name
	}

	return out
}

// Child finds a direct child by name.
func (s Strategy) Child(name string) (Node, bool) {
	id, ok := s.node().byName[name]
	if !ok {
		return Node{}, false
	}

	return Node{t: s.t, id: id}, true
}

// Transient is cleared at the start of every tick.
func (s Strategy) Transient() *Store {
	return s.node().transient
}

// Persistent survives ticks and pipeline changes.
func (s Strategy) Persistent() *Store {
	return s.node().persistent
}

// Stack returns the strategy's pipeline.
func (s Strategy) Stack() *Stack {
	return s.node().stack
}

// SetSteps replaces the pipeline. The persistent store is kept.
func (s Strategy) SetSteps(steps ...Step) error {
	for i, step := range steps {
		if step.Algo == nil {
			return errors.Newf(errors.ErrCodeInvalidNode, "%s step %d has no algo", s.Path(), i)
		}
	}

	s.node().stack = NewStack(steps...)

	return nil
}

// History returns up to lookback prices of symbol ending at the current tick.
func (s Strategy) History(symbol string, lookback int) ([]float64, error) {
	col, ok := s.t.universe.Column(symbol)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnresolvedReference, "unknown symbol %q", symbol)
	}

	if s.t.cursor < 0 {
		return nil, errors.New(errors.ErrCodeNotUpdated, "history requested before the first update")
	}

	return s.t.universe.History(col, s.t.cursor, lookback), nil
}

// Aux returns a named side table of the universe.
func (s Strategy) Aux(name string) (*universe.AuxTable, error) {
	return s.t.universe.Aux(name)
}

// Note records a recoverable issue on this strategy's snapshot for the current tick.
func (s Strategy) Note(code errors.ErrorCode, format string, args ...any) {
	s.t.note(s.id, code, format, args...)
}
