package tree

import (
	"strings"

	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

// Valuation selects how a node is valued.
type Valuation int

const (
	// ValuationInherit takes the parent's valuation. At the root it means market.
	ValuationInherit Valuation = iota
	// ValuationMarket values instruments at position*price*multiplier.
	ValuationMarket
	// ValuationNotional accumulates additive PnL and targets notional exposure.
	ValuationNotional
)

func (v Valuation) String() string {
	switch v {
	case ValuationMarket:
		return "market"
	case ValuationNotional:
		return "notional"
	default:
		return "inherit"
	}
}

// NodeSpec is a declared node that has not been resolved against a universe yet.
type NodeSpec interface {
	specName() string
}

// StrategySpec declares a container node.
type StrategySpec struct {
	Name      string
	Valuation Valuation
	Steps     []Step
	// Children in declaration order. A strategy declared without children receives
	// every universe column as an instrument.
	Children []NodeSpec
}

// InstrumentSpec declares a leaf referencing a universe column.
type InstrumentSpec struct {
	// Name defaults to Symbol.
	Name   string
	Symbol string
	// Multiplier defaults to 1. In notional trees it is the notional per unit.
	Multiplier float64
	Valuation  Valuation
}

// NewStrategy declares a strategy.
func NewStrategy(name string, children ...NodeSpec) *StrategySpec {
	return &StrategySpec{Name: name, Children: children}
}

// WithSteps sets the strategy's pipeline.
func (s *StrategySpec) WithSteps(steps ...Step) *StrategySpec {
	s.Steps = steps

	return s
}

// WithValuation sets an explicit valuation.
func (s *StrategySpec) WithValuation(v Valuation) *StrategySpec {
	s.Valuation = v

	return s
}

func (s *StrategySpec) specName() string {
	return s.Name
}

// NewInstrument declares an instrument on symbol.
func NewInstrument(symbol string) *InstrumentSpec {
	return &InstrumentSpec{Symbol: symbol}
}

// Ref is a bare symbol reference, resolved against the universe at build time.
func Ref(symbol string) *InstrumentSpec {
	return NewInstrument(symbol)
}

// WithName sets a node name different from the symbol.
func (i *InstrumentSpec) WithName(name string) *InstrumentSpec {
	i.Name = name

	return i
}

// WithMultiplier sets the contract multiplier.
func (i *InstrumentSpec) WithMultiplier(multiplier float64) *InstrumentSpec {
	i.Multiplier = multiplier

	return i
}

// WithValuation sets an explicit valuation.
func (i *InstrumentSpec) WithValuation(v Valuation) *InstrumentSpec {
	i.Valuation = v

	return i
}

func (i *InstrumentSpec) specName() string {
	if i.Name != "" {
		return i.Name
	}

	return i.Symbol
}

// Build resolves a declared tree against a universe and freezes it.
// Every structural problem is returned as a configuration error before any tick runs.
func Build(spec *StrategySpec, u *universe.Universe, cfg Config, log *logger.Logger) (*Tree, error) {
	if spec == nil {
		return nil, errors.New(errors.ErrCodeInvalidNode, "root strategy is nil")
	}

	if u == nil {
		return nil, errors.New(errors.ErrCodeEmptyUniverse, "universe is nil")
	}

	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	t := &Tree{
		cfg:      cfg,
		log:      log,
		universe: u,
		cursor:   -1,
		notes:    make(map[NodeID][]string),
	}

	notional := spec.Valuation == ValuationNotional
	if _, err := t.addStrategy(spec, RootID, "", notional); err != nil {
		return nil, err
	}

	t.log.Debug("Tree built",
		zap.String("root", spec.Name),
		zap.Int("nodes", len(t.nodes)),
		zap.Bool("notional", notional),
	)

	return t, nil
}

func validateName(name string, path string) error {
	if name == "" {
		return errors.Newf(errors.ErrCodeInvalidNode, "node under %q has an empty name", path)
	}

	if strings.Contains(name, "/") {
		return errors.Newf(errors.ErrCodeInvalidNode, "node name %q must not contain '/'", name)
	}

	return nil
}

func checkValuation(declared Valuation, notional bool, path string) error {
	if declared == ValuationInherit {
		return nil
	}

	if (declared == ValuationNotional) != notional {
		inherited := ValuationMarket
		if notional {
			inherited = ValuationNotional
		}

		return errors.Newf(errors.ErrCodeMixedValuation,
			"%s is declared %s inside a %s tree", path, declared, inherited)
	}

	return nil
}

func (t *Tree) addStrategy(spec *StrategySpec, parent NodeID, parentPath string, notional bool) (NodeID, error) {
	if err := validateName(spec.Name, parentPath); err != nil {
		return 0, err
	}

	path := joinPath(parentPath, spec.Name)
	if err := checkValuation(spec.Valuation, notional, path); err != nil {
		return 0, err
	}

	for i, step := range spec.Steps {
		if step.Algo == nil {
			return 0, errors.Newf(errors.ErrCodeInvalidNode, "%s step %d has no algo", path, i)
		}
	}

	id := NodeID(len(t.nodes))
	if id == RootID {
		parent = RootID
	}

	n := &node{
		id:         id,
		name:       spec.Name,
		path:       path,
		kind:       kindStrategy,
		parent:     parent,
		byName:     make(map[string]NodeID),
		notional:   notional,
		price:      t.cfg.InitialPrice,
		lastPrice:  t.cfg.InitialPrice,
		transient:  NewStore(),
		persistent: NewStore(),
		stack:      NewStack(spec.Steps...),
		notedAt:    -1,
	}
	t.nodes = append(t.nodes, n)

	children := spec.Children
	if len(children) == 0 {
		for _, column := range t.universe.Columns() {
			children = append(children, Ref(column))
		}
	}

	for _, child := range children {
		if child == nil {
			return 0, errors.Newf(errors.ErrCodeInvalidNode, "%s has a nil child", path)
		}

		name := child.specName()
		if _, exists := n.byName[name]; exists {
			return 0, errors.Newf(errors.ErrCodeDuplicateNode, "%s has duplicate child %q", path, name)
		}

		var (
			childID NodeID
			err     error
		)

		switch c := child.(type) {
		case *StrategySpec:
			childID, err = t.addStrategy(c, id, path, notional)
		case *InstrumentSpec:
			childID, err = t.addInstrument(c, id, path, notional)
		default:
			err = errors.Newf(errors.ErrCodeInvalidNode, "%s has an unsupported child %T", path, child)
		}

		if err != nil {
			return 0, err
		}

		n.byName[name] = childID
		n.children = append(n.children, childID)
	}

	return id, nil
}

func (t *Tree) addInstrument(spec *InstrumentSpec, parent NodeID, parentPath string, notional bool) (NodeID, error) {
	name := spec.specName()
	if err := validateName(name, parentPath); err != nil {
		return 0, err
	}

	path := joinPath(parentPath, name)
	if err := checkValuation(spec.Valuation, notional, path); err != nil {
		return 0, err
	}

	column, ok := t.universe.Column(spec.Symbol)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeUnresolvedReference, "%s references unknown symbol %q", path, spec.Symbol)
	}

	multiplier := spec.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}

	if multiplier < 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidNode, "%s has negative multiplier %v", path, multiplier)
	}

	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &node{
		id:         id,
		name:       name,
		path:       path,
		kind:       kindInstrument,
		parent:     parent,
		notional:   notional,
		symbol:     spec.Symbol,
		column:     column,
		multiplier: multiplier,
		notedAt:    -1,
	})

	return id, nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}
