package algos

import (
	"math"
	"sort"

	"github.com/maja42/goval"
	"github.com/montanaflynn/stats"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// hasData reports whether a child has a usable price at the current tick.
func hasData(n tree.Node) bool {
	if n.IsStrategy() {
		return true
	}

	return n.Priced() && !n.Stale()
}

// SelectAll selects every child with a current price.
type SelectAll struct {
	// IncludeNoData also selects children that are unpriced or stale.
	IncludeNoData bool
}

func NewSelectAll(includeNoData bool) *SelectAll {
	return &SelectAll{IncludeNoData: includeNoData}
}

func (a *SelectAll) Name() string {
	return "select_all"
}

func (a *SelectAll) Evaluate(s tree.Strategy) (bool, error) {
	var selected []string

	for _, child := range s.Children() {
		if a.IncludeNoData || hasData(child) {
			selected = append(selected, child.Name())
		}
	}

	s.Transient().Selected = optional.Some(selected)

	return true, nil
}

// SelectThese selects a fixed list of children.
type SelectThese struct {
	names         []string
	IncludeNoData bool
}

func NewSelectThese(names []string, includeNoData bool) *SelectThese {
	return &SelectThese{names: append([]string(nil), names...), IncludeNoData: includeNoData}
}

func (a *SelectThese) Name() string {
	return "select_these"
}

func (a *SelectThese) Evaluate(s tree.Strategy) (bool, error) {
	selected := make([]string, 0, len(a.names))

	for _, name := range a.names {
		child, ok := s.Child(name)
		if !ok {
			return false, errors.Newf(errors.ErrCodeUnknownChild, "%s has no child %s", s.Path(), name)
		}

		if a.IncludeNoData || hasData(child) {
			selected = append(selected, name)
		}
	}

	s.Transient().Selected = optional.Some(selected)

	return true, nil
}

// SelectWhere keeps the candidates for which a boolean expression holds. The expression
// sees the child's name, symbol, price, value, weight, position and the current tick, and can
// call aux(table), sma(n), ret(n) and vol(n) on the child's price history.
//
//	price > sma(50) && aux("signal") > 0
type SelectWhere struct {
	expression string
}

func NewSelectWhere(expression string) (*SelectWhere, error) {
	if expression == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "select where needs an expression")
	}

	return &SelectWhere{expression: expression}, nil
}

func (a *SelectWhere) Name() string {
	return "select_where"
}

func (a *SelectWhere) Evaluate(s tree.Strategy) (bool, error) {
	eval := goval.NewEvaluator()

	var selected []string

	for _, name := range candidates(s) {
		child, ok := s.Child(name)
		if !ok {
			continue
		}

		variables := map[string]interface{}{
			"name":     name,
			"symbol":   "",
			"price":    child.Price(),
			"value":    child.Value(),
			"weight":   child.Weight(),
			"position": 0.0,
			"tick":     s.Tick(),
		}

		if inst, ok := child.AsInstrument(); ok {
			variables["symbol"] = inst.Symbol()
			variables["position"] = inst.Position()
		}

		result, err := eval.Evaluate(a.expression, variables, expressionFunctions(s, name))
		if err != nil {
			return false, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to evaluate %q for %s", a.expression, name)
		}

		keep, ok := result.(bool)
		if !ok {
			return false, errors.Newf(errors.ErrCodeInvalidType, "expression %q returned %T, want bool", a.expression, result)
		}

		if keep {
			selected = append(selected, name)
		}
	}

	s.Transient().Selected = optional.Some(selected)

	return true, nil
}

func expressionFunctions(s tree.Strategy, name string) map[string]goval.ExpressionFunction {
	window := func(fn string, args []interface{}) ([]float64, error) {
		if len(args) != 1 {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "%s needs 1 arg, got %d", fn, len(args))
		}

		n, ok := args[0].(int)
		if !ok || n <= 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "%s needs a positive integer, got %v", fn, args[0])
		}

		symbol, ok := historySymbol(s, name)
		if !ok {
			return nil, nil
		}

		prices, err := s.History(symbol, n)
		if err != nil {
			return nil, err
		}

		if len(prices) < n {
			return nil, nil
		}

		return prices, nil
	}

	return map[string]goval.ExpressionFunction{
		"aux": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, errors.Newf(errors.ErrCodeInvalidParameter, "aux needs 1 arg, got %d", len(args))
			}

			table, ok := args[0].(string)
			if !ok {
				return nil, errors.Newf(errors.ErrCodeInvalidParameter, "aux needs a table name, got %v", args[0])
			}

			aux, err := s.Aux(table)
			if err != nil {
				return nil, err
			}

			column := name
			if symbol, ok := historySymbol(s, name); ok {
				column = symbol
			}

			return aux.Value(s.Tick(), column), nil
		},
		"sma": func(args ...interface{}) (interface{}, error) {
			prices, err := window("sma", args)
			if err != nil || prices == nil {
				return math.NaN(), err
			}

			mean, err := stats.Mean(prices)
			if err != nil {
				return math.NaN(), nil
			}

			return mean, nil
		},
		"ret": func(args ...interface{}) (interface{}, error) {
			prices, err := window("ret", args)
			if err != nil || prices == nil {
				return math.NaN(), err
			}

			return totalReturn(prices), nil
		},
		"vol": func(args ...interface{}) (interface{}, error) {
			prices, err := window("vol", args)
			if err != nil || prices == nil {
				return math.NaN(), err
			}

			return volatility(prices), nil
		},
	}
}

// totalReturn is last/first - 1, NaN when either end is missing.
func totalReturn(prices []float64) float64 {
	if len(prices) < 2 {
		return math.NaN()
	}

	first, last := prices[0], prices[len(prices)-1]
	if math.IsNaN(first) || math.IsNaN(last) || first == 0 {
		return math.NaN()
	}

	return last/first - 1
}

// returns converts a price window into simple returns, skipping gaps.
func returns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))

	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
			continue
		}

		out = append(out, cur/prev-1)
	}

	return out
}

// volatility is the sample standard deviation of simple returns, NaN with fewer than two.
func volatility(prices []float64) float64 {
	r := returns(prices)
	if len(r) < 2 {
		return math.NaN()
	}

	sd, err := stats.StandardDeviationSample(r)
	if err != nil {
		return math.NaN()
	}

	return sd
}

// SelectMomentum keeps the n candidates with the highest total return over lookback ticks.
type SelectMomentum struct {
	n        int
	lookback int
}

func NewSelectMomentum(n int, lookback int) (*SelectMomentum, error) {
	if n <= 0 || lookback <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "select momentum needs n > 0 and lookback > 0, got %d and %d", n, lookback)
	}

	return &SelectMomentum{n: n, lookback: lookback}, nil
}

func (a *SelectMomentum) Name() string {
	return "select_momentum"
}

func (a *SelectMomentum) Evaluate(s tree.Strategy) (bool, error) {
	type scored struct {
		name  string
		score float64
	}

	var ranked []scored

	for _, name := range candidates(s) {
		symbol, ok := historySymbol(s, name)
		if !ok {
			continue
		}

		prices, err := s.History(symbol, a.lookback+1)
		if err != nil {
			return false, err
		}

		if len(prices) < a.lookback+1 {
			continue
		}

		score := totalReturn(prices)
		if math.IsNaN(score) {
			continue
		}

		ranked = append(ranked, scored{name: name, score: score})
	}

	if len(ranked) == 0 {
		s.Note(errors.ErrCodeInsufficientData, "no candidate has %d ticks of history", a.lookback+1)

		return false, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}

		return ranked[i].name < ranked[j].name
	})

	if len(ranked) > a.n {
		ranked = ranked[:a.n]
	}

	selected := make([]string, len(ranked))
	for i, r := range ranked {
		selected[i] = r.name
	}

	s.Transient().Selected = optional.Some(selected)

	return true, nil
}
