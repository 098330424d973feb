package algos

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Factory builds a step from its declared parameters. The registry is passed along so
// combinators can build the steps they wrap.
type Factory func(params Params, registry Registry) (tree.Algo, error)

// Registry maps algo names used in strategy definitions to factories.
type Registry interface {
	Register(name string, factory Factory) error
	Create(name string, params Params) (tree.Algo, error)
	List() []string
	Remove(name string) error
}

// RegistryV1 is the default Registry.
type RegistryV1 struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return &RegistryV1{
		factories: make(map[string]Factory),
		mu:        sync.RWMutex{},
	}
}

// DefaultRegistry creates a registry holding every built-in step.
func DefaultRegistry() Registry {
	r := NewRegistry()

	for name, factory := range builtins() {
		// names in builtins are unique
		_ = r.Register(name, factory)
	}

	return r
}

// Register adds a factory under name.
func (r *RegistryV1) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || factory == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "algo registration needs a name and a factory")
	}

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeAlgoAlreadyExists, "algo %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Create builds a new step instance.
func (r *RegistryV1) Create(name string, params Params) (tree.Algo, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnknownAlgo, "algo %s not found", name)
	}

	if params == nil {
		params = Params{}
	}

	algo, err := factory(params, r)
	if err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "create %s", name)
	}

	return algo, nil
}

// List returns the registered names in sorted order.
func (r *RegistryV1) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Remove drops a factory.
func (r *RegistryV1) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return errors.Newf(errors.ErrCodeUnknownAlgo, "algo %s not found", name)
	}

	delete(r.factories, name)

	return nil
}

func builtins() map[string]Factory {
	return map[string]Factory{
		"run_once":         func(Params, Registry) (tree.Algo, error) { return NewRunOnce(), nil },
		"run_daily":        periodFactory(PeriodDay),
		"run_weekly":       periodFactory(PeriodWeek),
		"run_monthly":      periodFactory(PeriodMonth),
		"run_quarterly":    periodFactory(PeriodQuarter),
		"run_yearly":       periodFactory(PeriodYear),
		"run_period":       createRunPeriod,
		"run_every_n":      createRunEveryN,
		"run_after_date":   createRunAfterDate,
		"run_after_ticks":  createRunAfterTicks,
		"select_all":       createSelectAll,
		"select_these":     createSelectThese,
		"select_where":     createSelectWhere,
		"select_momentum":  createSelectMomentum,
		"weigh_equally":    func(Params, Registry) (tree.Algo, error) { return NewWeighEqually(), nil },
		"weigh_specified":  createWeighSpecified,
		"weigh_inv_vol":    createWeighInvVol,
		"limit_weights":    createLimitWeights,
		"set_cash_reserve": createSetCashReserve,
		"set_notional":     createSetNotional,
		"capital_flow":     createCapitalFlow,
		"rebalance":        func(Params, Registry) (tree.Algo, error) { return NewRebalance(), nil },
		"record":           func(Params, Registry) (tree.Algo, error) { return NewRecord(), nil },
		"require_selected": func(Params, Registry) (tree.Algo, error) { return RequireSelected(), nil },
		"not":              createNot,
		"or":               createOr,
	}
}

func periodFactory(period Period) Factory {
	return func(p Params, _ Registry) (tree.Algo, error) {
		return runPeriodWithOptions(period, p)
	}
}

func createRunPeriod(p Params, _ Registry) (tree.Algo, error) {
	period, err := p.String("period")
	if err != nil {
		return nil, err
	}

	return runPeriodWithOptions(Period(period), p)
}

func runPeriodWithOptions(period Period, p Params) (tree.Algo, error) {
	algo, err := NewRunPeriod(period)
	if err != nil {
		return nil, err
	}

	if algo.RunOnFirst, err = p.BoolOr("run_on_first", true); err != nil {
		return nil, err
	}

	if algo.RunOnEnd, err = p.BoolOr("run_on_end", false); err != nil {
		return nil, err
	}

	return algo, nil
}

func createRunEveryN(p Params, _ Registry) (tree.Algo, error) {
	n, err := p.Int("n")
	if err != nil {
		return nil, err
	}

	offset, err := p.IntOr("offset", 0)
	if err != nil {
		return nil, err
	}

	return NewRunEveryN(n, offset)
}

func createRunAfterDate(p Params, _ Registry) (tree.Algo, error) {
	date, err := p.Time("date")
	if err != nil {
		return nil, err
	}

	return NewRunAfterDate(date), nil
}

func createRunAfterTicks(p Params, _ Registry) (tree.Algo, error) {
	n, err := p.Int("ticks")
	if err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "ticks must not be negative, got %d", n)
	}

	return NewRunAfterTicks(n), nil
}

func createSelectAll(p Params, _ Registry) (tree.Algo, error) {
	includeNoData, err := p.BoolOr("include_no_data", false)
	if err != nil {
		return nil, err
	}

	return NewSelectAll(includeNoData), nil
}

func createSelectThese(p Params, _ Registry) (tree.Algo, error) {
	names, err := p.Strings("names")
	if err != nil {
		return nil, err
	}

	includeNoData, err := p.BoolOr("include_no_data", false)
	if err != nil {
		return nil, err
	}

	return NewSelectThese(names, includeNoData), nil
}

func createSelectWhere(p Params, _ Registry) (tree.Algo, error) {
	expression, err := p.String("expression")
	if err != nil {
		return nil, err
	}

	return NewSelectWhere(expression)
}

func createSelectMomentum(p Params, _ Registry) (tree.Algo, error) {
	n, err := p.Int("n")
	if err != nil {
		return nil, err
	}

	lookback, err := p.Int("lookback")
	if err != nil {
		return nil, err
	}

	return NewSelectMomentum(n, lookback)
}

func createWeighSpecified(p Params, _ Registry) (tree.Algo, error) {
	weights, err := p.FloatMap("weights")
	if err != nil {
		return nil, err
	}

	return NewWeighSpecified(weights)
}

func createWeighInvVol(p Params, _ Registry) (tree.Algo, error) {
	lookback, err := p.Int("lookback")
	if err != nil {
		return nil, err
	}

	return NewWeighInvVol(lookback)
}

func createLimitWeights(p Params, _ Registry) (tree.Algo, error) {
	limit, err := p.Float("limit")
	if err != nil {
		return nil, err
	}

	return NewLimitWeights(limit)
}

// nested reads an {algo, params} block.
func nested(p Params, registry Registry) (tree.Algo, error) {
	name, err := p.String("algo")
	if err != nil {
		return nil, err
	}

	params, err := p.Params("params")
	if err != nil {
		return nil, err
	}

	return registry.Create(name, params)
}

func createSetCashReserve(p Params, _ Registry) (tree.Algo, error) {
	fraction, err := p.Float("fraction")
	if err != nil {
		return nil, err
	}

	return NewSetCashReserve(fraction)
}

func createSetNotional(p Params, _ Registry) (tree.Algo, error) {
	value, err := p.Float("value")
	if err != nil {
		return nil, err
	}

	return NewSetNotional(value)
}

func createCapitalFlow(p Params, _ Registry) (tree.Algo, error) {
	amount, err := p.Float("amount")
	if err != nil {
		return nil, err
	}

	return NewCapitalFlow(amount), nil
}

func createNot(p Params, registry Registry) (tree.Algo, error) {
	inner, err := nested(p, registry)
	if err != nil {
		return nil, err
	}

	return NewNot(inner), nil
}

func createOr(p Params, registry Registry) (tree.Algo, error) {
	blocks, err := p.ParamsList("algos")
	if err != nil {
		return nil, err
	}

	if len(blocks) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "or needs at least one algo")
	}

	algos := make([]tree.Algo, len(blocks))

	for i, block := range blocks {
		algo, err := nested(block, registry)
		if err != nil {
			return nil, err
		}

		algos[i] = algo
	}

	return NewOr(algos...), nil
}
