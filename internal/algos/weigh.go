package algos

import (
	"math"
	"sort"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// WeighEqually gives every selected child the same weight.
type WeighEqually struct{}

func NewWeighEqually() *WeighEqually {
	return &WeighEqually{}
}

func (a *WeighEqually) Name() string {
	return "weigh_equally"
}

func (a *WeighEqually) Evaluate(s tree.Strategy) (bool, error) {
	selected := candidates(s)
	weights := make(map[string]float64, len(selected))

	for _, name := range selected {
		weights[name] = 1 / float64(len(selected))
	}

	s.Transient().Weights = optional.Some(weights)

	return true, nil
}

// WeighSpecified sets fixed weights regardless of the selection.
type WeighSpecified struct {
	weights map[string]float64
}

func NewWeighSpecified(weights map[string]float64) (*WeighSpecified, error) {
	copied := make(map[string]float64, len(weights))

	for name, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "weight of %s is not finite", name)
		}

		copied[name] = w
	}

	return &WeighSpecified{weights: copied}, nil
}

func (a *WeighSpecified) Name() string {
	return "weigh_specified"
}

func (a *WeighSpecified) Evaluate(s tree.Strategy) (bool, error) {
	weights := make(map[string]float64, len(a.weights))
	for name, w := range a.weights {
		weights[name] = w
	}

	s.Transient().Weights = optional.Some(weights)

	return true, nil
}

// WeighInvVol weighs the selected instruments by the inverse of their return volatility
// over lookback ticks. Candidates without enough history get no weight.
type WeighInvVol struct {
	lookback int
}

func NewWeighInvVol(lookback int) (*WeighInvVol, error) {
	if lookback < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "inverse volatility needs a lookback of at least 2, got %d", lookback)
	}

	return &WeighInvVol{lookback: lookback}, nil
}

func (a *WeighInvVol) Name() string {
	return "weigh_inv_vol"
}

func (a *WeighInvVol) Evaluate(s tree.Strategy) (bool, error) {
	inverse := make(map[string]float64)
	total := 0.0

	var skipped []string

	for _, name := range candidates(s) {
		symbol, ok := historySymbol(s, name)
		if !ok {
			skipped = append(skipped, name)

			continue
		}

		prices, err := s.History(symbol, a.lookback+1)
		if err != nil {
			return false, err
		}

		vol := volatility(prices)
		if math.IsNaN(vol) || vol <= 0 {
			skipped = append(skipped, name)

			continue
		}

		inverse[name] = 1 / vol
		total += 1 / vol
	}

	if len(inverse) == 0 {
		cause := errors.NewInsufficientDataErrorf(a.lookback+1, s.Tick()+1, "",
			"need %d ticks of history to estimate volatility", a.lookback+1)

		return false, errors.Wrap(errors.ErrCodeInsufficientData, "no candidate has a volatility estimate", cause)
	}

	if len(skipped) > 0 {
		sort.Strings(skipped)
		s.Note(errors.ErrCodeInsufficientData, "no volatility estimate for %v", skipped)
	}

	weights := make(map[string]float64, len(inverse))
	for name, inv := range inverse {
		weights[name] = inv / total
	}

	s.Transient().Weights = optional.Some(weights)

	return true, nil
}

// LimitWeights caps every target weight at limit and hands the excess to the
// uncapped weights in proportion to their size.
type LimitWeights struct {
	limit float64
}

func NewLimitWeights(limit float64) (*LimitWeights, error) {
	if limit <= 0 || limit > 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "weight limit must be in (0, 1], got %v", limit)
	}

	return &LimitWeights{limit: limit}, nil
}

func (a *LimitWeights) Name() string {
	return "limit_weights"
}

func (a *LimitWeights) Evaluate(s tree.Strategy) (bool, error) {
	if s.Transient().Weights.IsNone() {
		return true, nil
	}

	weights := limitWeights(s.Transient().Weights.Unwrap(), a.limit)
	if weights == nil {
		s.Note(errors.ErrCodeInvalidParameter, "limit %v is too low to place the full weight, capping each child", a.limit)

		weights = make(map[string]float64)
		for name, w := range s.Transient().Weights.Unwrap() {
			weights[name] = math.Min(w, a.limit)
		}
	}

	s.Transient().Weights = optional.Some(weights)

	return true, nil
}

// limitWeights returns nil when the total cannot fit under the limit.
func limitWeights(weights map[string]float64, limit float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	total := 0.0

	for name, w := range weights {
		out[name] = w
		total += w
	}

	if total > limit*float64(len(weights))+1e-12 {
		return nil
	}

	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}

	sort.Strings(names)

	for range names {
		excess := 0.0
		free := 0.0

		for _, name := range names {
			if out[name] > limit {
				excess += out[name] - limit
				out[name] = limit
			} else if out[name] < limit {
				free += out[name]
			}
		}

		if excess <= 1e-12 || free <= 0 {
			break
		}

		for _, name := range names {
			if out[name] < limit {
				out[name] += excess * out[name] / free
			}
		}
	}

	return out
}
