package algos

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// SetCashReserve keeps a fraction of the strategy value out of the next rebalance.
type SetCashReserve struct {
	fraction float64
}

func NewSetCashReserve(fraction float64) (*SetCashReserve, error) {
	if fraction < 0 || fraction >= 1 || math.IsNaN(fraction) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "cash reserve must be in [0, 1), got %v", fraction)
	}

	return &SetCashReserve{fraction: fraction}, nil
}

func (a *SetCashReserve) Name() string {
	return "set_cash_reserve"
}

func (a *SetCashReserve) Evaluate(s tree.Strategy) (bool, error) {
	s.Transient().CashReserve = optional.Some(a.fraction)

	return true, nil
}

// SetNotional sets the gross exposure the next rebalance targets in a notional tree.
type SetNotional struct {
	value float64
}

func NewSetNotional(value float64) (*SetNotional, error) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "notional value must be a non-negative number, got %v", value)
	}

	return &SetNotional{value: value}, nil
}

func (a *SetNotional) Name() string {
	return "set_notional"
}

func (a *SetNotional) Evaluate(s tree.Strategy) (bool, error) {
	if !s.IsNotional() {
		return false, errors.Newf(errors.ErrCodeNotionalUnsupported, "%s is not a notional strategy", s.Path())
	}

	s.Transient().NotionalValue = optional.Some(a.value)

	return true, nil
}

// CapitalFlow deposits (or withdraws, when negative) external capital each time it runs.
// The flow is excluded from the price index.
type CapitalFlow struct {
	amount float64
}

func NewCapitalFlow(amount float64) *CapitalFlow {
	return &CapitalFlow{amount: amount}
}

func (a *CapitalFlow) Name() string {
	return "capital_flow"
}

func (a *CapitalFlow) Evaluate(s tree.Strategy) (bool, error) {
	s.Adjust(a.amount, true)

	return true, nil
}
