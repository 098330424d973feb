package tree

import (
	"math"

	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtree/internal/utils"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

const (
	// DefaultTolerance is the absolute epsilon used for zero checks.
	DefaultTolerance = 1e-9
	// DefaultInitialPrice is the price index every strategy starts at.
	DefaultInitialPrice = 100.0
)

// Config carries the numeric tolerances and trading switches of one tree.
type Config struct {
	// Tolerance is the epsilon for zero checks. Equality checks scale it by max(1, |x|).
	Tolerance float64
	// Precision is the number of decimals positions are truncated to.
	// 0 means integer positions, utils.FractionalPrecision disables rounding.
	Precision int
	// AllowLeverage lets buys spend more cash than the strategy holds.
	AllowLeverage bool
	// AllowShort lets instrument positions go negative.
	AllowShort bool
	// Fee prices each trade. Nil means no commission.
	Fee commission_fee.CommissionFee
	// InitialPrice is the starting value of every strategy price index.
	InitialPrice float64
}

// DefaultConfig returns a fractional, unlevered, long-only, commission-free configuration.
func DefaultConfig() Config {
	return Config{
		Tolerance:    DefaultTolerance,
		Precision:    utils.FractionalPrecision,
		Fee:          commission_fee.NewZeroCommissionFee(),
		InitialPrice: DefaultInitialPrice,
	}
}

// normalize fills zero values with defaults and rejects unusable settings.
func (c Config) normalize() (Config, error) {
	if c.Tolerance < 0 || math.IsNaN(c.Tolerance) {
		return c, errors.Newf(errors.ErrCodeInvalidConfiguration, "tolerance must be positive, got %v", c.Tolerance)
	}

	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}

	if c.Precision < utils.FractionalPrecision {
		return c, errors.Newf(errors.ErrCodeInvalidConfiguration, "precision must be >= -1, got %d", c.Precision)
	}

	if c.Fee == nil {
		c.Fee = commission_fee.NewZeroCommissionFee()
	}

	if c.InitialPrice == 0 {
		c.InitialPrice = DefaultInitialPrice
	}

	if c.InitialPrice < 0 || math.IsNaN(c.InitialPrice) || math.IsInf(c.InitialPrice, 0) {
		return c, errors.Newf(errors.ErrCodeInvalidConfiguration, "initial price must be positive, got %v", c.InitialPrice)
	}

	return c, nil
}

// nearZero reports |x| <= eps.
func (c Config) nearZero(x float64) bool {
	return math.Abs(x) <= c.Tolerance
}

// tol scales the tolerance to the magnitude of x.
func (c Config) tol(x float64) float64 {
	return c.Tolerance * math.Max(1, math.Abs(x))
}
