package utils

import (
	"testing"

	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsTestSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func (suite *UtilsTestSuite) TestRoundQuantity() {
	tests := []struct {
		name      string
		quantity  float64
		precision int
		expected  float64
	}{
		{"integer mode truncates", 3.3333, 0, 3},
		{"integer mode truncates toward zero for sells", -3.9, 0, -3},
		{"two decimals", 1.23999, 2, 1.23},
		{"float noise is absorbed", 0.3 / 0.1, 0, 3},
		{"fractional mode untouched", 3.3333, FractionalPrecision, 3.3333},
		{"zero", 0, 0, 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.InDelta(tc.expected, RoundQuantity(tc.quantity, tc.precision), 1e-12)
		})
	}
}

func (suite *UtilsTestSuite) TestLotSize() {
	suite.Equal(0.0, LotSize(FractionalPrecision))
	suite.Equal(1.0, LotSize(0))
	suite.InDelta(0.01, LotSize(2), 1e-15)
}

func (suite *UtilsTestSuite) TestCalculateMaxQuantity() {
	tests := []struct {
		name          string
		balance       float64
		price         float64
		multiplier    float64
		commissionFee commission_fee.CommissionFee
		expectedQty   float64
	}{
		{"no commission", 1000.0, 100.0, 1, commission_fee.NewZeroCommissionFee(), 10},
		{"multiplier", 1000.0, 100.0, 2, commission_fee.NewZeroCommissionFee(), 5},
		{"zero balance", 0.0, 100.0, 1, commission_fee.NewInteractiveBrokerCommissionFee(), 0},
		{"zero price", 1000.0, 0.0, 1, commission_fee.NewInteractiveBrokerCommissionFee(), 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			qty := CalculateMaxQuantity(tc.balance, tc.price, tc.multiplier, tc.commissionFee)
			suite.InDelta(tc.expectedQty, qty, 1e-9)
		})
	}
}

func (suite *UtilsTestSuite) TestCalculateMaxQuantityWithFeeStaysAffordable() {
	fee := commission_fee.NewInteractiveBrokerCommissionFee()
	qty := CalculateMaxQuantity(1000, 100, 1, fee)
	suite.Less(qty, 10.0)
	suite.LessOrEqual(qty*100+fee.Calculate(qty, 100), 1000.0)
}

func (suite *UtilsTestSuite) TestCalculateMaxAffordableQuantity() {
	tests := []struct {
		name          string
		balance       float64
		price         float64
		precision     int
		commissionFee commission_fee.CommissionFee
		expectedQty   float64
	}{
		{"integer no commission", 100, 30, 0, commission_fee.NewZeroCommissionFee(), 3},
		{"integer with minimum fee", 1000, 100, 0, commission_fee.NewInteractiveBrokerCommissionFee(), 9},
		{"balance below one lot", 50, 100, 0, commission_fee.NewZeroCommissionFee(), 0},
		{"fee larger than balance", 0.5, 0.1, 0, commission_fee.NewInteractiveBrokerCommissionFee(), 0},
		{"two decimals", 100, 30, 2, commission_fee.NewZeroCommissionFee(), 3.33},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			qty := CalculateMaxAffordableQuantity(tc.balance, tc.price, 1, tc.precision, 1e-9, tc.commissionFee)
			suite.InDelta(tc.expectedQty, qty, 1e-9)
		})
	}
}

func (suite *UtilsTestSuite) TestCalculateMaxAffordableQuantityFractional() {
	fee := commission_fee.NewPercentageCommissionFee(0.01)
	qty := CalculateMaxAffordableQuantity(101, 10, 1, FractionalPrecision, 1e-9, fee)
	suite.InDelta(10.0, qty, 1e-6)
	suite.LessOrEqual(qty*10+fee.Calculate(qty, 10), 101+1e-9)
}
