package commission_fee

import "github.com/shopspring/decimal"

// PercentageCommissionFee charges a fraction of the traded value.
type PercentageCommissionFee struct {
	rate decimal.Decimal
}

// NewPercentageCommissionFee creates a fee model charging rate (0.001 = 10bps) of quantity*price.
func NewPercentageCommissionFee(rate float64) CommissionFee {
	return &PercentageCommissionFee{
		rate: decimal.NewFromFloat(rate),
	}
}

func (c *PercentageCommissionFee) Calculate(quantity float64, price float64) float64 {
	traded := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Abs()
	fee, _ := traded.Mul(c.rate).Float64()

	return fee
}
