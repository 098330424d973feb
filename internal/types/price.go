package types

// PriceRow is one observation of the long-format price table: a close price for one symbol at one time.
type PriceRow struct {
	Time   Timestamp `csv:"time" json:"time" yaml:"time"`
	Symbol string    `csv:"symbol" json:"symbol" yaml:"symbol"`
	Close  float64   `csv:"close" json:"close" yaml:"close"`
}
