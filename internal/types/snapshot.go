package types

import "time"

// Snapshot is the recorded state of one strategy node after a tick.
type Snapshot struct {
	// Tick is the position of the row in the time index.
	Tick int `yaml:"tick" json:"tick"`
	// Time is the timestamp of the tick.
	Time time.Time `yaml:"time" json:"time"`
	// Strategy is the slash separated path of the strategy node, e.g. "root/equity".
	Strategy string `yaml:"strategy" json:"strategy"`
	// Price is the strategy's synthetic price index, starting at 100.
	Price float64 `yaml:"price" json:"price"`
	// Value is cash plus the value of all children.
	Value float64 `yaml:"value" json:"value"`
	// NotionalValue is the gross exposure of the strategy's children.
	NotionalValue float64 `yaml:"notional_value" json:"notional_value"`
	Cash          float64 `yaml:"cash" json:"cash"`
	// Fees paid during this tick.
	Fees float64 `yaml:"fees" json:"fees"`
	// Flows is the external capital added (positive) or removed (negative) during this tick.
	Flows float64 `yaml:"flows" json:"flows"`
	// Notes holds recoverable data and allocation issues recorded during the tick.
	Notes []string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// PositionSnapshot is the recorded state of one instrument after a tick.
type PositionSnapshot struct {
	Tick       int       `yaml:"tick" json:"tick"`
	Time       time.Time `yaml:"time" json:"time"`
	Strategy   string    `yaml:"strategy" json:"strategy"`
	Instrument string    `yaml:"instrument" json:"instrument"`
	Symbol     string    `yaml:"symbol" json:"symbol"`
	Position   float64   `yaml:"position" json:"position"`
	Price      float64   `yaml:"price" json:"price"`
	Value      float64   `yaml:"value" json:"value"`
	Weight     float64   `yaml:"weight" json:"weight"`
	// Stale is true when Price was carried forward from an earlier tick.
	Stale bool `yaml:"stale" json:"stale"`
}
