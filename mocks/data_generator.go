package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/types"
)

// DataGenerator generates synthetic close prices for tests and benchmarks.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how prices are generated.
type GeneratorConfig struct {
	// Symbol is the column name (e.g., "SPY", "AGG")
	Symbol string
	// StartTime is the first tick
	StartTime time.Time
	// Interval is the duration between ticks
	Interval time.Duration
	// Count is the number of ticks to generate
	Count int
	// InitialPrice is the starting close
	InitialPrice float64
	// Volatility is the per-tick standard deviation of returns (0.01 = 1%)
	Volatility float64
	// Trend is the total drift spread across the series
	Trend float64
	// GapProbability is the chance that a tick has no price (0.0 to 1.0)
	GapProbability float64
}

// DefaultConfig returns one year of daily closes.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:       "TEST",
		StartTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:     24 * time.Hour,
		Count:        252,
		InitialPrice: 100.0,
		Volatility:   0.01,
		Trend:        0.0,
	}
}

// Generate creates a price series following geometric Brownian motion.
// Gaps are emitted as NaN closes so the universe keeps the tick.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.PriceRow {
	rows := make([]types.PriceRow, config.Count)
	price := config.InitialPrice
	current := config.StartTime

	for i := 0; i < config.Count; i++ {
		// Box-Muller transform for a standard normal draw
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		next := price * (1 + config.Volatility*z + drift)
		if next <= 0 {
			next = price * 0.99
		}

		close := roundToDecimals(next, 4)
		if config.GapProbability > 0 && g.rng.Float64() < config.GapProbability {
			close = math.NaN()
		}

		rows[i] = types.PriceRow{
			Time:   types.NewTimestamp(current),
			Symbol: config.Symbol,
			Close:  close,
		}

		price = next
		current = current.Add(config.Interval)
	}

	return rows
}

// GenerateMultiSymbol generates aligned series for multiple symbols.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []types.PriceRow {
	var all []types.PriceRow

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		// Vary initial price and volatility slightly per symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		all = append(all, g.Generate(config)...)
	}

	return all
}

// Generate10K is a convenience function to generate 10,000 daily closes
// with default settings for benchmarking.
func Generate10K(symbol string) []types.PriceRow {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = symbol
	config.Count = 10000

	return gen.Generate(config)
}

// Generate10KMultiSymbol generates 10,000 daily closes for each symbol.
func Generate10KMultiSymbol(symbols []string) []types.PriceRow {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 10000

	return gen.GenerateMultiSymbol(symbols, config)
}

func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
