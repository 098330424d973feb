package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunSummary describes one finished (or halted) simulation and where its logs were written.
type RunSummary struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Strategy is the name of the root strategy.
	Strategy string `yaml:"strategy" json:"strategy"`
	// State is the final driver state.
	State string `yaml:"state" json:"state"`
	// Error is set when the run did not finish.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
	// Ticks is the number of ticks processed.
	Ticks int `yaml:"ticks" json:"ticks"`
	// StartTime and EndTime are the first and last processed ticks.
	StartTime time.Time `yaml:"start_time" json:"start_time"`
	EndTime   time.Time `yaml:"end_time" json:"end_time"`
	// InitialCapital is the amount funded into the root at the first tick.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	// FinalValue is the root value after the last processed tick.
	FinalValue float64 `yaml:"final_value" json:"final_value"`
	// FinalPrice is the root price index after the last processed tick.
	FinalPrice float64 `yaml:"final_price" json:"final_price"`
	// TotalFees is the sum of root fees over all ticks.
	TotalFees float64 `yaml:"total_fees" json:"total_fees"`
	// SnapshotsFilePath is the path to the snapshots parquet file.
	SnapshotsFilePath string `yaml:"snapshots_file_path" json:"snapshots_file_path"`
	// PositionsFilePath is the path to the positions parquet file.
	PositionsFilePath string `yaml:"positions_file_path" json:"positions_file_path"`
	// DataPath is the path to the price data used for this run.
	DataPath string `yaml:"data_path" json:"data_path"`
}

func WriteRunSummaries(path string, summaries []RunSummary) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal run summaries to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run summaries to file: %w", err)
	}

	return nil
}

// ReadRunSummaries loads a file written by WriteRunSummaries.
func ReadRunSummaries(path string) ([]RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run summaries: %w", err)
	}

	var summaries []RunSummary
	if err := yaml.Unmarshal(data, &summaries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summaries: %w", err)
	}

	return summaries, nil
}
