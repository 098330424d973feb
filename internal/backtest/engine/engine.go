package engine

import (
	"context"

	"github.com/rxtech-lab/argo-backtree/internal/algos"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
)

// Lifecycle callback types for backtest phases.
// Callbacks with an error return abort the backtest when they fail. The engine never
// invokes two callbacks at the same time, even when simulations run in parallel.

// OnBacktestStartCallback is called once before any simulation starts.
type OnBacktestStartCallback func(totalStrategies int, totalDataFiles int) error

// OnBacktestEndCallback is called when the entire backtest completes (always called via defer).
type OnBacktestEndCallback func(err error)

// OnRunStartCallback is called when one simulation (a strategy over one data file) begins.
// runID is a unique identifier for this run, generated before processing starts.
type OnRunStartCallback func(runID string, strategyName string, dataFileIndex int, dataFilePath string, totalTicks int) error

// OnRunEndCallback is called after a simulation's results have been written.
// state is the final simulation state, e.g. FINISHED or FAILED.
type OnRunEndCallback func(runID string, strategyName string, dataFilePath string, resultFolderPath string, state string)

// OnProcessDataCallback is called after every processed tick of a run.
type OnProcessDataCallback func(runID string, current int, total int) error

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnBacktestStart *OnBacktestStartCallback
	OnBacktestEnd   *OnBacktestEndCallback
	OnRunStart      *OnRunStartCallback
	OnRunEnd        *OnRunEndCallback
	OnProcessData   *OnProcessDataCallback
}

//nolint:interfacebloat // Engine is a core interface that naturally requires multiple methods
type Engine interface {
	// Initialize the engine with the given YAML configuration.
	Initialize(config string) error
	// SetDataPath sets the path to the price data. Accepts glob patterns
	// (e.g. "data/*.parquet"); every matching file is simulated separately.
	SetDataPath(path string) error
	// SetDataSource sets the data source used to read the data files.
	SetDataSource(dataSource datasource.DataSource) error
	// SetUniverse runs the strategies on an already loaded universe instead of data files.
	SetUniverse(u *universe.Universe) error
	// SetResultsFolder sets the output directory for saving backtest results.
	// The results folder will be structured as: <strategy>/<start>_<end>
	// Example: sixty_forty/20200101_20231231
	SetResultsFolder(folder string) error
	// SetAlgoRegistry replaces the registry strategy definitions are resolved against.
	SetAlgoRegistry(registry algos.Registry) error
	// LoadStrategy loads a declared strategy tree. Could be called multiple times to load multiple strategies.
	LoadStrategy(strategy *tree.StrategySpec) error
	// LoadStrategyDefinition loads a strategy tree from a YAML definition file.
	LoadStrategyDefinition(path string) error
	// Run simulates every strategy over every data file.
	// The context can be used to cancel the backtest; running simulations stop after their current tick.
	// Use LifecycleCallbacks to receive notifications at different phases of the backtest.
	Run(ctx context.Context, callbacks LifecycleCallbacks) error
	// GetConfigSchema returns the schema of the engine configuration
	GetConfigSchema() (string, error)
}
