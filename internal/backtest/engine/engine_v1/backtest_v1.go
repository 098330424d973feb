package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/algos"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// StatsFileName is the run summary written to every result folder and to the results root.
const StatsFileName = "stats.yaml"

type BacktestEngineV1 struct {
	config        BacktestEngineV1Config
	strategies    []*tree.StrategySpec
	dataPaths     []string
	universe      *universe.Universe
	resultsFolder string
	log           *logger.Logger
	registry      algos.Registry
	datasource    datasource.DataSource
	// callbackMu serializes lifecycle callbacks across workers.
	callbackMu sync.Mutex
}

// runInput is one universe the strategies are simulated over.
type runInput struct {
	index    int
	path     string
	universe *universe.Universe
}

type runJob struct {
	strategy *tree.StrategySpec
	input    runInput
}

func NewBacktestEngineV1() engine.Engine {
	log, err := logger.NewLogger()
	if err != nil {
		log = logger.NewNopLogger()
	}

	return NewBacktestEngineV1WithLogger(log)
}

// NewBacktestEngineV1WithLogger creates an engine that logs to log.
func NewBacktestEngineV1WithLogger(log *logger.Logger) engine.Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BacktestEngineV1{
		config:        EmptyConfig(),
		strategies:    nil,
		dataPaths:     nil,
		universe:      nil,
		resultsFolder: "",
		log:           log,
		registry:      algos.DefaultRegistry(),
		datasource:    nil,
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	if err := yaml.Unmarshal([]byte(config), &b.config); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse backtest configuration", err)
	}

	if err := b.config.Validate(); err != nil {
		b.log.Error("Invalid backtest configuration", zap.Error(err))

		return err
	}

	b.log.Debug("Backtest engine initialized",
		zap.Float64("initial_capital", b.config.InitialCapital),
		zap.String("broker", string(b.config.Broker)),
		zap.Int("precision", b.config.Precision()),
		zap.Int("parallelism", b.config.Parallelism),
	)

	return nil
}

// LoadStrategy implements engine.Engine.
func (b *BacktestEngineV1) LoadStrategy(strategy *tree.StrategySpec) error {
	if strategy == nil {
		return errors.New(errors.ErrCodeInvalidNode, "strategy is nil")
	}

	for _, loaded := range b.strategies {
		if loaded.Name == strategy.Name {
			return errors.Newf(errors.ErrCodeDuplicateNode, "strategy %q is already loaded", strategy.Name)
		}
	}

	b.strategies = append(b.strategies, strategy)
	b.log.Debug("Strategy loaded",
		zap.String("strategy", strategy.Name),
		zap.Int("total_strategies", len(b.strategies)),
	)

	return nil
}

// LoadStrategyDefinition implements engine.Engine.
func (b *BacktestEngineV1) LoadStrategyDefinition(path string) error {
	def, err := algos.LoadDefinition(path)
	if err != nil {
		return err
	}

	spec, err := algos.Resolve(def, b.registry)
	if err != nil {
		b.log.Error("Failed to resolve strategy definition",
			zap.String("path", path),
			zap.Error(err),
		)

		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	return b.LoadStrategy(spec)
}

// SetAlgoRegistry implements engine.Engine.
func (b *BacktestEngineV1) SetAlgoRegistry(registry algos.Registry) error {
	if registry == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "algo registry is nil")
	}

	b.registry = registry

	return nil
}

// SetDataPath implements engine.Engine.
func (b *BacktestEngineV1) SetDataPath(path string) error {
	// use glob to get all the files that match the path
	files, err := filepath.Glob(path)
	if err != nil {
		b.log.Error("Failed to set data path",
			zap.String("path", path),
			zap.Error(err),
		)

		return err
	}

	// Convert all paths to absolute paths
	absolutePaths := make([]string, len(files))

	for i, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			b.log.Error("Failed to get absolute path",
				zap.String("path", file),
				zap.Error(err),
			)

			return err
		}

		absolutePaths[i] = absPath
	}

	b.dataPaths = absolutePaths
	b.log.Debug("Data paths set",
		zap.Strings("files", absolutePaths),
	)

	return nil
}

// SetUniverse implements engine.Engine.
func (b *BacktestEngineV1) SetUniverse(u *universe.Universe) error {
	if u == nil || u.Len() == 0 {
		return errors.New(errors.ErrCodeEmptyUniverse, "universe has no ticks")
	}

	b.universe = u
	b.log.Debug("Universe set",
		zap.Int("ticks", u.Len()),
		zap.Strings("columns", u.Columns()),
	)

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder
	b.log.Debug("Results folder set",
		zap.String("folder", folder),
	)

	return nil
}

func (b *BacktestEngineV1) SetDataSource(datasource datasource.DataSource) error {
	b.datasource = datasource

	return nil
}

// Run implements engine.Engine. Simulations that fail keep their results and are reported in
// stats.yaml; Run then returns an error after every other simulation has finished. Callback
// errors and cancellation stop the whole backtest.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (err error) {
	defer func() {
		if callbacks.OnBacktestEnd != nil {
			b.callbackMu.Lock()
			(*callbacks.OnBacktestEnd)(err)
			b.callbackMu.Unlock()
		}
	}()

	if err := b.preRunCheck(); err != nil {
		return err
	}

	// clean the results folder
	if _, err := os.Stat(b.resultsFolder); err == nil {
		if err := os.RemoveAll(b.resultsFolder); err != nil {
			return fmt.Errorf("failed to clean results folder: %w", err)
		}
	}

	if err := os.MkdirAll(b.resultsFolder, 0755); err != nil {
		return fmt.Errorf("failed to create results folder: %w", err)
	}

	inputs, err := b.loadInputs()
	if err != nil {
		return err
	}

	if callbacks.OnBacktestStart != nil {
		err := b.invoke(func() error {
			return (*callbacks.OnBacktestStart)(len(b.strategies), len(inputs))
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "backtest start callback failed", err)
		}
	}

	jobs := make([]runJob, 0, len(b.strategies)*len(inputs))
	for _, strategy := range b.strategies {
		for _, input := range inputs {
			jobs = append(jobs, runJob{strategy: strategy, input: input})
		}
	}

	summaries := make([]types.RunSummary, len(jobs))

	limit := b.config.Parallelism
	if limit <= 0 {
		limit = -1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, job := range jobs {
		g.Go(func() error {
			summary, err := b.runJob(gctx, job, len(inputs) > 1, callbacks)
			summaries[i] = summary

			return err
		})
	}

	waitErr := g.Wait()

	completed := make([]types.RunSummary, 0, len(summaries))
	failed := 0

	for _, summary := range summaries {
		if summary.ID == "" {
			continue
		}

		completed = append(completed, summary)

		if summary.State != string(SimulationStateFinished) {
			failed++
		}
	}

	if err := types.WriteRunSummaries(filepath.Join(b.resultsFolder, StatsFileName), completed); err != nil {
		return fmt.Errorf("failed to write run summaries: %w", err)
	}

	if waitErr != nil {
		return waitErr
	}

	if failed > 0 {
		return errors.Newf(errors.ErrCodeStepFailed, "%d of %d simulations did not finish", failed, len(jobs))
	}

	b.log.Info("Backtest finished",
		zap.Int("simulations", len(jobs)),
		zap.String("results", b.resultsFolder),
	)

	return nil
}

func (b *BacktestEngineV1) runJob(ctx context.Context, job runJob, multipleData bool, callbacks engine.LifecycleCallbacks) (types.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return types.RunSummary{}, err
	}

	runID := uuid.New().String()
	u := job.input.universe

	if callbacks.OnRunStart != nil {
		err := b.invoke(func() error {
			return (*callbacks.OnRunStart)(runID, job.strategy.Name, job.input.index, job.input.path, u.Len())
		})
		if err != nil {
			return types.RunSummary{}, errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	runLog := &logger.Logger{Logger: b.log.With(
		zap.String("run_id", runID),
		zap.String("strategy", job.strategy.Name),
	)}

	sim := NewSimulation(job.strategy, u, b.config, runLog)

	if callbacks.OnProcessData != nil {
		sim.OnTick(func(current int, total int) error {
			return b.invoke(func() error {
				return (*callbacks.OnProcessData)(runID, current, total)
			})
		})
	}

	runErr := sim.Run(ctx)

	resultFolderPath := getResultFolder(b.resultsFolder, job.strategy.Name, u, job.input.path, multipleData)

	summary, err := b.writeResults(runID, sim, resultFolderPath, job.input.path)
	if err != nil {
		return summary, fmt.Errorf("failed to write results: %w", err)
	}

	if callbacks.OnRunEnd != nil {
		b.callbackMu.Lock()
		(*callbacks.OnRunEnd)(runID, job.strategy.Name, job.input.path, resultFolderPath, string(sim.State()))
		b.callbackMu.Unlock()
	}

	if runErr == nil {
		return summary, nil
	}

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) ||
		errors.HasCode(runErr, errors.ErrCodeCallbackFailed) {
		return summary, runErr
	}

	runLog.Warn("Simulation did not finish",
		zap.String("state", string(sim.State())),
		zap.Error(runErr),
	)

	return summary, nil
}

func (b *BacktestEngineV1) writeResults(runID string, sim *Simulation, resultFolderPath string, dataPath string) (types.RunSummary, error) {
	summary := sim.Summary()
	summary.ID = runID
	summary.Timestamp = time.Now()
	summary.DataPath = dataPath

	if err := os.MkdirAll(resultFolderPath, 0755); err != nil {
		return summary, fmt.Errorf("failed to create result folder: %w", err)
	}

	store, err := NewResultStore(b.log)
	if err != nil {
		return summary, err
	}
	defer store.Close()

	if err := store.Append(runID, sim.Result().Snapshots(), sim.Result().Positions("")); err != nil {
		return summary, err
	}

	files, err := store.Write(resultFolderPath)
	if err != nil {
		return summary, err
	}

	summary.SnapshotsFilePath = files.Snapshots
	summary.PositionsFilePath = files.Positions

	if b.config.ExportCSV {
		if _, err := store.WriteCSV(resultFolderPath, runID); err != nil {
			return summary, err
		}
	}

	if err := types.WriteRunSummaries(filepath.Join(resultFolderPath, StatsFileName), []types.RunSummary{summary}); err != nil {
		return summary, err
	}

	return summary, nil
}

// loadInputs returns the injected universe, or reads one universe per data file.
func (b *BacktestEngineV1) loadInputs() ([]runInput, error) {
	if b.universe != nil {
		u := b.universe

		if b.config.StartTime.IsSome() || b.config.EndTime.IsSome() {
			var err error

			u, err = b.universe.Between(b.config.StartTime.TakeOr(time.Time{}), b.config.EndTime.TakeOr(time.Time{}))
			if err != nil {
				return nil, err
			}
		}

		return []runInput{{index: 0, universe: u}}, nil
	}

	inputs := make([]runInput, 0, len(b.dataPaths))

	for i, dataPath := range b.dataPaths {
		u, err := b.loadUniverse(dataPath)
		if err != nil {
			b.log.Error("Failed to load data",
				zap.String("data", dataPath),
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to load %s: %w", dataPath, err)
		}

		inputs = append(inputs, runInput{index: i, path: dataPath, universe: u})
	}

	return inputs, nil
}

func (b *BacktestEngineV1) loadUniverse(dataPath string) (*universe.Universe, error) {
	if err := b.datasource.Initialize(dataPath); err != nil {
		return nil, fmt.Errorf("failed to initialize data source: %w", err)
	}

	interval := optional.None[datasource.Interval]()
	if b.config.Interval != "" {
		interval = optional.Some(b.config.Interval)
	}

	u, err := datasource.LoadUniverse(b.datasource, b.config.StartTime, b.config.EndTime, interval)
	if err != nil {
		return nil, err
	}

	if len(b.config.AuxTables) == 0 {
		return u, nil
	}

	reader, ok := b.datasource.(datasource.AuxReader)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "data source cannot read auxiliary tables")
	}

	names := make([]string, 0, len(b.config.AuxTables))
	for name := range b.config.AuxTables {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		table, err := reader.ReadAuxTable(name, b.config.AuxTables[name], u.Ticks())
		if err != nil {
			return nil, err
		}

		if err := u.AddAux(table); err != nil {
			return nil, err
		}
	}

	return u, nil
}

func (b *BacktestEngineV1) invoke(fn func() error) error {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()

	return fn()
}

func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}

	return schema, nil
}

func (b *BacktestEngineV1) preRunCheck() error {
	if len(b.strategies) == 0 {
		b.log.Error("No strategies loaded")

		return errors.New(errors.ErrCodeNoStrategies, "no strategies loaded")
	}

	if b.resultsFolder == "" {
		b.log.Error("No results folder set")

		return errors.New(errors.ErrCodeInvalidConfiguration, "no results folder set")
	}

	if b.universe != nil {
		return nil
	}

	if len(b.dataPaths) == 0 {
		b.log.Error("No data paths loaded")

		return errors.New(errors.ErrCodeNoDatasource, "no data paths loaded")
	}

	if b.datasource == nil {
		b.log.Error("No datasource set")

		return errors.New(errors.ErrCodeNoDatasource, "no datasource set")
	}

	return nil
}
