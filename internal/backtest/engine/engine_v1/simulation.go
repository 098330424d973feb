package engine

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"go.uber.org/zap"
)

// SimulationState is the lifecycle state of a simulation.
type SimulationState string

const (
	SimulationStateUninitialized SimulationState = "UNINITIALIZED"
	SimulationStateReady         SimulationState = "READY"
	SimulationStateRunning       SimulationState = "RUNNING"
	SimulationStateFinished      SimulationState = "FINISHED"
	SimulationStateFailed        SimulationState = "FAILED"
	SimulationStateCancelled     SimulationState = "CANCELLED"
)

// TickCallback is invoked after every recorded tick with the number of ticks done and the total.
type TickCallback func(current int, total int) error

// Simulation drives one strategy tree over a universe, one tick at a time.
// It is not safe for concurrent use; independent simulations may run in parallel.
type Simulation struct {
	spec     *tree.StrategySpec
	universe *universe.Universe
	config   BacktestEngineV1Config
	logger   *logger.Logger

	tree    *tree.Tree
	results *ResultLog
	state   SimulationState
	cursor  int
	err     error
	onTick  TickCallback
}

// NewSimulation creates an UNINITIALIZED simulation. Call Setup, or Run which sets up on demand.
func NewSimulation(spec *tree.StrategySpec, u *universe.Universe, config BacktestEngineV1Config, log *logger.Logger) *Simulation {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Simulation{
		spec:     spec,
		universe: u,
		config:   config,
		logger:   log.Named("simulation"),
		results:  NewResultLog(),
		state:    SimulationStateUninitialized,
	}
}

// OnTick registers a callback invoked after every recorded tick. A callback error fails the simulation.
func (s *Simulation) OnTick(callback TickCallback) {
	s.onTick = callback
}

// Setup validates the configuration and builds the tree. Configuration errors leave
// the simulation UNINITIALIZED.
func (s *Simulation) Setup() error {
	if s.state != SimulationStateUninitialized {
		return errors.Newf(errors.ErrCodeInvalidState, "cannot set up a %s simulation", s.state)
	}

	if err := s.config.Validate(); err != nil {
		return err
	}

	if s.universe == nil || s.universe.Len() == 0 {
		return errors.New(errors.ErrCodeEmptyUniverse, "simulation needs at least one tick")
	}

	t, err := tree.Build(s.spec, s.universe, s.config.TreeConfig(), s.logger)
	if err != nil {
		s.logger.Error("Failed to build strategy tree", zap.Error(err))

		return err
	}

	s.tree = t
	s.state = SimulationStateReady

	s.logger.Info("Simulation ready",
		zap.String("strategy", t.Root().Name()),
		zap.Int("ticks", s.universe.Len()),
		zap.Strings("columns", s.universe.Columns()),
	)

	return nil
}

// Step processes exactly one tick: update, run, check, record. After the last tick the
// simulation is FINISHED. A fatal error moves it to FAILED and leaves the result log
// at the last good tick.
func (s *Simulation) Step() error {
	switch s.state {
	case SimulationStateReady:
		s.state = SimulationStateRunning
	case SimulationStateRunning:
	default:
		return errors.Newf(errors.ErrCodeInvalidState, "cannot step a %s simulation", s.state)
	}

	if s.cursor >= s.universe.Len() {
		s.finish()

		return nil
	}

	if err := s.step(s.cursor); err != nil {
		return s.fail(err)
	}

	s.cursor++

	if s.onTick != nil {
		if err := s.onTick(s.cursor, s.universe.Len()); err != nil {
			return s.fail(errors.Wrap(errors.ErrCodeCallbackFailed, "tick callback failed", err))
		}
	}

	if s.cursor == s.universe.Len() {
		s.finish()
	}

	return nil
}

func (s *Simulation) step(tick int) error {
	if tick > 0 {
		previous, current := s.universe.Tick(tick-1), s.universe.Tick(tick)
		if current.Equal(previous) {
			return errors.Newf(errors.ErrCodeDuplicateTick, "tick %d repeats time %s", tick, current)
		}

		if current.Before(previous) {
			return errors.Newf(errors.ErrCodeNonIncreasingTick, "tick %d at %s is before %s", tick, current, previous)
		}
	}

	if err := s.tree.Update(tick); err != nil {
		return err
	}

	if tick == 0 && s.config.InitialCapital > 0 {
		s.tree.Root().Adjust(s.config.InitialCapital, true)
	}

	if err := s.tree.Run(); err != nil {
		return err
	}

	if !s.config.SkipInvariants {
		if err := s.tree.CheckInvariants(); err != nil {
			return err
		}
	}

	snapshots, positions := s.snapshot(tick)

	return s.results.Append(snapshots, positions)
}

func (s *Simulation) snapshot(tick int) ([]types.Snapshot, []types.PositionSnapshot) {
	now := s.tree.Now()
	strategies := s.tree.Strategies()
	instruments := s.tree.Instruments()

	snapshots := make([]types.Snapshot, 0, len(strategies))
	for _, st := range strategies {
		notes := s.tree.Notes(st.ID())
		if len(notes) > 0 {
			s.logger.Warn("Recovered issues during tick",
				zap.Int("tick", tick),
				zap.String("strategy", st.Path()),
				zap.Strings("notes", notes),
			)
		}

		snapshots = append(snapshots, types.Snapshot{
			Tick:          tick,
			Time:          now,
			Strategy:      st.Path(),
			Price:         st.Price(),
			Value:         st.Value(),
			NotionalValue: st.NotionalValue(),
			Cash:          st.Cash(),
			Fees:          st.Fees(),
			Flows:         st.Flows(),
			Notes:         notes,
		})
	}

	positions := make([]types.PositionSnapshot, 0, len(instruments))
	for _, in := range instruments {
		positions = append(positions, types.PositionSnapshot{
			Tick:       tick,
			Time:       now,
			Strategy:   in.Parent().Path(),
			Instrument: in.Path(),
			Symbol:     in.Symbol(),
			Position:   in.Position(),
			Price:      in.Price(),
			Value:      in.Value(),
			Weight:     in.Weight(),
			Stale:      in.Stale(),
		})
	}

	return snapshots, positions
}

// Run steps until the time index is exhausted. Cancellation is checked between ticks, so
// a cancelled simulation keeps every tick it completed.
func (s *Simulation) Run(ctx context.Context) error {
	if s.state == SimulationStateUninitialized {
		if err := s.Setup(); err != nil {
			return err
		}
	}

	if s.state != SimulationStateReady {
		return errors.Newf(errors.ErrCodeInvalidState, "cannot run a %s simulation", s.state)
	}

	for s.state == SimulationStateReady || s.state == SimulationStateRunning {
		if err := ctx.Err(); err != nil {
			s.state = SimulationStateCancelled
			s.err = err

			s.logger.Info("Simulation cancelled",
				zap.Int("ticks", s.results.Len()),
				zap.Error(err),
			)

			return err
		}

		if err := s.Step(); err != nil {
			return err
		}
	}

	return nil
}

func (s *Simulation) finish() {
	s.state = SimulationStateFinished

	root, _ := s.results.Last(s.tree.Root().Path())
	s.logger.Info("Simulation finished",
		zap.Int("ticks", s.results.Len()),
		zap.Float64("value", root.Value),
		zap.Float64("price", root.Price),
	)
}

func (s *Simulation) fail(err error) error {
	s.state = SimulationStateFailed
	s.err = fmt.Errorf("tick %d: %w", s.cursor, err)

	s.logger.Error("Simulation failed",
		zap.Int("tick", s.cursor),
		zap.Int("recorded", s.results.Len()),
		zap.Error(err),
	)

	return s.err
}

// State returns the current lifecycle state.
func (s *Simulation) State() SimulationState {
	return s.state
}

// Result returns the snapshot log. It is complete once the simulation is FINISHED and
// holds every good tick otherwise.
func (s *Simulation) Result() *ResultLog {
	return s.results
}

// Tree returns the built tree, nil before Setup.
func (s *Simulation) Tree() *tree.Tree {
	return s.tree
}

// Err returns the error that stopped the simulation.
func (s *Simulation) Err() error {
	return s.err
}

// Summary condenses the run for stats.yaml.
func (s *Simulation) Summary() types.RunSummary {
	summary := types.RunSummary{
		State:          string(s.state),
		Ticks:          s.results.Len(),
		InitialCapital: s.config.InitialCapital,
	}

	if s.spec != nil {
		summary.Strategy = s.spec.Name
	}

	if s.err != nil {
		summary.Error = s.err.Error()
	}

	if s.tree == nil {
		return summary
	}

	series := s.results.Series(s.tree.Root().Path())
	if len(series) == 0 {
		return summary
	}

	summary.StartTime = series[0].Time
	summary.EndTime = series[len(series)-1].Time
	summary.FinalValue = series[len(series)-1].Value
	summary.FinalPrice = series[len(series)-1].Price

	for _, snapshot := range series {
		summary.TotalFees += snapshot.Fees
	}

	return summary
}
