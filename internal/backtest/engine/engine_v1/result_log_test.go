package engine

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/types"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ResultLogTestSuite struct {
	suite.Suite
	log *ResultLog
	t0  time.Time
}

func TestResultLogSuite(t *testing.T) {
	suite.Run(t, new(ResultLogTestSuite))
}

func (suite *ResultLogTestSuite) SetupTest() {
	suite.log = NewResultLog()
	suite.t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
}

func (suite *ResultLogTestSuite) tick(tick int, rootValue float64) ([]types.Snapshot, []types.PositionSnapshot) {
	at := suite.t0.AddDate(0, 0, tick)

	return []types.Snapshot{
			{Tick: tick, Time: at, Strategy: "root", Price: 100, Value: rootValue},
			{Tick: tick, Time: at, Strategy: "root/equity", Price: 100, Value: rootValue / 2},
		}, []types.PositionSnapshot{
			{Tick: tick, Time: at, Strategy: "root/equity", Instrument: "root/equity/SPY", Symbol: "SPY", Position: 1},
			{Tick: tick, Time: at, Strategy: "root", Instrument: "root/AGG", Symbol: "AGG", Position: 2},
		}
}

func (suite *ResultLogTestSuite) TestAppendAndRead() {
	for i, value := range []float64{100, 110, 121} {
		snapshots, positions := suite.tick(i, value)
		suite.Require().NoError(suite.log.Append(snapshots, positions))
	}

	suite.Equal(3, suite.log.Len())
	suite.Equal(2, suite.log.LastTick())
	suite.Len(suite.log.Snapshots(), 6)
	suite.Equal([]string{"root", "root/equity"}, suite.log.Strategies())

	series := suite.log.Series("root")
	suite.Require().Len(series, 3)
	suite.Equal(110.0, series[1].Value)

	suite.Len(suite.log.Positions(""), 6)
	equity := suite.log.Positions("root/equity")
	suite.Require().Len(equity, 3)
	suite.Equal("SPY", equity[0].Symbol)

	last, ok := suite.log.Last("root/equity")
	suite.True(ok)
	suite.Equal(60.5, last.Value)

	_, ok = suite.log.Last("root/missing")
	suite.False(ok)
}

func (suite *ResultLogTestSuite) TestSnapshotsAreCopies() {
	snapshots, positions := suite.tick(0, 100)
	suite.Require().NoError(suite.log.Append(snapshots, positions))

	out := suite.log.Snapshots()
	out[0].Value = -1

	suite.Equal(100.0, suite.log.Snapshots()[0].Value)
}

func (suite *ResultLogTestSuite) TestRejectsNonIncreasingTick() {
	snapshots, positions := suite.tick(1, 100)
	suite.Require().NoError(suite.log.Append(snapshots, positions))

	err := suite.log.Append(snapshots, positions)
	suite.True(errors.HasCode(err, errors.ErrCodeNonIncreasingTick))

	earlier, positions := suite.tick(0, 100)
	err = suite.log.Append(earlier, positions)
	suite.True(errors.HasCode(err, errors.ErrCodeNonIncreasingTick))

	suite.Equal(1, suite.log.Len())
}

func (suite *ResultLogTestSuite) TestRejectsMixedTicks() {
	snapshots, positions := suite.tick(0, 100)
	snapshots[1].Tick = 1

	err := suite.log.Append(snapshots, positions)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidState))

	snapshots, positions = suite.tick(0, 100)
	positions[0].Tick = 3

	err = suite.log.Append(snapshots, positions)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidState))

	err = suite.log.Append(nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidState))
	suite.Equal(0, suite.log.Len())
}
