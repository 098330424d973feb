package tree

import (
	"fmt"
	"math"
	"testing"

	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type AllocationTestSuite struct {
	suite.Suite
}

func TestAllocationSuite(t *testing.T) {
	suite.Run(t, new(AllocationTestSuite))
}

func (suite *AllocationTestSuite) hasNote(notes []string, code errors.ErrorCode) bool {
	prefix := fmt.Sprintf("[%d]", code)
	for _, note := range notes {
		if len(note) >= len(prefix) && note[:len(prefix)] == prefix {
			return true
		}
	}

	return false
}

func (suite *AllocationTestSuite) TestCloseIsExact() {
	u := newUniverse(suite.T(), []string{"A", "B"}, []float64{30, 33}, []float64{7, 7})
	tr := buildTree(suite.T(), NewStrategy("root"), u, DefaultConfig())
	root := tr.Root()
	a := instrument(suite.T(), root, "A")
	b := instrument(suite.T(), root, "B")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(1000, true)
	suite.Require().NoError(root.Rebalance(1.0/3, a.Node))
	suite.Require().NoError(root.Rebalance(0.5, b.Node))

	suite.Require().NoError(tr.Update(1))
	suite.Require().NoError(root.Rebalance(0, a.Node))

	suite.Equal(0.0, a.Position())
	suite.Equal(0.0, a.Value())
	suite.Equal(0.0, a.Weight())
	suite.NoError(tr.CheckInvariants())

	suite.Require().NoError(root.Flatten())
	suite.Equal(0.0, b.Position())
	suite.InDelta(root.Value(), root.Cash(), 1e-9)
	suite.NoError(tr.CheckInvariants())
}

func (suite *AllocationTestSuite) TestRebalanceArguments() {
	u := newUniverse(suite.T(), []string{"A"}, []float64{10})
	tr := buildTree(suite.T(), NewStrategy("root", NewStrategy("sub", Ref("A"))), u, DefaultConfig())
	root := tr.Root()
	sub := subStrategy(suite.T(), root, "sub")
	a := instrument(suite.T(), sub, "A")

	suite.Require().NoError(tr.Update(0))

	err := root.Rebalance(0.5, a.Node)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownChild))
	suite.False(errors.IsFatal(err))

	suite.True(errors.HasCode(root.Rebalance(0.5, root.Node), errors.ErrCodeUnknownChild))
	suite.True(errors.HasCode(root.Close(Node{}), errors.ErrCodeUnknownChild))
	suite.True(errors.HasCode(root.Rebalance(math.NaN(), sub.Node), errors.ErrCodeInvalidParameter))
	suite.True(errors.HasCode(root.Rebalance(math.Inf(1), sub.Node), errors.ErrCodeInvalidParameter))
}

func (suite *AllocationTestSuite) TestSubStrategyAllocateAndClose() {
	u := newUniverse(suite.T(), []string{"SPY", "AGG"},
		[]float64{100, 100, 200, 200},
		[]float64{50, 50, 50, 50},
	)

	spec := NewStrategy("root",
		NewStrategy("equity", Ref("SPY")).WithSteps(Gate(rebalanceTo(map[string]float64{"SPY": 1}))),
		Ref("AGG"),
	).WithSteps(Gate(rebalanceTo(map[string]float64{"equity": 0.5, "AGG": 0.5})))

	tr := buildTree(suite.T(), spec, u, DefaultConfig())
	root := tr.Root()
	equity := subStrategy(suite.T(), root, "equity")
	spy := instrument(suite.T(), equity, "SPY")
	agg := instrument(suite.T(), root, "AGG")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(1000, true)
	suite.Require().NoError(tr.Run())
	suite.Require().NoError(tr.CheckInvariants())

	suite.InDelta(5.0, spy.Position(), 1e-12)
	suite.InDelta(10.0, agg.Position(), 1e-12)
	suite.InDelta(0.0, equity.Cash(), 1e-9)
	suite.InDelta(0.0, root.Cash(), 1e-9)
	suite.InDelta(500.0, equity.Flows(), 1e-9)
	suite.InDelta(1000.0, root.Flows(), 1e-9)
	suite.InDelta(100.0, equity.Price(), 1e-9)

	suite.Require().NoError(tr.Update(1))
	suite.Require().NoError(tr.Run())
	suite.InDelta(100.0, equity.Price(), 1e-9)
	suite.InDelta(0.0, equity.Flows(), 1e-9)

	suite.Require().NoError(tr.Update(2))
	suite.InDelta(1000.0, equity.Value(), 1e-9)
	suite.InDelta(200.0, equity.Price(), 1e-9)
	suite.InDelta(1500.0, root.Value(), 1e-9)
	suite.InDelta(150.0, root.Price(), 1e-9)
	suite.InDelta(2.0/3, equity.Weight(), 1e-9)

	suite.Require().NoError(root.Close(equity.Node))
	suite.Require().NoError(tr.CheckInvariants())
	suite.Equal(0.0, spy.Position())
	suite.InDelta(0.0, equity.Value(), 1e-9)
	suite.InDelta(0.0, equity.Cash(), 1e-9)
	suite.InDelta(-1000.0, equity.Flows(), 1e-9)
	suite.InDelta(1000.0, root.Cash(), 1e-9)
	suite.InDelta(1500.0, root.Value(), 1e-9)
	suite.Equal(0.0, root.Flows())

	// an empty strategy keeps its last price
	suite.Require().NoError(root.SetSteps())
	suite.Require().NoError(equity.SetSteps())
	suite.Require().NoError(tr.Update(3))
	suite.InDelta(200.0, equity.Price(), 1e-9)
	suite.InDelta(150.0, root.Price(), 1e-9)
}

func (suite *AllocationTestSuite) TestAllocatePushesByCurrentWeights() {
	u := newUniverse(suite.T(), []string{"A", "B"}, []float64{10, 10}, []float64{20, 20})
	tr := buildTree(suite.T(), NewStrategy("root", NewStrategy("sub", Ref("A"), Ref("B"))), u, DefaultConfig())
	root := tr.Root()
	sub := subStrategy(suite.T(), root, "sub")
	a := instrument(suite.T(), sub, "A")
	b := instrument(suite.T(), sub, "B")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(1000, true)

	// no weights yet: the capital stays as cash
	suite.Require().NoError(sub.Allocate(400))
	suite.InDelta(400.0, sub.Cash(), 1e-9)
	suite.InDelta(600.0, root.Cash(), 1e-9)

	suite.Require().NoError(sub.Rebalance(0.25, a.Node))
	suite.Require().NoError(sub.Rebalance(0.75, b.Node))
	suite.InDelta(0.0, sub.Cash(), 1e-9)

	suite.Require().NoError(tr.Update(1))
	suite.Require().NoError(sub.Allocate(200))
	suite.InDelta(150.0, a.Value(), 1e-9)
	suite.InDelta(450.0, b.Value(), 1e-9)
	suite.InDelta(400.0, root.Cash(), 1e-9)
	suite.NoError(tr.CheckInvariants())

	// withdrawing liquidates by weight and returns the cash
	suite.Require().NoError(sub.Allocate(-300))
	suite.InDelta(75.0, a.Value(), 1e-9)
	suite.InDelta(225.0, b.Value(), 1e-9)
	suite.InDelta(0.0, sub.Cash(), 1e-9)
	suite.InDelta(700.0, root.Cash(), 1e-9)
	suite.NoError(tr.CheckInvariants())

	suite.NoError(sub.Allocate(0))
}

func (suite *AllocationTestSuite) TestAllocateAtRootIsAFlow() {
	u := newUniverse(suite.T(), []string{"A"}, []float64{10, 10})
	tr := buildTree(suite.T(), NewStrategy("root"), u, DefaultConfig())
	root := tr.Root()

	suite.Require().NoError(tr.Update(0))
	suite.Require().NoError(root.Allocate(100))
	suite.Require().NoError(root.Rebalance(1, child(suite.T(), root, "A")))

	suite.Require().NoError(tr.Update(1))
	suite.Require().NoError(root.Allocate(50))
	suite.Equal(50.0, root.Flows())
	suite.InDelta(150.0, instrument(suite.T(), root, "A").Value(), 1e-9)

	suite.Require().NoError(root.Allocate(-30))
	suite.InDelta(20.0, root.Flows(), 1e-9)
	suite.InDelta(120.0, root.Value(), 1e-9)
	suite.InDelta(0.0, root.Cash(), 1e-9)
	suite.InDelta(100.0, root.Price(), 1e-9)
}

func (suite *AllocationTestSuite) TestFundingCappedAtParentCash() {
	u := newUniverse(suite.T(), []string{"A"}, []float64{10})
	tr := buildTree(suite.T(), NewStrategy("root", NewStrategy("sub", Ref("A"))), u, DefaultConfig())
	root := tr.Root()
	sub := subStrategy(suite.T(), root, "sub")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)

	suite.Require().NoError(sub.Allocate(300))
	suite.InDelta(100.0, sub.Cash(), 1e-9)
	suite.InDelta(0.0, root.Cash(), 1e-9)
	suite.True(suite.hasNote(tr.Notes(RootID), errors.ErrCodeInsufficientCash))

	suite.Require().NoError(sub.Allocate(-500))
	suite.InDelta(0.0, sub.Cash(), 1e-9)
	suite.InDelta(100.0, root.Cash(), 1e-9)
	suite.True(suite.hasNote(tr.Notes(sub.ID()), errors.ErrCodeInsufficientCash))
	suite.NoError(tr.CheckInvariants())
}

func (suite *AllocationTestSuite) TestFundingWithLeverage() {
	u := newUniverse(suite.T(), []string{"A"}, []float64{10})
	cfg := DefaultConfig()
	cfg.AllowLeverage = true

	tr := buildTree(suite.T(), NewStrategy("root", NewStrategy("sub", Ref("A"))), u, cfg)
	root := tr.Root()
	sub := subStrategy(suite.T(), root, "sub")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)
	suite.Require().NoError(sub.Allocate(300))

	suite.InDelta(300.0, sub.Cash(), 1e-9)
	suite.InDelta(-200.0, root.Cash(), 1e-9)
	suite.Empty(tr.Notes(RootID))
	suite.NoError(tr.CheckInvariants())
}

func (suite *AllocationTestSuite) TestWithdrawalCappedAtCash() {
	u := newUniverse(suite.T(), []string{"A"}, []float64{10})
	tr := buildTree(suite.T(), NewStrategy("root"), u, DefaultConfig())
	root := tr.Root()

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)

	applied := root.Adjust(-500, true)
	suite.InDelta(-100.0, applied, 1e-9)
	suite.InDelta(0.0, root.Cash(), 1e-9)
	suite.InDelta(0.0, root.Value(), 1e-9)
	suite.InDelta(0.0, root.Flows(), 1e-9)
	suite.True(suite.hasNote(tr.Notes(RootID), errors.ErrCodeInsufficientCash))
	suite.NoError(tr.CheckInvariants())

	// nothing left to take
	suite.Equal(0.0, root.Adjust(-50, true))
	suite.InDelta(0.0, root.Cash(), 1e-9)
}

func (suite *AllocationTestSuite) TestWithdrawalWithLeverage() {
	u := newUniverse(suite.T(), []string{"A"}, []float64{10})
	cfg := DefaultConfig()
	cfg.AllowLeverage = true

	tr := buildTree(suite.T(), NewStrategy("root"), u, cfg)
	root := tr.Root()

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)

	suite.InDelta(-500.0, root.Adjust(-500, true), 1e-9)
	suite.InDelta(-400.0, root.Cash(), 1e-9)
	suite.Empty(tr.Notes(RootID))
}

func (suite *AllocationTestSuite) TestBuyClippedWithoutLeverage() {
	u := newUniverse(suite.T(), []string{"X"}, []float64{30})

	tr := buildTree(suite.T(), NewStrategy("root"), u, DefaultConfig())
	root := tr.Root()
	x := instrument(suite.T(), root, "X")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)
	suite.Require().NoError(root.Rebalance(2, x.Node))

	suite.InDelta(100.0/30, x.Position(), 1e-9)
	suite.InDelta(0.0, root.Cash(), 1e-9)
	suite.True(suite.hasNote(tr.Notes(RootID), errors.ErrCodeInsufficientCash))
	suite.NoError(tr.CheckInvariants())
}

func (suite *AllocationTestSuite) TestBuyWithLeverage() {
	u := newUniverse(suite.T(), []string{"X"}, []float64{30})
	cfg := DefaultConfig()
	cfg.AllowLeverage = true

	tr := buildTree(suite.T(), NewStrategy("root"), u, cfg)
	root := tr.Root()
	x := instrument(suite.T(), root, "X")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)
	suite.Require().NoError(root.Rebalance(2, x.Node))

	suite.InDelta(200.0/30, x.Position(), 1e-9)
	suite.InDelta(-100.0, root.Cash(), 1e-9)
	suite.InDelta(2.0, x.Weight(), 1e-9)
	suite.Empty(tr.Notes(RootID))
	suite.NoError(tr.CheckInvariants())
}

func (suite *AllocationTestSuite) TestShortClippedToHeld() {
	u := newUniverse(suite.T(), []string{"X"}, []float64{10})

	tr := buildTree(suite.T(), NewStrategy("root"), u, DefaultConfig())
	root := tr.Root()
	x := instrument(suite.T(), root, "X")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)
	suite.Require().NoError(root.Rebalance(0.5, x.Node))
	suite.Require().NoError(root.Rebalance(-0.5, x.Node))

	suite.Equal(0.0, x.Position())
	suite.InDelta(100.0, root.Cash(), 1e-9)
	suite.True(suite.hasNote(tr.Notes(RootID), errors.ErrCodeShortNotAllowed))
}

func (suite *AllocationTestSuite) TestShortAllowed() {
	u := newUniverse(suite.T(), []string{"X"}, []float64{10, 8})
	cfg := DefaultConfig()
	cfg.AllowShort = true

	tr := buildTree(suite.T(), NewStrategy("root"), u, cfg)
	root := tr.Root()
	x := instrument(suite.T(), root, "X")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(100, true)
	suite.Require().NoError(root.Rebalance(-0.5, x.Node))

	suite.InDelta(-5.0, x.Position(), 1e-12)
	suite.InDelta(150.0, root.Cash(), 1e-9)
	suite.InDelta(-50.0, x.Value(), 1e-9)
	suite.InDelta(100.0, root.Value(), 1e-9)
	suite.NoError(tr.CheckInvariants())

	suite.Require().NoError(tr.Update(1))
	suite.InDelta(110.0, root.Value(), 1e-9)
	suite.InDelta(110.0, root.Price(), 1e-9)

	suite.Require().NoError(root.Close(x.Node))
	suite.Equal(0.0, x.Position())
	suite.InDelta(110.0, root.Cash(), 1e-9)
}

func (suite *AllocationTestSuite) TestFeesAccrueToAncestors() {
	u := newUniverse(suite.T(), []string{"SPY"}, []float64{100, 100})
	cfg := DefaultConfig()
	cfg.Fee = commission_fee.NewInteractiveBrokerCommissionFee()

	tr := buildTree(suite.T(), NewStrategy("root", NewStrategy("equity", Ref("SPY"))), u, cfg)
	root := tr.Root()
	equity := subStrategy(suite.T(), root, "equity")
	spy := instrument(suite.T(), equity, "SPY")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(1000, true)
	suite.Require().NoError(equity.Allocate(500))
	suite.Require().NoError(equity.Rebalance(0.5, spy.Node))

	suite.InDelta(2.5, spy.Position(), 1e-12)
	suite.InDelta(249.0, equity.Cash(), 1e-9)
	suite.InDelta(1.0, equity.Fees(), 1e-12)
	suite.InDelta(1.0, root.Fees(), 1e-12)
	suite.InDelta(999.0, root.Value(), 1e-9)
	suite.NoError(tr.CheckInvariants())

	suite.Require().NoError(tr.Update(1))
	suite.Equal(0.0, root.Fees())
	suite.Equal(0.0, equity.Fees())
}

func (suite *AllocationTestSuite) TestFeeInclusiveClipping() {
	u := newUniverse(suite.T(), []string{"X"}, []float64{30})
	cfg := DefaultConfig()
	cfg.Precision = 0
	cfg.Fee = commission_fee.NewInteractiveBrokerCommissionFee()

	tr := buildTree(suite.T(), NewStrategy("root"), u, cfg)
	root := tr.Root()
	x := instrument(suite.T(), root, "X")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(90, true)
	suite.Require().NoError(root.Rebalance(1, x.Node))

	// 3 units cost 90 plus a 1.0 fee, so only 2 fit
	suite.Equal(2.0, x.Position())
	suite.InDelta(29.0, root.Cash(), 1e-9)
	suite.True(suite.hasNote(tr.Notes(RootID), errors.ErrCodeInsufficientCash))
}

func (suite *AllocationTestSuite) TestSellFeeNeverOverdrawsCash() {
	u := newUniverse(suite.T(), []string{"X"}, []float64{1, 0.1})
	cfg := DefaultConfig()
	cfg.Fee = commission_fee.NewInteractiveBrokerCommissionFee()

	tr := buildTree(suite.T(), NewStrategy("root"), u, cfg)
	root := tr.Root()
	x := instrument(suite.T(), root, "X")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(11, true)
	suite.Require().NoError(root.Rebalance(1, x.Node))
	suite.InDelta(0.0, root.Cash(), 1e-9)

	suite.Require().NoError(tr.Update(1))
	suite.Require().NoError(root.Close(x.Node))
	suite.Equal(0.0, x.Position())
	suite.GreaterOrEqual(root.Cash(), -1e-9)
	suite.NoError(tr.CheckInvariants())
}

func (suite *AllocationTestSuite) TestContractMultiplier() {
	u := newUniverse(suite.T(), []string{"ES"}, []float64{100, 101})
	spec := NewStrategy("root", Ref("ES").WithMultiplier(50))

	tr := buildTree(suite.T(), spec, u, DefaultConfig())
	root := tr.Root()
	es := instrument(suite.T(), root, "ES")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(10000, true)
	suite.Require().NoError(root.Rebalance(0.5, es.Node))

	suite.InDelta(1.0, es.Position(), 1e-12)
	suite.InDelta(5000.0, es.Value(), 1e-9)

	suite.Require().NoError(tr.Update(1))
	suite.InDelta(5050.0, es.Value(), 1e-9)
	suite.InDelta(10050.0, root.Value(), 1e-9)
}

func (suite *AllocationTestSuite) TestNotionalTree() {
	u := newUniverse(suite.T(), []string{"BOND"}, []float64{100, 100.1, 100.05, 100.05})
	spec := NewStrategy("root", Ref("BOND")).WithValuation(ValuationNotional)

	tr := buildTree(suite.T(), spec, u, DefaultConfig())
	root := tr.Root()
	bond := instrument(suite.T(), root, "BOND")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(1000, true)

	// rebalancing against zero exposure does nothing
	suite.Require().NoError(root.Rebalance(1, bond.Node))
	suite.Equal(0.0, bond.Position())

	suite.Require().NoError(root.RebalanceWithBase(1, bond.Node, 1000))
	suite.InDelta(1000.0, bond.Position(), 1e-9)
	suite.InDelta(1000.0, bond.NotionalValue(), 1e-9)
	suite.Equal(0.0, bond.Value())
	suite.InDelta(1000.0, root.Cash(), 1e-9)
	suite.InDelta(1000.0, root.NotionalValue(), 1e-9)
	suite.InDelta(1.0, bond.Weight(), 1e-12)
	suite.InDelta(100.0, root.Price(), 1e-9)
	suite.NoError(tr.CheckInvariants())

	suite.Require().NoError(tr.Update(1))
	suite.InDelta(100.0, bond.Value(), 1e-6)
	suite.InDelta(1100.0, root.Value(), 1e-6)
	suite.InDelta(110.0, root.Price(), 1e-6)

	suite.Require().NoError(tr.Update(2))
	suite.InDelta(50.0, bond.Value(), 1e-6)
	suite.InDelta(105.0, root.Price(), 1e-6)

	// scaling exposure keeps the accumulated PnL
	suite.Require().NoError(root.Rebalance(0.5, bond.Node))
	suite.InDelta(500.0, bond.Position(), 1e-9)
	suite.InDelta(50.0, bond.Value(), 1e-6)

	suite.Require().NoError(root.Close(bond.Node))
	suite.Equal(0.0, bond.Position())
	suite.Equal(0.0, bond.Value())
	suite.InDelta(1050.0, root.Cash(), 1e-6)
	suite.InDelta(1050.0, root.Value(), 1e-6)
	suite.NoError(tr.CheckInvariants())

	suite.Require().NoError(tr.Update(3))
	suite.InDelta(105.0, root.Price(), 1e-6)
}

func (suite *AllocationTestSuite) TestNotionalAllocateKeepsCash() {
	u := newUniverse(suite.T(), []string{"BOND"}, []float64{100})
	spec := NewStrategy("root", NewStrategy("rates", Ref("BOND"))).WithValuation(ValuationNotional)

	tr := buildTree(suite.T(), spec, u, DefaultConfig())
	root := tr.Root()
	rates := subStrategy(suite.T(), root, "rates")
	bond := instrument(suite.T(), rates, "BOND")

	suite.Require().NoError(tr.Update(0))
	root.Adjust(1000, true)
	suite.Require().NoError(rates.Allocate(400))
	suite.InDelta(400.0, rates.Cash(), 1e-9)

	// a sub-strategy without exposure cannot be scaled
	suite.Require().NoError(root.Rebalance(1, rates.Node))
	suite.True(suite.hasNote(tr.Notes(RootID), errors.ErrCodeNotionalUnsupported))

	suite.Require().NoError(rates.RebalanceWithBase(1, bond.Node, 200))
	suite.InDelta(200.0, rates.NotionalValue(), 1e-9)

	suite.Require().NoError(root.RebalanceWithBase(1, rates.Node, 600))
	suite.InDelta(600.0, bond.Position(), 1e-9)
	suite.InDelta(600.0, root.NotionalValue(), 1e-9)
	suite.NoError(tr.CheckInvariants())
}
