package tree

import (
	"math"
	"testing"

	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type BuildTestSuite struct {
	suite.Suite
}

func TestBuildSuite(t *testing.T) {
	suite.Run(t, new(BuildTestSuite))
}

func (suite *BuildTestSuite) universe() []float64 {
	return []float64{100, 101, 102}
}

func (suite *BuildTestSuite) TestBuildNestedTree() {
	u := newUniverse(suite.T(), []string{"SPY", "AGG"}, suite.universe(), suite.universe())

	spec := NewStrategy("root",
		NewStrategy("equity", Ref("SPY")),
		NewInstrument("AGG").WithName("bonds").WithMultiplier(2),
	)

	tr := buildTree(suite.T(), spec, u, DefaultConfig())

	suite.Equal(4, tr.Len())
	suite.Equal(-1, tr.Cursor())
	suite.True(tr.Now().IsZero())

	root := tr.Root()
	suite.True(root.IsRoot())
	suite.Equal("root", root.Path())
	suite.Equal(RootID, root.Parent().ID())
	suite.Equal([]string{"equity", "bonds"}, root.ChildNames())

	equity := subStrategy(suite.T(), root, "equity")
	suite.Equal("root/equity", equity.Path())
	suite.Equal(root.ID(), equity.Parent().ID())

	spy := instrument(suite.T(), equity, "SPY")
	suite.Equal("root/equity/SPY", spy.Path())
	suite.Equal(1.0, spy.Multiplier())
	suite.False(spy.Priced())
	suite.Equal(RootID, spy.Root().ID())

	bonds := instrument(suite.T(), root, "bonds")
	suite.Equal("AGG", bonds.Symbol())
	suite.Equal(2.0, bonds.Multiplier())

	node, ok := tr.Lookup("root/equity/SPY")
	suite.True(ok)
	suite.Equal(spy.ID(), node.ID())

	_, ok = tr.Lookup("root/SPY")
	suite.False(ok)

	suite.Len(tr.Strategies(), 2)
	suite.Len(tr.Instruments(), 2)
	suite.Equal("root/equity/SPY", tr.Instruments()[0].Path())

	byID, ok := tr.Node(spy.ID())
	suite.True(ok)
	suite.Equal("SPY", byID.Name())

	_, ok = tr.Node(NodeID(99))
	suite.False(ok)

	suite.Equal(DefaultInitialPrice, root.Price())
	suite.Equal(DefaultInitialPrice, equity.Price())
}

func (suite *BuildTestSuite) TestUniverseStrategy() {
	u := newUniverse(suite.T(), []string{"SPY", "AGG", "GLD"}, suite.universe(), suite.universe(), suite.universe())

	tr := buildTree(suite.T(), NewStrategy("root"), u, DefaultConfig())

	suite.Equal([]string{"SPY", "AGG", "GLD"}, tr.Root().ChildNames())

	_, ok := tr.Lookup("root/GLD")
	suite.True(ok)
}

func (suite *BuildTestSuite) TestNotionalTree() {
	u := newUniverse(suite.T(), []string{"BOND"}, suite.universe())

	spec := NewStrategy("root", NewStrategy("rates", Ref("BOND"))).WithValuation(ValuationNotional)
	tr := buildTree(suite.T(), spec, u, DefaultConfig())

	for _, s := range tr.Strategies() {
		suite.True(s.IsNotional())
	}

	for _, i := range tr.Instruments() {
		suite.True(i.IsNotional())
	}
}

func (suite *BuildTestSuite) TestBuildErrors() {
	u := newUniverse(suite.T(), []string{"SPY"}, suite.universe())

	tests := []struct {
		name string
		spec *StrategySpec
		cfg  Config
		code errors.ErrorCode
	}{
		{
			name: "nil root",
			spec: nil,
			cfg:  DefaultConfig(),
			code: errors.ErrCodeInvalidNode,
		},
		{
			name: "empty name",
			spec: NewStrategy("root", NewStrategy("", Ref("SPY"))),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeInvalidNode,
		},
		{
			name: "slash in name",
			spec: NewStrategy("root", Ref("SPY").WithName("a/b")),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeInvalidNode,
		},
		{
			name: "duplicate sibling",
			spec: NewStrategy("root", Ref("SPY"), Ref("SPY")),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeDuplicateNode,
		},
		{
			name: "unknown symbol",
			spec: NewStrategy("root", Ref("QQQ")),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeUnresolvedReference,
		},
		{
			name: "notional instrument in market tree",
			spec: NewStrategy("root", Ref("SPY").WithValuation(ValuationNotional)),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeMixedValuation,
		},
		{
			name: "market strategy in notional tree",
			spec: NewStrategy("root",
				NewStrategy("sub", Ref("SPY")).WithValuation(ValuationMarket),
			).WithValuation(ValuationNotional),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeMixedValuation,
		},
		{
			name: "negative multiplier",
			spec: NewStrategy("root", Ref("SPY").WithMultiplier(-1)),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeInvalidNode,
		},
		{
			name: "nil child",
			spec: NewStrategy("root", nil),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeInvalidNode,
		},
		{
			name: "step without algo",
			spec: NewStrategy("root", Ref("SPY")).WithSteps(Gate(nil)),
			cfg:  DefaultConfig(),
			code: errors.ErrCodeInvalidNode,
		},
		{
			name: "negative tolerance",
			spec: NewStrategy("root", Ref("SPY")),
			cfg:  Config{Tolerance: -1},
			code: errors.ErrCodeInvalidConfiguration,
		},
		{
			name: "invalid precision",
			spec: NewStrategy("root", Ref("SPY")),
			cfg:  Config{Precision: -2},
			code: errors.ErrCodeInvalidConfiguration,
		},
		{
			name: "infinite initial price",
			spec: NewStrategy("root", Ref("SPY")),
			cfg:  Config{InitialPrice: math.Inf(1)},
			code: errors.ErrCodeInvalidConfiguration,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := Build(tc.spec, u, tc.cfg, nil)
			suite.Require().Error(err)
			suite.Equal(tc.code, errors.GetCode(err), err.Error())
			suite.True(errors.IsFatal(err))
		})
	}
}

func (suite *BuildTestSuite) TestNilUniverse() {
	_, err := Build(NewStrategy("root"), nil, DefaultConfig(), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptyUniverse))
}

func (suite *BuildTestSuite) TestConfigDefaults() {
	u := newUniverse(suite.T(), []string{"SPY"}, suite.universe())

	tr := buildTree(suite.T(), NewStrategy("root"), u, Config{Precision: 0})
	cfg := tr.Config()

	suite.Equal(DefaultTolerance, cfg.Tolerance)
	suite.Equal(DefaultInitialPrice, cfg.InitialPrice)
	suite.Equal(0, cfg.Precision)
	suite.NotNil(cfg.Fee)
}

func (suite *BuildTestSuite) TestValuationString() {
	suite.Equal("inherit", ValuationInherit.String())
	suite.Equal("market", ValuationMarket.String())
	suite.Equal("notional", ValuationNotional.String())
}
