package datasource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/stretchr/testify/suite"
)

type CSVDataSourceTestSuite struct {
	suite.Suite
	tmpDir string
	ds     *CSVDataSource
}

func TestCSVDataSourceSuite(t *testing.T) {
	suite.Run(t, new(CSVDataSourceTestSuite))
}

func (suite *CSVDataSourceTestSuite) SetupTest() {
	suite.tmpDir = suite.T().TempDir()
	suite.ds = NewCSVDataSource(logger.NewNopLogger())

	files := map[string]string{
		"spy.csv": "time,symbol,close\n2024-01-01,SPY,100\n2024-01-02,SPY,110\n2024-01-03,SPY,121\n",
		"agg.csv": "time,symbol,close\n2024-01-01,AGG,50\n2024-01-03,AGG,52\n",
	}

	for name, content := range files {
		suite.Require().NoError(os.WriteFile(filepath.Join(suite.tmpDir, name), []byte(content), 0644))
	}
}

func (suite *CSVDataSourceTestSuite) TestInitializeGlob() {
	suite.Require().NoError(suite.ds.Initialize(filepath.Join(suite.tmpDir, "*.csv")))

	count, err := suite.ds.Count(optional.None[time.Time](), optional.None[time.Time]())
	suite.Require().NoError(err)
	suite.Equal(5, count)

	symbols, err := suite.ds.GetAllSymbols()
	suite.Require().NoError(err)
	suite.Equal([]string{"AGG", "SPY"}, symbols)

	u, err := LoadUniverse(suite.ds, optional.None[time.Time](), optional.None[time.Time](), optional.None[Interval]())
	suite.Require().NoError(err)
	suite.Equal(3, u.Len())
	suite.Equal([]string{"AGG", "SPY"}, u.Columns())
	suite.Equal(52.0, u.PriceOf("AGG", 2))
}

func (suite *CSVDataSourceTestSuite) TestInitializeNoMatch() {
	err := suite.ds.Initialize(filepath.Join(suite.tmpDir, "*.parquet"))
	suite.Error(err)
}

func (suite *CSVDataSourceTestSuite) TestInitializeMalformed() {
	path := filepath.Join(suite.tmpDir, "bad.csv")
	suite.Require().NoError(os.WriteFile(path, []byte("time,symbol,close\nnot-a-date,SPY,1\n"), 0644))

	suite.Error(suite.ds.Initialize(path))
}

func (suite *CSVDataSourceTestSuite) TestClose() {
	suite.Require().NoError(suite.ds.Initialize(filepath.Join(suite.tmpDir, "spy.csv")))
	suite.Require().NoError(suite.ds.Close())

	count, err := suite.ds.Count(optional.None[time.Time](), optional.None[time.Time]())
	suite.NoError(err)
	suite.Equal(0, count)
}
