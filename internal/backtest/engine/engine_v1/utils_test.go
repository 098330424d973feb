package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/universe"
	"github.com/stretchr/testify/suite"
)

// UtilsTestSuite is a test suite for utils package
type UtilsTestSuite struct {
	suite.Suite
}

// TestUtilsSuite runs the test suite
func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func (suite *UtilsTestSuite) TestGetResultFolder() {
	ticks := []time.Time{
		time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	u, err := universe.New(ticks, []string{"SPY"}, [][]float64{{100, 110}})
	suite.Require().NoError(err)

	tests := []struct {
		name         string
		universe     *universe.Universe
		dataPath     string
		multipleData bool
		expectedPath string
	}{
		{
			name:         "single data file",
			universe:     u,
			dataPath:     "/path/to/spy.parquet",
			expectedPath: filepath.Join("/results", "sixty_forty", "20230103_20230630"),
		},
		{
			name:         "several data files",
			universe:     u,
			dataPath:     "/path/to/spy.parquet",
			multipleData: true,
			expectedPath: filepath.Join("/results", "sixty_forty", "20230103_20230630", "spy"),
		},
		{
			name:         "injected universe",
			universe:     u,
			multipleData: true,
			expectedPath: filepath.Join("/results", "sixty_forty", "20230103_20230630"),
		},
		{
			name:         "no universe",
			dataPath:     "/path/to/spy.parquet",
			expectedPath: filepath.Join("/results", "sixty_forty", "all_all"),
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			got := getResultFolder("/results", "sixty_forty", tc.universe, tc.dataPath, tc.multipleData)
			suite.Equal(tc.expectedPath, got)
		})
	}
}
