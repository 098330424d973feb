package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rxtech-lab/argo-backtree/internal/universe"
)

const timeRangeLayout = "20060102"

// getResultFolder returns <results>/<strategy>/<start>_<end>. The data file name is added as a
// final folder when several data files are simulated for the same strategy.
func getResultFolder(resultsFolder string, strategyName string, u *universe.Universe, dataPath string, multipleData bool) string {
	strategyFolder := filepath.Join(resultsFolder, strategyName)

	startTimeStr := "all"
	endTimeStr := "all"

	if u != nil && u.Len() > 0 {
		startTimeStr = u.Tick(0).Format(timeRangeLayout)
		endTimeStr = u.Tick(u.Len() - 1).Format(timeRangeLayout)
	}

	dataFolder := filepath.Join(strategyFolder, fmt.Sprintf("%s_%s", startTimeStr, endTimeStr))

	if !multipleData || dataPath == "" {
		return dataFolder
	}

	dataFileName := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))

	return filepath.Join(dataFolder, dataFileName)
}
