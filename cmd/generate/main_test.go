package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	engine "github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtree/internal/utils"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type GenerateCmdTestSuite struct {
	suite.Suite
	dir string
}

func TestGenerateCmdSuite(t *testing.T) {
	suite.Run(t, new(GenerateCmdTestSuite))
}

func (suite *GenerateCmdTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.T().Chdir(suite.dir)
}

func (suite *GenerateCmdTestSuite) read(parts ...string) []byte {
	data, err := os.ReadFile(filepath.Join(append([]string{suite.dir}, parts...)...))
	suite.Require().NoError(err)

	return data
}

func (suite *GenerateCmdTestSuite) TestMainWritesSchemaAndSample() {
	main()

	var schema map[string]any
	suite.Require().NoError(json.Unmarshal(suite.read("config", schemaName), &schema))
	suite.Equal("backtest-engine-v1-config", schema["title"])

	properties, ok := schema["properties"].(map[string]any)
	suite.Require().True(ok)

	for _, key := range []string{"initial_capital", "decimal_precision", "integer_positions", "skip_invariants", "aux_tables"} {
		suite.Contains(properties, key)
	}

	sample := suite.read("config", sampleConfigName)
	suite.True(strings.HasPrefix(string(sample), getSchemaReference(schemaName)))
}

func (suite *GenerateCmdTestSuite) TestSampleLoadsWithEngineDefaults() {
	main()

	var loaded engine.BacktestEngineV1Config
	suite.Require().NoError(yaml.Unmarshal(suite.read("config", sampleConfigName), &loaded))
	suite.Require().NoError(loaded.Validate())

	suite.Equal(commission_fee.BrokerInteractiveBroker, loaded.Broker)
	suite.Nil(loaded.DecimalPrecision)
	suite.Equal(utils.FractionalPrecision, loaded.Precision())
	suite.False(loaded.SkipInvariants)
	suite.True(loaded.StartTime.IsNone())
}

func (suite *GenerateCmdTestSuite) TestSampleKeepsUserEdits() {
	main()

	edited := getSchemaReference(schemaName) + "initial_capital: 250000\nbroker: zero_commission\n"
	path := filepath.Join(suite.dir, "config", sampleConfigName)
	suite.Require().NoError(os.WriteFile(path, []byte(edited), 0644))

	main()

	suite.Equal(edited, string(suite.read("config", sampleConfigName)))
}

func (suite *GenerateCmdTestSuite) TestSampleRoundTripsCustomConfig() {
	precision := 2
	config := engine.EmptyConfig()
	config.InitialCapital = 1_000_000
	config.DecimalPrecision = &precision
	config.SkipInvariants = true
	config.AuxTables = map[string]string{"signal": "./data/signal.csv"}

	suite.Require().NoError(generateSampleConfig(config, filepath.Join(suite.dir, "custom.yaml"), "custom.json"))

	var loaded engine.BacktestEngineV1Config
	suite.Require().NoError(yaml.Unmarshal(suite.read("custom.yaml"), &loaded))
	suite.Equal(1_000_000.0, loaded.InitialCapital)
	suite.Equal(2, loaded.Precision())
	suite.True(loaded.SkipInvariants)
	suite.Equal(config.AuxTables, loaded.AuxTables)
}

func (suite *GenerateCmdTestSuite) TestSchemaFileUnderRegularFileFails() {
	blocker := filepath.Join(suite.dir, "blocker")
	suite.Require().NoError(os.WriteFile(blocker, nil, 0644))

	err := generateSchemaFile(engine.EmptyConfig(), filepath.Join(blocker, schemaName))
	suite.ErrorContains(err, "failed to create directory")
}

func (suite *GenerateCmdTestSuite) TestSampleNeedsJSONSchemaName() {
	tests := []struct {
		name    string
		schema  string
		wantErr string
	}{
		{"json schema", "engine.json", ""},
		{"empty name", "", "schema name cannot be empty"},
		{"yaml schema", "engine.yaml", "must have .json extension"},
		{"no extension", "engine", "must have .json extension"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			path := filepath.Join(suite.dir, tc.name+".yaml")
			err := generateSampleConfig(engine.EmptyConfig(), path, tc.schema)

			if tc.wantErr == "" {
				suite.NoError(err)
				suite.FileExists(path)

				return
			}

			suite.ErrorContains(err, tc.wantErr)
			suite.NoFileExists(path)
		})
	}
}

func (suite *GenerateCmdTestSuite) TestValidatePaths() {
	suite.NoError(validatePaths("config/engine.json", "config/engine.yaml"))
	suite.ErrorContains(validatePaths("", "config/engine.yaml"), "schema path cannot be empty")
	suite.ErrorContains(validatePaths("config/engine.json", ""), "sample config path cannot be empty")
}
