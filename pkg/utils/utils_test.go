package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

type stepConfig struct {
	Algo   string         `yaml:"algo" jsonschema:"required,description=Registered algo name"`
	Params map[string]any `yaml:"params,omitempty"`
}

type nodeConfig struct {
	Name     string        `yaml:"name" jsonschema:"description=Node name"`
	Steps    []stepConfig  `yaml:"steps,omitempty"`
	Children []*nodeConfig `yaml:"children,omitempty"`
	Ignored  string        `yaml:"-"`
}

func (suite *UtilsTestSuite) decode(schema string) map[string]any {
	var result map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(schema), &result))

	return result
}

func (suite *UtilsTestSuite) TestYAMLFieldNames() {
	schema, err := GetSchemaFromConfig(&nodeConfig{})
	suite.Require().NoError(err)

	result := suite.decode(schema)
	suite.Contains(result, "$schema")
	suite.Contains(result, "$ref")

	defs := result["$defs"].(map[string]any)
	node := defs["nodeConfig"].(map[string]any)
	properties := node["properties"].(map[string]any)

	suite.Contains(properties, "name")
	suite.Contains(properties, "steps")
	suite.Contains(properties, "children")
	suite.NotContains(properties, "Ignored")
	suite.NotContains(properties, "Name")
}

func (suite *UtilsTestSuite) TestRequiredOnlyFromTags() {
	schema, err := GetSchemaFromConfig(&nodeConfig{})
	suite.Require().NoError(err)

	defs := suite.decode(schema)["$defs"].(map[string]any)

	suite.NotContains(defs["nodeConfig"].(map[string]any), "required")
	suite.Equal([]any{"algo"}, defs["stepConfig"].(map[string]any)["required"])
}

func (suite *UtilsTestSuite) TestPrimitiveTypes() {
	for _, value := range []any{"string", 42, true, 3.14} {
		schema, err := GetSchemaFromConfig(value)
		suite.NoError(err)
		suite.NotEmpty(schema)
	}
}
