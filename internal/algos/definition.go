package algos

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"github.com/rxtech-lab/argo-backtree/pkg/utils"
	"gopkg.in/yaml.v3"
)

// NodeDefinition declares a tree node in YAML. A node with a symbol and no steps or
// children is an instrument; anything else is a strategy.
//
//	name: root
//	steps:
//	  - algo: run_monthly
//	  - algo: select_all
//	  - algo: weigh_equally
//	  - algo: rebalance
//	children:
//	  - symbol: SPY
//	  - symbol: AGG
type NodeDefinition struct {
	Name       string            `yaml:"name" validate:"required_without=Symbol,excludesall=/" jsonschema:"description=Node name. Defaults to the symbol for instruments"`
	Symbol     string            `yaml:"symbol,omitempty" jsonschema:"description=Price column of an instrument"`
	Multiplier float64           `yaml:"multiplier,omitempty" validate:"gte=0" jsonschema:"minimum=0"`
	Valuation  string            `yaml:"valuation,omitempty" validate:"omitempty,oneof=inherit market notional" jsonschema:"enum=inherit,enum=market,enum=notional"`
	Steps      []StepDefinition  `yaml:"steps,omitempty" validate:"dive"`
	Children   []*NodeDefinition `yaml:"children,omitempty" validate:"dive,required"`
}

// StepDefinition declares one pipeline step.
type StepDefinition struct {
	Algo string `yaml:"algo" validate:"required" jsonschema:"required,description=Registered algo name"`
	// AlwaysRun runs the step even after a gate failed, and ignores its result.
	AlwaysRun bool   `yaml:"always_run,omitempty"`
	Params    Params `yaml:"params,omitempty"`
}

// IsInstrument reports whether the node declares a leaf.
func (d *NodeDefinition) IsInstrument() bool {
	return d.Symbol != "" && len(d.Steps) == 0 && len(d.Children) == 0
}

// ParseDefinition decodes and validates a YAML strategy definition.
func ParseDefinition(data []byte) (*NodeDefinition, error) {
	var def NodeDefinition

	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse strategy definition", err)
	}

	validate := validator.New()
	if err := validate.Struct(&def); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid strategy definition", err)
	}

	return &def, nil
}

// DefinitionSchema returns the JSON schema of strategy definition files.
func DefinitionSchema() (string, error) {
	return utils.GetSchemaFromConfig(&NodeDefinition{})
}

// LoadDefinition reads a strategy definition file.
func LoadDefinition(path string) (*NodeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read strategy definition %s", path)
	}

	return ParseDefinition(data)
}

// Resolve turns a definition into a tree declaration, creating each step through registry.
// The root is always a strategy.
func Resolve(def *NodeDefinition, registry Registry) (*tree.StrategySpec, error) {
	if def == nil {
		return nil, errors.New(errors.ErrCodeInvalidNode, "strategy definition is empty")
	}

	return resolveStrategy(def, registry, def.Name)
}

func resolveStrategy(def *NodeDefinition, registry Registry, path string) (*tree.StrategySpec, error) {
	valuation, err := parseValuation(def.Valuation)
	if err != nil {
		return nil, err
	}

	steps := make([]tree.Step, len(def.Steps))

	for i, step := range def.Steps {
		algo, err := registry.Create(step.Algo, step.Params)
		if err != nil {
			return nil, fmt.Errorf("%s step %d: %w", path, i, err)
		}

		if step.AlwaysRun {
			steps[i] = tree.Always(algo)
		} else {
			steps[i] = tree.Gate(algo)
		}
	}

	children := make([]tree.NodeSpec, 0, len(def.Children))

	for _, child := range def.Children {
		if child.IsInstrument() {
			childValuation, err := parseValuation(child.Valuation)
			if err != nil {
				return nil, err
			}

			children = append(children, tree.NewInstrument(child.Symbol).
				WithName(child.Name).
				WithMultiplier(child.Multiplier).
				WithValuation(childValuation))

			continue
		}

		spec, err := resolveStrategy(child, registry, path+"/"+child.Name)
		if err != nil {
			return nil, err
		}

		children = append(children, spec)
	}

	return tree.NewStrategy(def.Name, children...).WithSteps(steps...).WithValuation(valuation), nil
}

func parseValuation(value string) (tree.Valuation, error) {
	switch value {
	case "", "inherit":
		return tree.ValuationInherit, nil
	case "market":
		return tree.ValuationMarket, nil
	case "notional":
		return tree.ValuationNotional, nil
	}

	return tree.ValuationInherit, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown valuation %q", value)
}
