package tree

import (
	"fmt"

	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Algo is one decision step evaluated against a strategy once per tick.
// Implementations must keep per-run state in the strategy's stores, not in the Algo value,
// so one Algo can be shared by trees running in parallel.
type Algo interface {
	Name() string
	// Evaluate returns false to stop the remaining gating steps for this tick.
	Evaluate(s Strategy) (bool, error)
}

// Step places an Algo in a Stack.
type Step struct {
	Algo Algo
	// AlwaysRun steps execute even after a gating step failed, and their result never gates.
	AlwaysRun bool
}

// Gate wraps an algo as an ordinary gating step.
func Gate(algo Algo) Step {
	return Step{Algo: algo}
}

// Always wraps an algo as an always-run step.
func Always(algo Algo) Step {
	return Step{Algo: algo, AlwaysRun: true}
}

// StepResult records what happened to one step during the last Run.
type StepResult struct {
	Name      string
	AlwaysRun bool
	// Ran is false when the step was skipped after an earlier gating step failed.
	Ran    bool
	Passed bool
	Err    error
}

// Stack is an ordered pipeline of steps.
type Stack struct {
	steps []Step
	last  []StepResult
}

// NewStack builds a stack from steps.
func NewStack(steps ...Step) *Stack {
	return &Stack{
		steps: append([]Step(nil), steps...),
	}
}

// Len returns the number of steps.
func (st *Stack) Len() int {
	return len(st.steps)
}

// Steps returns the configured steps.
func (st *Stack) Steps() []Step {
	return append([]Step(nil), st.steps...)
}

// LastRun returns the outcome of each step in the most recent Run.
func (st *Stack) LastRun() []StepResult {
	return append([]StepResult(nil), st.last...)
}

// Run evaluates the steps in order and returns the AND of the gating outcomes.
// A recoverable error fails its step like a false result, and the always-run steps
// after it still execute; the errors are returned together once the stack is done.
// A fatal error stops the stack at once.
func (st *Stack) Run(s Strategy) (bool, error) {
	st.last = make([]StepResult, len(st.steps))
	for i, step := range st.steps {
		st.last[i] = StepResult{Name: step.Algo.Name(), AlwaysRun: step.AlwaysRun}
	}

	passing := true

	var recovered []error

	for i, step := range st.steps {
		result := &st.last[i]

		if !passing && !step.AlwaysRun {
			continue
		}

		ok, err := step.Algo.Evaluate(s)
		result.Ran = true
		result.Passed = ok && err == nil

		if err != nil {
			err = fmt.Errorf("step %s: %w", result.Name, err)
			result.Err = err

			if errors.IsFatal(err) {
				return false, err
			}

			recovered = append(recovered, err)
		}

		if !result.Passed && !step.AlwaysRun {
			passing = false
		}
	}

	return passing, errors.Join(recovered...)
}

// funcAlgo adapts a function to the Algo interface.
type funcAlgo struct {
	name string
	fn   func(s Strategy) (bool, error)
}

// AlgoFunc turns a function into a named Algo.
func AlgoFunc(name string, fn func(s Strategy) (bool, error)) Algo {
	return &funcAlgo{name: name, fn: fn}
}

func (a *funcAlgo) Name() string {
	return a.name
}

func (a *funcAlgo) Evaluate(s Strategy) (bool, error) {
	return a.fn(s)
}
