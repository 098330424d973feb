package algos

import (
	"strings"
	"time"

	"github.com/rxtech-lab/argo-backtree/internal/tree"
)

// Not inverts another step.
type Not struct {
	inner tree.Algo
}

func NewNot(inner tree.Algo) *Not {
	return &Not{inner: inner}
}

func (a *Not) Name() string {
	return "not(" + a.inner.Name() + ")"
}

func (a *Not) Evaluate(s tree.Strategy) (bool, error) {
	ok, err := a.inner.Evaluate(s)

	return !ok, err
}

// Or passes when any of its steps passes. Steps after the first passing one are not run.
type Or struct {
	algos []tree.Algo
}

func NewOr(algos ...tree.Algo) *Or {
	return &Or{algos: algos}
}

func (a *Or) Name() string {
	names := make([]string, len(a.algos))
	for i, algo := range a.algos {
		names[i] = algo.Name()
	}

	return "or(" + strings.Join(names, ",") + ")"
}

func (a *Or) Evaluate(s tree.Strategy) (bool, error) {
	for _, algo := range a.algos {
		ok, err := algo.Evaluate(s)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

// Require passes when a predicate over the strategy holds.
type Require struct {
	name string
	pred func(s tree.Strategy) bool
}

func NewRequire(name string, pred func(s tree.Strategy) bool) *Require {
	return &Require{name: name, pred: pred}
}

// RequireSelected passes when the selection is not empty.
func RequireSelected() *Require {
	return NewRequire("require_selected", func(s tree.Strategy) bool {
		selected := s.Transient().Selected
		return selected.IsSome() && len(selected.Unwrap()) > 0
	})
}

func (a *Require) Name() string {
	return a.name
}

func (a *Require) Evaluate(s tree.Strategy) (bool, error) {
	return a.pred(s), nil
}

// Entry is one row kept by Record.
type Entry struct {
	Tick    int
	Time    time.Time
	Price   float64
	Value   float64
	Cash    float64
	Weights map[string]float64
}

// Record keeps a per-tick trail of the strategy in its persistent store. Place it as an
// always-run step so it records ticks the gates skipped too.
type Record struct {
	key string
}

func NewRecord() *Record {
	return &Record{key: stateKey("record")}
}

func (a *Record) Name() string {
	return "record"
}

func (a *Record) Evaluate(s tree.Strategy) (bool, error) {
	weights := make(map[string]float64)
	for _, child := range s.Children() {
		weights[child.Name()] = child.Weight()
	}

	entries := a.Entries(s)
	entries = append(entries, Entry{
		Tick:    s.Tick(),
		Time:    s.Now(),
		Price:   s.Price(),
		Value:   s.Value(),
		Cash:    s.Cash(),
		Weights: weights,
	})
	s.Persistent().Set(a.key, entries)

	return true, nil
}

// Entries returns what this step recorded on s.
func (a *Record) Entries(s tree.Strategy) []Entry {
	value, ok := s.Persistent().Get(a.key)
	if !ok {
		return nil
	}

	entries, _ := value.([]Entry)

	return entries
}
