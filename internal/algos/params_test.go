package algos

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParamsNumbers(t *testing.T) {
	p := Params{"f": 1.5, "i": 3, "i64": int64(4), "whole": 5.0, "s": "x"}

	f, err := p.Float("f")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	f, err = p.Float("i")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	i, err := p.Int("whole")
	require.NoError(t, err)
	assert.Equal(t, 5, i)

	i, err = p.Int("i64")
	require.NoError(t, err)
	assert.Equal(t, 4, i)

	_, err = p.Int("f")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidType))

	_, err = p.Float("s")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidType))

	_, err = p.Float("missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingParameter))

	f, err = p.FloatOr("missing", 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.25, f)

	i, err = p.IntOr("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, i)
}

func TestParamsCollections(t *testing.T) {
	p := Params{
		"names":   []any{"SPY", "AGG"},
		"typed":   []string{"TLT"},
		"weights": map[string]any{"SPY": 0.6, "AGG": 1},
		"bad":     []any{"SPY", 3},
		"flag":    true,
	}

	names, err := p.Strings("names")
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "AGG"}, names)

	names, err = p.Strings("typed")
	require.NoError(t, err)
	assert.Equal(t, []string{"TLT"}, names)

	_, err = p.Strings("bad")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidType))

	weights, err := p.FloatMap("weights")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"SPY": 0.6, "AGG": 1}, weights)

	flag, err := p.BoolOr("flag", false)
	require.NoError(t, err)
	assert.True(t, flag)

	_, err = p.BoolOr("names", false)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidType))

	assert.Equal(t, []string{"bad", "flag", "names", "typed", "weights"}, p.Keys())
}

func TestParamsTime(t *testing.T) {
	p := Params{
		"date":    "2024-03-01",
		"instant": "2024-03-01T15:30:00Z",
		"value":   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"bad":     "yesterday",
	}

	got, err := p.Time("date")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = p.Time("instant")
	require.NoError(t, err)
	assert.Equal(t, 15, got.Hour())

	got, err = p.Time("value")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Day())

	_, err = p.Time("bad")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidType))
}

func TestParamsNested(t *testing.T) {
	p := Params{
		"inner": map[string]any{"algo": "run_once"},
		"list":  []any{map[string]any{"algo": "a"}, Params{"algo": "b"}},
		"bad":   "x",
	}

	inner, err := p.Params("inner")
	require.NoError(t, err)
	assert.Equal(t, "run_once", inner["algo"])

	empty, err := p.Params("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = p.Params("bad")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidType))

	list, err := p.ParamsList("list")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[1]["algo"])
}

func TestParamsFromYAML(t *testing.T) {
	var p Params
	require.NoError(t, yaml.Unmarshal([]byte(`
weights:
  SPY: 0.6
  AGG: 1
inner:
  algo: run_once
list:
  - algo: a
  - algo: b
`), &p))

	weights, err := p.FloatMap("weights")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"SPY": 0.6, "AGG": 1}, weights)

	inner, err := p.Params("inner")
	require.NoError(t, err)
	assert.Equal(t, "run_once", inner["algo"])

	list, err := p.ParamsList("list")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[1]["algo"])
}
