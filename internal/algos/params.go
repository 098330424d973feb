package algos

import (
	"sort"
	"time"

	"github.com/rxtech-lab/argo-backtree/pkg/errors"
)

// Params are the arguments of an algo declared in a strategy definition.
// Values come straight from YAML, so numbers may be int or float64.
type Params map[string]any

func (p Params) lookup(key string) (any, error) {
	value, ok := p[key]
	if !ok || value == nil {
		return nil, errors.Newf(errors.ErrCodeMissingParameter, "missing parameter %q", key)
	}

	return value, nil
}

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	value, ok := p[key]

	return ok && value != nil
}

// Float returns a numeric parameter.
func (p Params) Float(key string) (float64, error) {
	value, err := p.lookup(key)
	if err != nil {
		return 0, err
	}

	f, ok := toFloat(value)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a number, got %T", key, value)
	}

	return f, nil
}

// FloatOr returns a numeric parameter or fallback when it is not set.
func (p Params) FloatOr(key string, fallback float64) (float64, error) {
	if !p.Has(key) {
		return fallback, nil
	}

	return p.Float(key)
}

// Int returns an integer parameter. Whole floats are accepted.
func (p Params) Int(key string) (int, error) {
	value, err := p.lookup(key)
	if err != nil {
		return 0, err
	}

	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}

	return 0, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be an integer, got %v", key, value)
}

// IntOr returns an integer parameter or fallback when it is not set.
func (p Params) IntOr(key string, fallback int) (int, error) {
	if !p.Has(key) {
		return fallback, nil
	}

	return p.Int(key)
}

// BoolOr returns a boolean parameter or fallback when it is not set.
func (p Params) BoolOr(key string, fallback bool) (bool, error) {
	if !p.Has(key) {
		return fallback, nil
	}

	b, ok := p[key].(bool)
	if !ok {
		return false, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a boolean, got %T", key, p[key])
	}

	return b, nil
}

// String returns a string parameter.
func (p Params) String(key string) (string, error) {
	value, err := p.lookup(key)
	if err != nil {
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a string, got %T", key, value)
	}

	return s, nil
}

// Strings returns a list of strings.
func (p Params) Strings(key string) ([]string, error) {
	value, err := p.lookup(key)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))

		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Newf(errors.ErrCodeInvalidType, "parameter %q item %d must be a string, got %T", key, i, item)
			}

			out = append(out, s)
		}

		return out, nil
	}

	return nil, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a list of strings, got %T", key, value)
}

// FloatMap returns a mapping of names to numbers, e.g. target weights.
func (p Params) FloatMap(key string) (map[string]float64, error) {
	value, err := p.lookup(key)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)

	// nested YAML mappings decode with the type of the enclosing map
	if nested, ok := value.(Params); ok {
		value = map[string]any(nested)
	}

	switch v := value.(type) {
	case map[string]float64:
		for name, f := range v {
			out[name] = f
		}
	case map[string]any:
		for name, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil, errors.Newf(errors.ErrCodeInvalidType, "parameter %q entry %s must be a number, got %T", key, name, item)
			}

			out[name] = f
		}
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a mapping, got %T", key, value)
	}

	return out, nil
}

// Time returns a timestamp. Strings are parsed as RFC 3339 or as a plain date.
func (p Params) Time(key string) (time.Time, error) {
	value, err := p.lookup(key)
	if err != nil {
		return time.Time{}, err
	}

	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}

		return time.Time{}, errors.Newf(errors.ErrCodeInvalidType, "parameter %q is not a date: %s", key, v)
	}

	return time.Time{}, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a date, got %T", key, value)
}

// Params returns a nested parameter block. A missing block is empty.
func (p Params) Params(key string) (Params, error) {
	if !p.Has(key) {
		return Params{}, nil
	}

	return toParams(key, p[key])
}

// ParamsList returns a list of nested parameter blocks.
func (p Params) ParamsList(key string) ([]Params, error) {
	value, err := p.lookup(key)
	if err != nil {
		return nil, err
	}

	items, ok := value.([]any)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a list, got %T", key, value)
	}

	out := make([]Params, len(items))

	for i, item := range items {
		params, err := toParams(key, item)
		if err != nil {
			return nil, err
		}

		out[i] = params
	}

	return out, nil
}

func toParams(key string, value any) (Params, error) {
	switch v := value.(type) {
	case Params:
		return v, nil
	case map[string]any:
		return Params(v), nil
	}

	return nil, errors.Newf(errors.ErrCodeInvalidType, "parameter %q must be a mapping, got %T", key, value)
}

// Keys lists the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	return 0, false
}
