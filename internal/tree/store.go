package tree

import (
	"sort"

	"github.com/moznion/go-optional"
)

// Store is a per-strategy key/value area shared between steps. Well-known keys are
// typed fields; anything else goes through Set and Get.
type Store struct {
	// Selected holds the child names picked by a selection step.
	Selected optional.Option[[]string]
	// Weights maps child names to target weights.
	Weights optional.Option[map[string]float64]
	// CashReserve is the fraction of value kept as cash by the rebalance step.
	CashReserve optional.Option[float64]
	// NotionalValue is the gross exposure targeted by the rebalance step in notional trees.
	NotionalValue optional.Option[float64]
	otherData     map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Selected:      optional.None[[]string](),
		Weights:       optional.None[map[string]float64](),
		CashReserve:   optional.None[float64](),
		NotionalValue: optional.None[float64](),
		otherData:     make(map[string]any),
	}
}

// Reset clears every key.
func (s *Store) Reset() {
	s.Selected = optional.None[[]string]()
	s.Weights = optional.None[map[string]float64]()
	s.CashReserve = optional.None[float64]()
	s.NotionalValue = optional.None[float64]()
	s.otherData = make(map[string]any)
}

// Set stores a free-form value. Use the typed fields for well-known keys.
func (s *Store) Set(key string, value any) {
	s.otherData[key] = value
}

// Get returns a free-form value.
func (s *Store) Get(key string) (any, bool) {
	value, ok := s.otherData[key]

	return value, ok
}

// Delete removes a free-form value.
func (s *Store) Delete(key string) {
	delete(s.otherData, key)
}

// Keys lists the free-form keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.otherData))
	for key := range s.otherData {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// GetFloat returns a free-form value as float64.
func (s *Store) GetFloat(key string) (float64, bool) {
	value, ok := s.otherData[key]
	if !ok {
		return 0, false
	}

	f, ok := value.(float64)

	return f, ok
}

// GetInt returns a free-form value as int.
func (s *Store) GetInt(key string) (int, bool) {
	value, ok := s.otherData[key]
	if !ok {
		return 0, false
	}

	i, ok := value.(int)

	return i, ok
}
