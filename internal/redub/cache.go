package redub

import (
	"fmt"
	"sync"

	"github.com/redub/redub/internal/convert"
)

// ConverterFactory builds the converter for one model and mode.
type ConverterFactory func(model convert.Model, mode convert.Mode) (convert.Converter, error)

type cacheKey struct {
	model convert.Model
	mode  convert.Mode
}

// ConverterCache memoises converters per model and mode so a batch loads
// each model handle once. It is safe for concurrent use.
type ConverterCache struct {
	mu      sync.Mutex
	factory ConverterFactory
	entries map[cacheKey]convert.Converter
}

// NewConverterCache creates an empty cache backed by factory.
func NewConverterCache(factory ConverterFactory) *ConverterCache {
	return &ConverterCache{factory: factory, entries: make(map[cacheKey]convert.Converter)}
}

// Get returns the cached converter for model and mode, building it on
// first use. Factory errors are not cached.
func (c *ConverterCache) Get(model convert.Model, mode convert.Mode) (convert.Converter, error) {
	if err := model.Check(mode); err != nil {
		return nil, err
	}
	key := cacheKey{model: model, mode: mode}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.entries[key]; ok {
		return conv, nil
	}
	conv, err := c.factory(model, mode)
	if err != nil {
		return nil, fmt.Errorf("load model %s (%s): %w", model, mode, err)
	}
	c.entries[key] = conv
	return conv, nil
}

// Len returns the number of loaded converters.
func (c *ConverterCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
