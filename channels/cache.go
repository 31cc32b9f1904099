// Package channels implements FDC3 channels: the per-channel context cache,
// the binding of a channel to its fabric topics, the registry that owns every
// live channel, and the user channel set.
package channels

import (
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/desktopagent/fdc3"
)

// ContextCache keeps the latest context of a channel, overall and per type.
// No history is kept.
type ContextCache struct {
	mu     sync.RWMutex
	last   fdc3.Context
	byType map[string]fdc3.Context
}

// NewContextCache returns an empty cache.
func NewContextCache() *ContextCache {
	return &ContextCache{byType: make(map[string]fdc3.Context)}
}

// Broadcast stores payload as the latest context and the latest of its type.
// A context without a type is rejected and the cache is left untouched.
func (c *ContextCache) Broadcast(payload fdc3.Context) error {
	contextType, err := fdc3.ParseContextType(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContext, err)
	}
	stored := slices.Clone(payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = stored
	c.byType[contextType] = stored
	return nil
}

// GetCurrentContext returns the latest context of contextType, or the latest
// context of any type when contextType is empty. It returns nil when nothing
// matching was broadcast.
func (c *ContextCache) GetCurrentContext(contextType string) fdc3.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if contextType == "" {
		return c.last
	}
	return c.byType[contextType]
}

// Types returns the context types seen so far.
func (c *ContextCache) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.byType))
	for t := range c.byType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Clear drops every stored context.
func (c *ContextCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = nil
	c.byType = make(map[string]fdc3.Context)
}
