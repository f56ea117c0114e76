package transform

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a Transformer (identity, red, zero, …).
type Factory func() Transformer

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register is called from init() by each built-in, or by main for transforms
// compiled into a custom binary.
func Register(name string, f Factory) {
	mu.Lock()
	registry[name] = f
	mu.Unlock()
}

// New returns a transform by name.
func New(name string) (Transformer, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transform: unknown transform %q (have %v)", name, Names())
	}
	return f(), nil
}

// Names lists registered transforms in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
