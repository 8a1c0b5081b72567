package gateway

import (
	"fmt"
	"sort"
	"sync"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Factory creates an unconnected gateway instance named name that publishes
// through sink.
type Factory func(name string, sink exchange.Sink) exchange.Gateway

// Classes maps gateway class names (as used in the gateway settings file) to
// factories.
type Classes struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewClasses() *Classes {
	return &Classes{factories: make(map[string]Factory)}
}

// Add registers a factory under class, replacing any previous one.
func (c *Classes) Add(class string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[class] = f
}

// Names returns the registered class names in lexical order.
func (c *Classes) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for n := range c.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New creates a gateway of the given class.
func (c *Classes) New(class, name string, sink exchange.Sink) (exchange.Gateway, error) {
	c.mu.RLock()
	f, ok := c.factories[class]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return f(name, sink), nil
}
