package source

import (
	"fmt"
	"sort"
	"sync"
)

// ResolverFactory creates a Resolver for one backend.
type ResolverFactory func() (Resolver, error)

var (
	registryMu sync.RWMutex
	resolvers  = make(map[string]ResolverFactory)
)

// RegisterResolver registers a backend factory under name.
func RegisterResolver(name string, factory ResolverFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resolvers[name] = factory
}

// NewResolver creates the resolver registered under name.
func NewResolver(name string) (Resolver, error) {
	registryMu.RLock()
	factory, ok := resolvers[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source backend %q not registered (available: %v)", name, Names())
	}
	return factory()
}

// Names lists the registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(resolvers))
	for name := range resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
