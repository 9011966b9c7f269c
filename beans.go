package wsnext

import (
	"fmt"
	"reflect"
	"sync"
)

// Beans is a minimal Container holding singleton instances and factories.
// Factories are invoked on every resolution.
type Beans struct {
	mu        sync.RWMutex
	instances map[string]any
	factories map[string]func() (any, error)
}

// NewBeans returns an empty container.
func NewBeans() *Beans {
	return &Beans{
		instances: make(map[string]any),
		factories: make(map[string]func() (any, error)),
	}
}

// Register stores a singleton instance under id.
func (b *Beans) Register(id string, instance any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances[id] = instance
}

// RegisterFactory stores a factory under id.
func (b *Beans) RegisterFactory(id string, factory func() (any, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factories[id] = factory
}

// ResolveInstance implements Container.
func (b *Beans) ResolveInstance(ownerID string) (any, error) {
	b.mu.RLock()
	inst, ok := b.instances[ownerID]
	factory := b.factories[ownerID]
	b.mu.RUnlock()

	if ok {
		return inst, nil
	}
	if factory != nil {
		return factory()
	}
	return nil, fmt.Errorf("%s: %s", ErrMsgOwnerNotFound, ownerID)
}

// OwnerIDOf returns the identifier an owner is registered under when no
// explicit OwnerID is declared: its type name, e.g. "*main.Chat".
func OwnerIDOf(owner any) string {
	if owner == nil {
		return ""
	}
	return reflect.TypeOf(owner).String()
}
