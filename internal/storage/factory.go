// factory.go maps backend names from storage.default_backend to constructors.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
)

// FactoryFunc creates a storage backend from configuration
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the configured storage backend
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		names := make([]string, 0, len(factories))
		for n := range factories {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)", cfg.Storage.DefaultBackend, strings.Join(names, ", "))
	}
	return factory(cfg)
}
