package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// ProviderSpec holds the configuration needed to create a provider instance.
type ProviderSpec struct {
	ID         string
	Type       string
	Model      string
	BaseURL    string
	APIKeyEnv  string
	Defaults   ProviderDefaults
	HTTPClient *http.Client

	// AdditionalConfig carries provider-specific settings.
	AdditionalConfig map[string]interface{}
}

// ProviderFactory creates a provider from a spec.
type ProviderFactory func(spec ProviderSpec) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProviderFactory registers a factory for a provider type. Provider
// packages call it from init.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[providerType] = factory
}

// CreateProviderFromSpec creates a provider using the factory registered for
// spec.Type.
func CreateProviderFromSpec(spec ProviderSpec) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[spec.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %s (registered: %v)", spec.Type, RegisteredTypes())
	}
	return factory(spec)
}

// RegisteredTypes lists the registered provider types in sorted order.
func RegisteredTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
