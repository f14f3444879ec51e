package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process-wide Prometheus registry. Until it is
// called, every metrics constructor returns nil and collection is disabled.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
}

// GetRegistry returns the process-wide registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
