package datasource

import (
	"context"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
}

// AdapterRegistration contains info + factories for one database type.
// Factories receive the connection manager so pools are shared across calls.
type AdapterRegistration struct {
	Info                 AdapterInfo
	Dialect              Dialect
	QueryExecutorFactory func(ctx context.Context, ds config.DatasourceConfig, connMgr *ConnectionManager) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetRegistration returns the registration for a database type.
func GetRegistration(dsType string) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	_, ok := GetRegistration(dsType)
	return ok
}
