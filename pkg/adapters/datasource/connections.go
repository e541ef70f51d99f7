package datasource

import (
	"context"
	"fmt"
	"sort"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

// Connection is a resolved registry entry ready for querying.
type Connection struct {
	ID       string
	Type     string
	Database string
	Executor QueryExecutor
	Dialect  Dialect
}

// ConnectionRegistry maps configured connection ids to executors. The set of
// connections is fixed at startup.
type ConnectionRegistry struct {
	datasources map[string]config.DatasourceConfig
	connMgr     *ConnectionManager
}

func NewConnectionRegistry(datasources []config.DatasourceConfig, connMgr *ConnectionManager) *ConnectionRegistry {
	m := make(map[string]config.DatasourceConfig, len(datasources))
	for _, ds := range datasources {
		m[ds.ID] = ds
	}
	return &ConnectionRegistry{datasources: m, connMgr: connMgr}
}

// IDs returns the configured connection ids, sorted.
func (r *ConnectionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.datasources))
	for id := range r.datasources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe returns the configuration of a connection without opening it.
func (r *ConnectionRegistry) Describe(id string) (config.DatasourceConfig, error) {
	ds, ok := r.datasources[id]
	if !ok {
		return config.DatasourceConfig{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownConnection, id)
	}
	return ds, nil
}

// Open resolves id to an executor for its database type.
func (r *ConnectionRegistry) Open(ctx context.Context, id string) (*Connection, error) {
	ds, err := r.Describe(id)
	if err != nil {
		return nil, err
	}

	reg, ok := GetRegistration(ds.Type)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for type %q", ds.Type)
	}

	executor, err := reg.QueryExecutorFactory(ctx, ds, r.connMgr)
	if err != nil {
		return nil, err
	}

	return &Connection{
		ID:       ds.ID,
		Type:     ds.Type,
		Database: ds.Database,
		Executor: executor,
		Dialect:  reg.Dialect,
	}, nil
}
