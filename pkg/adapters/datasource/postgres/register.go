package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
		},
		Dialect: Dialect{},
		QueryExecutorFactory: func(ctx context.Context, ds config.DatasourceConfig, connMgr *datasource.ConnectionManager) (datasource.QueryExecutor, error) {
			cfg, err := FromDatasource(ds)
			if err != nil {
				return nil, err
			}
			return NewQueryExecutor(ctx, cfg, connMgr, ds.ID)
		},
	})
}

var _ datasource.Dialect = Dialect{}
