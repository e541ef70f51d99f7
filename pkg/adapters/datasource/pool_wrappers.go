package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConnector is a pooled target connection held by the ConnectionManager.
// GetType names the dialect in pool stats and logs.
type PoolConnector interface {
	Ping(ctx context.Context) error
	Close() error
	GetType() string
}

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error { return w.pool.Ping(ctx) }

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string { return "postgres" }

// MSSQLPoolWrapper wraps *sql.DB to implement PoolConnector
type MSSQLPoolWrapper struct {
	db *sql.DB
}

func NewMSSQLPoolWrapper(db *sql.DB) *MSSQLPoolWrapper {
	return &MSSQLPoolWrapper{db: db}
}

func (w *MSSQLPoolWrapper) Ping(ctx context.Context) error { return w.db.PingContext(ctx) }

func (w *MSSQLPoolWrapper) Close() error { return w.db.Close() }

func (w *MSSQLPoolWrapper) GetType() string { return "sqlserver" }

// GetPostgresPool extracts the underlying *pgxpool.Pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.pool, nil
}

// GetMSSQLDB extracts the underlying *sql.DB from a PoolConnector.
func GetMSSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*MSSQLPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not an MSSQL pool wrapper")
	}
	return wrapper.db, nil
}
