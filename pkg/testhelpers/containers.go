package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx" for migrations
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/database"
)

// PostgresImage is the image used for both the engine store and the target database.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
// The target database is seeded with a small public.users table.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// targetSeed is loaded into the target database once per test run.
const targetSeed = `
CREATE TABLE IF NOT EXISTS public.users (
    id         SERIAL PRIMARY KEY,
    email      TEXT NOT NULL,
    status     TEXT NOT NULL,
    age        INTEGER,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
TRUNCATE public.users;
INSERT INTO public.users (email, status, age)
SELECT 'user' || g || '@example.com',
       CASE WHEN g % 3 = 0 THEN 'inactive' ELSE 'active' END,
       CASE WHEN g % 10 = 0 THEN NULL ELSE 20 + g % 40 END
FROM generate_series(1, 95) AS g;
`

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "test_data",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/test_data?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := pool.Exec(ctx, targetSeed); err != nil {
		return nil, fmt.Errorf("failed to seed target schema: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE DATABASE ekaya_dictionary_test"); err != nil {
		return nil, fmt.Errorf("failed to create engine database: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
	}, nil
}

// EngineDB holds the engine database connection with migrations applied.
// Use this for testing handlers, services, and repositories against a real database.
type EngineDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared engine database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB(testDB)
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

func setupEngineDB(testDB *TestDB) (*EngineDB, error) {
	ctx := context.Background()

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%d/ekaya_dictionary_test?sslmode=disable",
		testDB.Host, testDB.Port)

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}
