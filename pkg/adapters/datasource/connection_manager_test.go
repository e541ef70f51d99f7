package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

type fakePool struct {
	pingErr error
	closed  atomic.Bool
}

func (p *fakePool) Ping(ctx context.Context) error { return p.pingErr }
func (p *fakePool) Close() error {
	p.closed.Store(true)
	return nil
}
func (p *fakePool) GetType() string { return "fake" }

func newTestManager(t *testing.T) *ConnectionManager {
	t.Helper()
	m := NewConnectionManager(ConnectionManagerConfig{TTLMinutes: 1}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestConnectionManager_ReusesPool(t *testing.T) {
	m := newTestManager(t)
	opens := 0
	open := func(ctx context.Context) (PoolConnector, error) {
		opens++
		return &fakePool{}, nil
	}

	p1, err := m.GetOrCreate(context.Background(), "warehouse", open)
	require.NoError(t, err)
	p2, err := m.GetOrCreate(context.Background(), "warehouse", open)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, m.GetStats().TotalConnections)
}

func TestConnectionManager_ConcurrentCreateOpensOnce(t *testing.T) {
	m := newTestManager(t)
	var opens atomic.Int32
	open := func(ctx context.Context) (PoolConnector, error) {
		opens.Add(1)
		return &fakePool{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GetOrCreate(context.Background(), "warehouse", open)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
}

func TestConnectionManager_PermanentOpenFailure(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetOrCreate(context.Background(), "warehouse", func(ctx context.Context) (PoolConnector, error) {
		return nil, errors.New("password authentication failed")
	})

	require.Error(t, err)
	assert.Equal(t, 0, m.GetStats().TotalConnections)
}

func TestConnectionManager_PerformCleanup(t *testing.T) {
	m := newTestManager(t)
	pool := &fakePool{}
	_, err := m.GetOrCreate(context.Background(), "warehouse", func(ctx context.Context) (PoolConnector, error) {
		return pool, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 0, m.performCleanup(time.Now()))
	assert.Equal(t, 1, m.performCleanup(time.Now().Add(2*time.Minute)))
	assert.True(t, pool.closed.Load())
	assert.Equal(t, 0, m.GetStats().TotalConnections)
}

func TestConnectionManager_CloseIsIdempotent(t *testing.T) {
	m := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	pool := &fakePool{}
	_, err := m.GetOrCreate(context.Background(), "warehouse", func(ctx context.Context) (PoolConnector, error) {
		return pool, nil
	})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.True(t, pool.closed.Load())

	_, err = m.GetOrCreate(context.Background(), "warehouse", nil)
	assert.Error(t, err)
}

type stubExecutor struct{}

func (stubExecutor) Query(ctx context.Context, req QueryRequest) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}

func TestConnectionRegistry_Open(t *testing.T) {
	Register(AdapterRegistration{
		Info: AdapterInfo{Type: "stub", DisplayName: "Stub"},
		QueryExecutorFactory: func(ctx context.Context, ds config.DatasourceConfig, connMgr *ConnectionManager) (QueryExecutor, error) {
			return stubExecutor{}, nil
		},
	})

	r := NewConnectionRegistry([]config.DatasourceConfig{
		{ID: "b", Type: "stub", Database: "analytics"},
		{ID: "a", Type: "oracle"},
	}, newTestManager(t))

	assert.Equal(t, []string{"a", "b"}, r.IDs())

	conn, err := r.Open(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "analytics", conn.Database)
	assert.NotNil(t, conn.Executor)

	_, err = r.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrUnknownConnection)

	_, err = r.Open(context.Background(), "a")
	assert.Error(t, err)
}
