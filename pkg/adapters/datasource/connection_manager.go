package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/logging"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
	PoolMinConns int32
}

// PoolOpener creates a new pool for a connection id.
type PoolOpener func(ctx context.Context) (PoolConnector, error)

// ConnectionManager keeps one pool per registered connection id with
// TTL-based eviction and health checks on reuse.
type ConnectionManager struct {
	mu              sync.RWMutex
	connections     map[string]*ManagedConnection // key: connection id
	ttl             time.Duration
	poolMaxConns    int32
	poolMinConns    int32
	cleanupInterval time.Duration
	stopped         bool
	stopChan        chan struct{}
	logger          *zap.Logger
}

// ManagedConnection represents a pooled connection and its last use.
type ManagedConnection struct {
	pool     PoolConnector
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	manager := &ConnectionManager{
		connections:     make(map[string]*ManagedConnection),
		ttl:             time.Duration(cfg.TTLMinutes) * time.Minute,
		poolMaxConns:    cfg.PoolMaxConns,
		poolMinConns:    cfg.PoolMinConns,
		cleanupInterval: DefaultCleanupInterval,
		stopChan:        make(chan struct{}),
		logger:          logger.Named("connections"),
	}

	go manager.cleanupExpiredConnections()
	return manager
}

func (m *ConnectionManager) TTL() time.Duration { return m.ttl }
func (m *ConnectionManager) PoolMaxConns() int32 { return m.poolMaxConns }
func (m *ConnectionManager) PoolMinConns() int32 { return m.poolMinConns }

// GetOrCreate returns the pool for key, creating it with open when absent or
// when the existing pool fails its health check.
func (m *ConnectionManager) GetOrCreate(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.RLock()
	managed, exists := m.connections[key]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.pool.Ping(healthCtx)
		})
		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.createNewPool(ctx, key, open)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.pool, nil
	}

	return m.createNewPool(ctx, key, open)
}

// createNewPool creates a new connection pool with retry logic.
// Caller must NOT hold any locks.
func (m *ConnectionManager) createNewPool(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.pool, nil
	}

	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return open(ctx)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s: %w", key, err)
	}

	m.connections[key] = &ManagedConnection{
		pool:     pool,
		lastUsed: time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("key", key),
		zap.String("type", pool.GetType()),
		zap.Int("totalConnections", len(m.connections)),
	)

	return pool, nil
}

// removeConnection removes a connection from the manager and closes it.
// Caller must NOT hold m.mu lock.
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		m.closePool(key, managed)
		delete(m.connections, key)
	}
}

func (m *ConnectionManager) closePool(key string, managed *ManagedConnection) {
	if managed.pool == nil {
		return
	}
	if err := managed.pool.Close(); err != nil {
		m.logger.Warn("failed to close pool", zap.String("key", key), zap.Error(err))
	}
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock ordering: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return 0
	}

	var expiredKeys []string
	for key, managed := range m.connections {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			expiredKeys = append(expiredKeys, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("key", key),
				zap.Duration("idleTime", idle),
			)
		}
	}

	for _, key := range expiredKeys {
		m.closePool(key, m.connections[key])
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
	return len(expiredKeys)
}

// Close closes all pools and stops the cleanup goroutine. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for key, managed := range m.connections {
		m.closePool(key, managed)
	}
	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}

// GetStats returns statistics about the connection manager.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		stats.ConnectionsByType[managed.pool.GetType()]++
		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}
