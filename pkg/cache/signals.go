// Package cache mirrors job status and cancellation requests so that any
// engine instance can observe them.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// DefaultSignalTTL bounds how long a status or cancel flag outlives its job.
const DefaultSignalTTL = 24 * time.Hour

// JobSignals carries job status and cancellation requests between the API and
// the goroutine running a job. Implementations must be safe for concurrent use.
type JobSignals interface {
	SetStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus) error
	GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error)
	RequestCancel(ctx context.Context, jobID uuid.UUID) error
	IsCancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error)
	Clear(ctx context.Context, jobID uuid.UUID) error
	// Close releases the backend. Signals must not be used afterwards.
	Close() error
}

// JobStatusKey returns the Redis key holding a job's status.
func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("dictionary:job:%s:status", jobID)
}

// JobCancelKey returns the Redis key flagging a cancel request.
func JobCancelKey(jobID uuid.UUID) string {
	return fmt.Sprintf("dictionary:job:%s:cancel", jobID)
}

// ============================================================================
// Redis
// ============================================================================

// RedisSignals implements JobSignals on go-redis/v9.
type RedisSignals struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSignals(client *redis.Client, ttl time.Duration) *RedisSignals {
	if ttl <= 0 {
		ttl = DefaultSignalTTL
	}
	return &RedisSignals{client: client, ttl: ttl}
}

func (s *RedisSignals) SetStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus) error {
	return s.client.Set(ctx, JobStatusKey(jobID), string(status), s.ttl).Err()
}

func (s *RedisSignals) GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error) {
	val, err := s.client.Get(ctx, JobStatusKey(jobID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.JobStatus(val), true, nil
}

func (s *RedisSignals) RequestCancel(ctx context.Context, jobID uuid.UUID) error {
	return s.client.Set(ctx, JobCancelKey(jobID), "1", s.ttl).Err()
}

func (s *RedisSignals) IsCancelRequested(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, JobCancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisSignals) Clear(ctx context.Context, jobID uuid.UUID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, JobCancelKey(jobID))
	pipe.Expire(ctx, JobStatusKey(jobID), time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// ============================================================================
// In-process
// ============================================================================

// Close closes the Redis client handed to NewRedisSignals.
func (s *RedisSignals) Close() error {
	return s.client.Close()
}

// LocalSignals keeps signals in memory. Used when Redis is not configured.
type LocalSignals struct {
	mu        sync.RWMutex
	statuses  map[uuid.UUID]models.JobStatus
	cancelled map[uuid.UUID]bool
}

func NewLocalSignals() *LocalSignals {
	return &LocalSignals{
		statuses:  make(map[uuid.UUID]models.JobStatus),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (s *LocalSignals) SetStatus(_ context.Context, jobID uuid.UUID, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[jobID] = status
	return nil
}

func (s *LocalSignals) GetStatus(_ context.Context, jobID uuid.UUID) (models.JobStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[jobID]
	return status, ok, nil
}

func (s *LocalSignals) RequestCancel(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[jobID] = true
	return nil
}

func (s *LocalSignals) IsCancelRequested(_ context.Context, jobID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled[jobID], nil
}

func (s *LocalSignals) Clear(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, jobID)
	delete(s.statuses, jobID)
	return nil
}

var (
	_ JobSignals = (*RedisSignals)(nil)
	_ JobSignals = (*LocalSignals)(nil)
)

func (s *LocalSignals) Close() error { return nil }
