//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/cache"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisSignals_StatusAndCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	s := cache.NewRedisSignals(setupRedis(t), time.Minute)
	jobID := uuid.New()

	_, found, err := s.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetStatus(ctx, jobID, models.JobStatusRunning))
	status, found, err := s.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.JobStatusRunning, status)

	require.NoError(t, s.RequestCancel(ctx, jobID))
	cancelled, err := s.IsCancelRequested(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.NoError(t, s.Clear(ctx, jobID))
	cancelled, err = s.IsCancelRequested(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestRedisSignals_CloseReleasesClient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	s := cache.NewRedisSignals(setupRedis(t), time.Minute)

	require.NoError(t, s.SetStatus(ctx, uuid.New(), models.JobStatusPending))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.SetStatus(ctx, uuid.New(), models.JobStatusPending), redis.ErrClosed)
}
