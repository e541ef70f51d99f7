package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/cache"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

func TestOpenSignals_FallsBackToLocal(t *testing.T) {
	tests := []struct {
		name  string
		redis config.RedisConfig
	}{
		{name: "redis not configured"},
		{name: "redis unreachable", redis: config.RedisConfig{Host: "127.0.0.1", Port: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			signals := openSignals(ctx, &config.Config{Redis: tt.redis}, zaptest.NewLogger(t))
			assert.IsType(t, &cache.LocalSignals{}, signals)
			require.NoError(t, signals.Close())
		})
	}
}
