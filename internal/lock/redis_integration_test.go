//go:build integration

package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	l, err := NewRedisFromURL(ctx, url, 300*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	release, err := l.Acquire(ctx, "doc-1")
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "doc-1")
	assert.True(t, errors.Is(err, common.ErrExtractionInProgress))
	require.NoError(t, release(ctx))

	// the lease expires on its own if the holder dies
	_, err = l.Acquire(ctx, "doc-2")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, err := l.Acquire(ctx, "doc-2")
		if err != nil {
			return false
		}
		_ = r(ctx)
		return true
	}, 3*time.Second, 50*time.Millisecond)
}
