package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

func TestLocal_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.Acquire(ctx, "doc-1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "doc-1")
	assert.True(t, errors.Is(err, common.ErrExtractionInProgress))

	other, err := l.Acquire(ctx, "doc-2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, "doc-1")
	require.NoError(t, err)

	// a stale release must not drop the new holder's lease
	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "doc-1")
	assert.True(t, errors.Is(err, common.ErrExtractionInProgress))
	require.NoError(t, again(ctx))
}

func TestNewRedisFromURL_EmptyURLDisablesRedis(t *testing.T) {
	l, err := NewRedisFromURL(context.Background(), "", 0, nil)
	require.NoError(t, err)
	assert.Nil(t, l)
}
