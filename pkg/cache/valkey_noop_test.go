package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/pkg/logger"
)

func TestNoopValkey_SetGetDelete(t *testing.T) {
	c := NewNoopValkeyCache(logger.Nop())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Second))
	b, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "v1", string(b))

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	require.Error(t, err)
}

func TestNoopValkey_ExpiresAfterTTL(t *testing.T) {
	c := NewNoopValkeyCache(logger.Nop()).(*noopValkeyCache)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err := c.Get(ctx, "k1")
	require.Error(t, err)
}
