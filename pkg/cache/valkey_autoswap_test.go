package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arpanauts/biomapper-sub002/pkg/logger"
)

func TestAutoSwapCache_DelegatesToFallbackUntilSwap(t *testing.T) {
	fallback := NewNoopValkeyCache(logger.Nop())
	dialAttempts := 0
	a := newAutoSwapCache(fallback, logger.Nop(), func() (ValkeyCache, error) {
		dialAttempts++
		return nil, errors.New("not yet reachable")
	})
	defer a.Stop()

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "k", []byte("v"), time.Second))
	b, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(b))
}
