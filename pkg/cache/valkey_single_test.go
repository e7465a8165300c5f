package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestSingle(t *testing.T) ValkeyCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewValkeySingle(mr.Addr(), 0, "", time.Minute)
	require.NoError(t, err)
	return c
}

func TestValkeySingle_SetGetDelete(t *testing.T) {
	c := newTestSingle(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Second))
	b, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "v1", string(b))

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	require.Error(t, err)
	var nf *ErrNotFound
	require.True(t, errors.As(err, &nf))
}

func TestValkeySingle_GetMissing(t *testing.T) {
	c := newTestSingle(t)
	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
}
