package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "patient_cache:1", `{"id":1}`, time.Minute))
	require.NoError(t, c.Set(ctx, "patients_cache:registered", `[]`, time.Minute))
	require.NoError(t, c.Set(ctx, "patients_cache:all", `[]`, time.Minute))

	val, err := c.Get(ctx, "patient_cache:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, val)

	val, err = c.Get(ctx, "patient_cache:2")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, c.DeleteAll(ctx, "patients_cache:*"))
	assert.False(t, mr.Exists("patients_cache:registered"))
	assert.True(t, mr.Exists("patient_cache:1"))
}

func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*Cache{nil, NewCache(nil)} {
		assert.False(t, c.Enabled())
		assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		val, err := c.Get(ctx, "k")
		assert.NoError(t, err)
		assert.Empty(t, val)
		assert.NoError(t, c.DeleteAll(ctx, "*"))
	}
}
