package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapp/backend/internal/domain"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("not a url")
	assert.Error(t, err)
}

// TestRedisCache_RoundTrip runs against a live server when SNAPP_TEST_REDIS_URL is set.
func TestRedisCache_RoundTrip(t *testing.T) {
	url := os.Getenv("SNAPP_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SNAPP_TEST_REDIS_URL not set, skipping redis integration test")
	}

	rc, err := NewRedisCache(url)
	require.NoError(t, err)
	defer rc.Close()

	ctx := context.Background()
	require.NoError(t, rc.Ping(ctx))

	key := "test:roundtrip"
	require.NoError(t, rc.Set(ctx, key, []byte(`{"a":1}`), time.Minute))

	got, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	require.NoError(t, rc.Delete(ctx, key))
	_, err = rc.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}
