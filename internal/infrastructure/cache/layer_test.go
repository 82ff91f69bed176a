package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/logging"
)

// failingRepo simulates an unreachable backend.
type failingRepo struct{}

func (failingRepo) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, domain.ErrCacheUnavailable
}
func (failingRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return domain.ErrCacheUnavailable
}
func (failingRepo) Delete(ctx context.Context, key string) error { return domain.ErrCacheUnavailable }
func (failingRepo) Close() error                                 { return nil }

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mem := NewMemoryCache()
	t.Cleanup(func() { mem.Close() })
	return New(mem, logging.Discard(), 0)
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	in := payload{Name: "Velvet Mini Dress", Price: 129.99}
	c.SetJSON(ctx, SearchKey("velvet"), in, time.Minute)

	var out payload
	require.True(t, c.GetJSON(ctx, SearchKey("velvet"), &out))
	assert.Equal(t, in, out)
}

func TestCache_ExpiredIsAbsent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.SetJSON(ctx, LastPriceKey("p1"), 105, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	var out int
	assert.False(t, c.GetJSON(ctx, LastPriceKey("p1"), &out))
}

func TestCache_BackendErrorsAreMisses(t *testing.T) {
	c := New(failingRepo{}, logging.Discard(), time.Hour)
	ctx := context.Background()

	assert.NotPanics(t, func() { c.SetJSON(ctx, "product:x", payload{}, 0) })

	var out payload
	assert.False(t, c.GetJSON(ctx, "product:x", &out))
}

func TestCache_UndecodableIsMiss(t *testing.T) {
	mem := NewMemoryCache()
	defer mem.Close()
	c := New(mem, logging.Discard(), 0)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, "search:bad", []byte("{not json"), time.Minute))

	var out []payload
	assert.False(t, c.GetJSON(ctx, "search:bad", &out))
}

func TestMemoize(t *testing.T) {
	ctx := context.Background()

	t.Run("computes once then hits", func(t *testing.T) {
		c := newTestCache(t)
		calls := 0
		compute := func(context.Context) ([]payload, error) {
			calls++
			return []payload{{Name: "a", Price: 1}}, nil
		}

		first, hit, err := Memoize(ctx, c, "search:a", time.Minute, compute)
		require.NoError(t, err)
		assert.False(t, hit)

		second, hit, err := Memoize(ctx, c, "search:a", time.Minute, compute)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		c := newTestCache(t)
		boom := errors.New("boom")
		calls := 0
		compute := func(context.Context) (int, error) {
			calls++
			return 0, boom
		}

		_, _, err := Memoize(ctx, c, "filters:d1", time.Minute, compute)
		assert.ErrorIs(t, err, boom)
		_, _, err = Memoize(ctx, c, "filters:d1", time.Minute, compute)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})

	t.Run("works when backend is down", func(t *testing.T) {
		c := New(failingRepo{}, logging.Discard(), 0)
		got, hit, err := Memoize(ctx, c, "similar_users:u1", time.Minute, func(context.Context) (string, error) {
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "fresh", got)
	})
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "product", namespace(ProductKey("https://x.test/p")))
	assert.Equal(t, "similar_users", namespace(SimilarUsersKey("u1")))
	assert.Equal(t, "other", namespace("nocolon"))
}
