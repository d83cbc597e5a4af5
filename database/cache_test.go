package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/models"
	"crm-backend/services"
)

// fakeRedis implements the commands the cache uses; any other call panics
// through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.store(key, value, ttl)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.store(key, value, ttl)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) store(key string, value interface{}, ttl time.Duration) {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
}

// countingStore counts reads that reach the backing store.
type countingStore struct {
	*MemoryCustomerStore
	reads int
}

func (s *countingStore) FindByID(ctx context.Context, id string) (*models.Customer, error) {
	s.reads++
	return s.MemoryCustomerStore.FindByID(ctx, id)
}

func TestCachedCustomerStore_ReadThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingStore{MemoryCustomerStore: NewMemoryCustomerStore()}
	c := newCustomer("john@example.com", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, inner.Insert(ctx, c))

	rdb := newFakeRedis()
	store := NewCachedCustomerStore(inner, rdb, time.Minute, zerolog.Nop())

	first, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	second, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.reads)
	assert.Equal(t, first.Email, second.Email)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Contains(t, rdb.data, cacheKeyPrefix+c.ID)
}

func TestCachedCustomerStore_NotFoundIsNotCached(t *testing.T) {
	t.Parallel()
	rdb := newFakeRedis()
	store := NewCachedCustomerStore(NewMemoryCustomerStore(), rdb, time.Minute, zerolog.Nop())

	_, err := store.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, rdb.data)
}

func TestCachedCustomerStore_InvalidatesAfterCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := NewMemoryCustomerStore()
	c := newCustomer("john@example.com", time.Now())
	require.NoError(t, inner.Insert(ctx, c))

	rdb := newFakeRedis()
	store := NewCachedCustomerStore(inner, rdb, time.Minute, zerolog.Nop())
	svc := services.NewCustomerService(store)

	_, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rdb.data, 1)

	key := cacheKeyPrefix + c.ID
	city := "Utrecht"
	updated, err := svc.Update(ctx, c.ID, services.UpdateCustomerInput{City: &city})
	require.NoError(t, err)
	assert.Equal(t, invalidatedMarker, rdb.data[key])
	assert.Equal(t, invalidationHold, rdb.ttls[key])

	got, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.City, got.City)

	_, err = svc.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, invalidatedMarker, rdb.data[key])

	_, err = store.FindByID(ctx, c.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestCachedCustomerStore_LateFillAfterWriteIsRefused(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := NewMemoryCustomerStore()
	c := newCustomer("john@example.com", time.Now())
	require.NoError(t, inner.Insert(ctx, c))

	rdb := newFakeRedis()
	store := NewCachedCustomerStore(inner, rdb, time.Minute, zerolog.Nop())
	svc := services.NewCustomerService(store)

	// A reader fetches the row, then a write commits before the reader fills the cache.
	stale, err := inner.FindByID(ctx, c.ID)
	require.NoError(t, err)

	city := "Utrecht"
	_, err = svc.Update(ctx, c.ID, services.UpdateCustomerInput{City: &city})
	require.NoError(t, err)

	store.put(ctx, stale)
	assert.Equal(t, invalidatedMarker, rdb.data[cacheKeyPrefix+c.ID])

	got, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Utrecht", got.City)
}

func TestCachedCustomerStore_HoldNeverOutlivesTTL(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	store := NewCachedCustomerStore(NewMemoryCustomerStore(), rdb, time.Second, zerolog.Nop())
	store.invalidate(context.Background(), "a")

	assert.Equal(t, time.Second, rdb.ttls[cacheKeyPrefix+"a"])
}

func TestCachedCustomerStore_RolledBackTxKeepsEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := NewMemoryCustomerStore()
	c := newCustomer("john@example.com", time.Now())
	require.NoError(t, inner.Insert(ctx, c))

	rdb := newFakeRedis()
	store := NewCachedCustomerStore(inner, rdb, time.Minute, zerolog.Nop())
	_, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx services.CustomerStore) error {
		if _, err := tx.Update(ctx, c.ID, map[string]any{"city": "Delft"}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, rdb.data, 1)

	got, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amsterdam", got.City)
}

func TestCachedCustomerStore_RedisDownFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := NewMemoryCustomerStore()
	c := newCustomer("john@example.com", time.Now())
	require.NoError(t, inner.Insert(ctx, c))

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewCachedCustomerStore(inner, rdb, time.Minute, zerolog.Nop())

	got, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = store.Delete(ctx, c.ID)
	assert.NoError(t, err)
}

func TestCachedCustomerStore_Redis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	rdb, err := NewRedisClient(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	inner := NewMemoryCustomerStore()
	c := newCustomer("john@example.com", time.Now())
	require.NoError(t, inner.Insert(ctx, c))

	store := NewCachedCustomerStore(inner, rdb, time.Minute, zerolog.Nop())
	t.Cleanup(func() { rdb.Del(ctx, cacheKey(c.ID)) })

	_, err = store.FindByID(ctx, c.ID)
	require.NoError(t, err)

	n, err := rdb.Exists(ctx, cacheKey(c.ID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisClient("not a url")
	assert.Error(t, err)
}
