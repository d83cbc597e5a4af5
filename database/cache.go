package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crm-backend/models"
	"crm-backend/services"
)

const (
	cacheKeyPrefix = "crmservice:customer:"

	// invalidatedMarker replaces a cached customer after a write. Fills use
	// SET NX, so a read that started before the commit cannot re-cache the old
	// row while the marker lives.
	invalidatedMarker = "-"
	invalidationHold  = 5 * time.Second
)

var _ services.CustomerStore = (*CachedCustomerStore)(nil)

// CachedCustomerStore puts a Redis read-through cache in front of FindByID.
// Writes invalidate the cached entry once they are committed. Redis failures
// are logged and never fail the request.
//
// A fill that read the row before a concurrent commit is rejected for
// invalidationHold after the invalidation; a reader stalled longer than that
// can still cache a stale row until the TTL expires.
type CachedCustomerStore struct {
	services.CustomerStore
	rdb redis.Cmdable
	ttl time.Duration
	log zerolog.Logger
}

func NewCachedCustomerStore(inner services.CustomerStore, rdb redis.Cmdable, ttl time.Duration, log zerolog.Logger) *CachedCustomerStore {
	return &CachedCustomerStore{
		CustomerStore: inner,
		rdb:           rdb,
		ttl:           ttl,
		log:           log.With().Str("component", "customer_cache").Logger(),
	}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

func (s *CachedCustomerStore) FindByID(ctx context.Context, id string) (*models.Customer, error) {
	raw, err := s.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil && string(raw) == invalidatedMarker:
		// recently written: read through, put is refused until the marker expires
	case err == nil:
		var c models.Customer
		if err := json.Unmarshal(raw, &c); err == nil {
			return &c, nil
		}
		s.log.Warn().Err(err).Str("customer_id", id).Msg("dropping undecodable cache entry")
		s.rdb.Del(ctx, cacheKey(id))
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("customer_id", id).Msg("cache read failed")
	}

	c, err := s.CustomerStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(ctx, c)
	return c, nil
}

func (s *CachedCustomerStore) Update(ctx context.Context, id string, changes map[string]any) (*models.Customer, error) {
	c, err := s.CustomerStore.Update(ctx, id, changes)
	s.invalidate(ctx, id)
	return c, err
}

func (s *CachedCustomerStore) Delete(ctx context.Context, id string) (*models.Customer, error) {
	c, err := s.CustomerStore.Delete(ctx, id)
	s.invalidate(ctx, id)
	return c, err
}

func (s *CachedCustomerStore) WithinTx(ctx context.Context, fn func(tx services.CustomerStore) error) error {
	var touched []string
	err := s.CustomerStore.WithinTx(ctx, func(tx services.CustomerStore) error {
		return fn(&cachedTx{CustomerStore: tx, touched: &touched})
	})
	if err == nil {
		s.invalidate(ctx, touched...)
	}
	return err
}

func (s *CachedCustomerStore) put(ctx context.Context, c *models.Customer) {
	data, err := json.Marshal(c)
	if err != nil {
		s.log.Warn().Err(err).Str("customer_id", c.ID).Msg("cache encode failed")
		return
	}
	if err := s.rdb.SetNX(ctx, cacheKey(c.ID), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("customer_id", c.ID).Msg("cache write failed")
	}
}

func (s *CachedCustomerStore) invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	hold := invalidationHold
	if s.ttl > 0 && s.ttl < hold {
		hold = s.ttl
	}
	for _, id := range ids {
		if err := s.rdb.Set(ctx, cacheKey(id), invalidatedMarker, hold).Err(); err != nil {
			s.log.Warn().Err(err).Str("customer_id", id).Msg("cache invalidation failed")
		}
	}
}

// cachedTx reads straight from the transaction and records which customers
// to invalidate after commit.
type cachedTx struct {
	services.CustomerStore
	touched *[]string
}

func (t *cachedTx) Update(ctx context.Context, id string, changes map[string]any) (*models.Customer, error) {
	*t.touched = append(*t.touched, id)
	return t.CustomerStore.Update(ctx, id, changes)
}

func (t *cachedTx) Delete(ctx context.Context, id string) (*models.Customer, error) {
	*t.touched = append(*t.touched, id)
	return t.CustomerStore.Delete(ctx, id)
}
