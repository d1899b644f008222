package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"paysync/internal/application"
	"paysync/internal/domain"
	"paysync/internal/infrastructure/storage"

	"github.com/redis/go-redis/v9"
)

const (
	paymentCacheVersionKey = "paysync:payments:version"
	paymentCacheKeyPrefix  = "paysync:payments:v"
	defaultCacheTTL        = time.Minute
)

type Config struct {
	Addr string
	TTL  time.Duration
}

// CachedStore memoizes payment queries in Redis. Every committed insert bumps
// the version key, which orphans all previously cached query results.
type CachedStore struct {
	storage.Store
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedStore(base storage.Store, cfg Config) (*CachedStore, error) {
	if base == nil {
		return nil, errors.New("base store is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedStore{Store: base}, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &CachedStore{Store: base, cache: client, ttl: cfg.TTL}, nil
}

func (s *CachedStore) StorePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error) {
	inserted, err := s.Store.StorePayments(ctx, payments)
	if err != nil {
		return nil, err
	}
	if len(inserted) > 0 {
		s.invalidate(ctx)
	}
	return inserted, nil
}

func (s *CachedStore) QueryPayments(ctx context.Context, filter application.PaymentQueryFilter) ([]domain.Payment, error) {
	if s.cache == nil {
		return s.Store.QueryPayments(ctx, filter)
	}
	version, ok := s.cacheVersion(ctx)
	if !ok {
		return s.Store.QueryPayments(ctx, filter)
	}
	key := paymentCacheKey(version, filter)
	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		var payments []domain.Payment
		if err := json.Unmarshal([]byte(cached), &payments); err == nil {
			return payments, nil
		}
	}

	payments, err := s.Store.QueryPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(payments)
	if err != nil {
		return payments, nil
	}
	_ = s.cache.Set(ctx, key, payload, s.ttl).Err()
	return payments, nil
}

func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx).Err()
}

func (s *CachedStore) Close() error {
	var cacheErr error
	if s.cache != nil {
		cacheErr = s.cache.Close()
	}
	return errors.Join(s.Store.Close(), cacheErr)
}

func (s *CachedStore) cacheVersion(ctx context.Context) (string, bool) {
	version, err := s.cache.Get(ctx, paymentCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Incr(ctx, paymentCacheVersionKey).Err()
}

func paymentCacheKey(version string, filter application.PaymentQueryFilter) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(paymentCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":addr=")
	if filter.Address != "" {
		b.WriteString(filter.Address)
	} else {
		b.WriteString("any")
	}
	b.WriteString(":hash=")
	if filter.Hash != "" {
		b.WriteString(filter.Hash)
	} else {
		b.WriteString("any")
	}
	b.WriteString(":from=")
	if filter.FromLedger != nil {
		b.WriteString(strconv.FormatInt(*filter.FromLedger, 10))
	} else {
		b.WriteString("any")
	}
	b.WriteString(":to=")
	if filter.ToLedger != nil {
		b.WriteString(strconv.FormatInt(*filter.ToLedger, 10))
	} else {
		b.WriteString("any")
	}
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(application.NormalizeLimit(filter.Limit)))
	return b.String()
}
