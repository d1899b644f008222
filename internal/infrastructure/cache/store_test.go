package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"paysync/internal/application"
	"paysync/internal/config"
	"paysync/internal/domain"
	"paysync/internal/infrastructure/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentCacheKey(t *testing.T) {
	from := int64(10)
	to := int64(20)

	assert.Equal(t,
		"paysync:payments:v3:addr=any:hash=any:from=any:to=any:limit=100",
		paymentCacheKey("3", application.PaymentQueryFilter{}),
	)
	assert.Equal(t,
		"paysync:payments:v0:addr=rAbc:hash=DEAD:from=10:to=20:limit=5",
		paymentCacheKey("0", application.PaymentQueryFilter{Address: "rAbc", Hash: "DEAD", FromLedger: &from, ToLedger: &to, Limit: 5}),
	)
	assert.NotEqual(t,
		paymentCacheKey("1", application.PaymentQueryFilter{}),
		paymentCacheKey("2", application.PaymentQueryFilter{}),
	)
}

func TestCachedStoreWithoutRedis(t *testing.T) {
	ctx := context.Background()
	base, err := storage.Open(ctx, storage.Config{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)

	store, err := NewCachedStore(base, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	inserted, err := store.StorePayments(ctx, []domain.Payment{{LedgerIndex: 1, Hash: "H", From: "rA", To: "rB", Amount: 9}})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	rows, err := store.QueryPayments(ctx, application.PaymentQueryFilter{Address: "rB"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9), rows[0].Amount)
	assert.NoError(t, store.Ping(ctx))
}

func TestNewCachedStoreRequiresBase(t *testing.T) {
	_, err := NewCachedStore(nil, Config{})
	assert.Error(t, err)
}

func TestCachedStoreInvalidatesOnInsert(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	base, err := storage.Open(ctx, storage.Config{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)

	store, err := NewCachedStore(base, Config{Addr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	filter := application.PaymentQueryFilter{Address: "rB"}
	_, err = store.StorePayments(ctx, []domain.Payment{{LedgerIndex: 1, Hash: "H1", From: "rA", To: "rB", Amount: 1}})
	require.NoError(t, err)
	rows, err := store.QueryPayments(ctx, filter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, mr.Exists(paymentCacheKey("1", filter)))

	// A duplicate insert leaves the version and the cached result alone.
	inserted, err := store.StorePayments(ctx, []domain.Payment{{LedgerIndex: 1, Hash: "H1", From: "rA", To: "rB", Amount: 1}})
	require.NoError(t, err)
	assert.Empty(t, inserted)
	version, err := mr.Get(paymentCacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	_, err = store.StorePayments(ctx, []domain.Payment{{LedgerIndex: 2, Hash: "H2", From: "rA", To: "rB", Amount: 2}})
	require.NoError(t, err)
	rows, err = store.QueryPayments(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.True(t, mr.Exists(paymentCacheKey("2", filter)))
}
