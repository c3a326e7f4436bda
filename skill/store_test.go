package skill

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/cache"
	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

const lifetime = "urn:cx:Skill:consumer:Lifetime"

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	m, err := cache.NewManager(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, NewRedisStore(m, nil, zaptest.NewLogger(t))
}

func stores(t *testing.T) map[string]Store {
	_, rs := newRedisStore(t)
	return map[string]Store{"memory": NewMemoryStore(), "redis": rs}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, Skill{Name: lifetime, Text: "SELECT ?vin WHERE { ?vin ?p ?o }"}))
			require.NoError(t, store.Put(ctx, Skill{Name: "urn:cx:Skill:consumer:Health", Text: "ASK {}", Distribution: DistributionProvider}))

			ok, err := store.Exists(ctx, lifetime)
			require.NoError(t, err)
			assert.True(t, ok)

			s, err := store.Get(ctx, lifetime)
			require.NoError(t, err)
			assert.Equal(t, DistributionAll, s.Distribution, "distribution defaults to all")
			assert.False(t, s.UpdatedAt.IsZero())

			names, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"urn:cx:Skill:consumer:Health", lifetime}, names)

			deleted, err := store.Delete(ctx, lifetime)
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = store.Delete(ctx, lifetime)
			require.NoError(t, err)
			assert.False(t, deleted)

			_, err = store.Get(ctx, lifetime)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
		})
	}
}

func TestStore_Validation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Put(ctx, Skill{Name: "urn:cx:Graph:x", Text: "q"})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	assert.ErrorIs(t, store.Put(ctx, Skill{Name: lifetime}), ErrEmptyText)
	assert.ErrorIs(t, store.Put(ctx, Skill{Name: lifetime, Text: "q", Distribution: "everywhere"}), ErrDistribution)
}

func TestRedisStore_SkillsDoNotExpire(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Skill{Name: lifetime, Text: "q"}))

	mr.FastForward(365 * 24 * time.Hour)
	ok, err := store.Exists(ctx, lifetime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("agentgateway:skill:"+lifetime))
}
