package skill

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/cache"
	"github.com/catenax-ng/product-agents-edc-sub000/internal/metrics"
)

const keyPrefix = "skill:"

// RedisStore keeps skills in redis through the cache manager. Skills never
// expire.
type RedisStore struct {
	cache   *cache.Manager
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewRedisStore creates a store on c. m may be nil.
func NewRedisStore(c *cache.Manager, m *metrics.Collector, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		cache:   c,
		metrics: m,
		logger:  logger.With(zap.String("component", "skill_store")),
		now:     time.Now,
	}
}

func (r *RedisStore) Put(ctx context.Context, s Skill) error {
	if err := Validate(&s); err != nil {
		return err
	}
	s.UpdatedAt = r.now().UTC()
	if err := r.cache.SetJSON(ctx, keyPrefix+s.Name, s, cache.NoExpiration); err != nil {
		return fmt.Errorf("store skill %s: %w", s.Name, err)
	}
	r.logger.Info("skill stored", zap.String("skill", s.Name), zap.String("distribution", string(s.Distribution)))
	return nil
}

func (r *RedisStore) Get(ctx context.Context, name string) (*Skill, error) {
	var s Skill
	if err := r.cache.GetJSON(ctx, keyPrefix+name, &s); err != nil {
		if cache.IsCacheMiss(err) {
			r.metrics.RecordCacheMiss("skill")
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("load skill %s: %w", name, err)
	}
	r.metrics.RecordCacheHit("skill")
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, name string) (bool, error) {
	n, err := r.cache.Delete(ctx, keyPrefix+name)
	if err != nil {
		return false, fmt.Errorf("delete skill %s: %w", name, err)
	}
	return n > 0, nil
}

func (r *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := r.cache.Exists(ctx, keyPrefix+name)
	if err != nil {
		return false, fmt.Errorf("lookup skill %s: %w", name, err)
	}
	return n > 0, nil
}

// List returns the stored names, sorted.
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	keys, err := r.cache.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, keyPrefix)
	}
	sort.Strings(names)
	return names, nil
}
