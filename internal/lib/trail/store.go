package trail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dpup/rabbitmiles/server/internal/cache"
	"github.com/dpup/rabbitmiles/server/internal/config"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
	"github.com/dpup/rabbitmiles/server/internal/objectstore"
)

const networkCacheKey = "trail_network"

// GeometryStore loads the trail network from object storage and caches the
// parsed result for the configured TTL.
type GeometryStore struct {
	objects  objectstore.Store
	bucket   string
	mainKey  string
	spursKey string
	ttl      time.Duration

	cache   *cache.Cache[*Network]
	group   singleflight.Group
	metrics *metrics.Metrics

	// generation is bumped by Invalidate so that loads started before it
	// do not repopulate the cache with old geometry.
	mu         sync.Mutex
	generation uint64
}

// GeometryStoreOption customizes a GeometryStore
type GeometryStoreOption func(*GeometryStore)

// WithCache sets the cache used for parsed networks
func WithCache(c *cache.Cache[*Network]) GeometryStoreOption {
	return func(s *GeometryStore) {
		s.cache = c
	}
}

// WithMetrics records cache hits and misses
func WithMetrics(m *metrics.Metrics) GeometryStoreOption {
	return func(s *GeometryStore) {
		s.metrics = m
	}
}

// NewGeometryStore creates a GeometryStore reading cfg.MainKey and
// cfg.SpursKey from cfg.Bucket. A zero CacheTTL disables caching.
func NewGeometryStore(objects objectstore.Store, cfg config.TrailsConfig, opts ...GeometryStoreOption) *GeometryStore {
	s := &GeometryStore{
		objects:  objects,
		bucket:   cfg.Bucket,
		mainKey:  cfg.MainKey,
		spursKey: cfg.SpursKey,
		ttl:      cfg.CacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New[*Network]()
	}
	return s
}

// Load returns the trail network, from cache when fresh. Concurrent cold
// loads share a single fetch, which is not cancelled when the caller that
// started it goes away. Failures wrap ErrGeometryLoad and are not retried.
func (s *GeometryStore) Load(ctx context.Context) (*Network, error) {
	if s.ttl > 0 {
		if network, ok := s.cache.Get(networkCacheKey); ok {
			s.metrics.ObserveGeometry(metrics.ResultHit)
			return network, nil
		}
	}
	s.metrics.ObserveGeometry(metrics.ResultMiss)

	v, err, _ := s.group.Do(networkCacheKey, func() (any, error) {
		s.mu.Lock()
		generation := s.generation
		s.mu.Unlock()

		// Other callers may be waiting on this fetch
		network, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ttl > 0 && generation == s.generation {
			s.cache.Set(networkCacheKey, network, s.ttl)
		}
		return network, nil
	})
	if err != nil {
		s.metrics.ObserveGeometry(metrics.ResultError)
		return nil, err
	}

	return v.(*Network), nil
}

// Invalidate drops the cached network so the next Load fetches fresh data
func (s *GeometryStore) Invalidate() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()

	s.group.Forget(networkCacheKey)
	s.cache.Delete(networkCacheKey)
}

// fetch downloads and parses both documents concurrently
func (s *GeometryStore) fetch(ctx context.Context) (*Network, error) {
	keys := []string{s.mainKey, s.spursKey}
	parsed := make([][]Segment, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			data, err := s.objects.GetObject(gctx, s.bucket, key)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrGeometryLoad, key, err)
			}

			segments, err := ParseFeatureCollection(data)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrGeometryLoad, key, err)
			}

			parsed[i] = segments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(parsed[0])+len(parsed[1]))
	for _, p := range parsed {
		segments = append(segments, p...)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no line segments in %s or %s", ErrGeometryLoad, s.mainKey, s.spursKey)
	}

	logging.Infow(ctx, "Loaded trail network",
		"main_segments", len(parsed[0]), "spur_segments", len(parsed[1]))

	return NewNetwork(segments), nil
}
