// Package projection loads projection fetch results from the configured
// origin: the analysis backend, a cached backend, an object-storage snapshot
// or a local file.
package projection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	domainProj "github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	"github.com/turtacn/FeatureScope/internal/infrastructure/database/redis"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FeatureScope/internal/infrastructure/storage/filesystem"
	"github.com/turtacn/FeatureScope/internal/infrastructure/storage/minio"
)

// Source kinds.
const (
	KindBackend  = "backend"
	KindFile     = "file"
	KindSnapshot = "snapshot"
)

// Query selects a projection.
type Query struct {
	SAEID string `json:"sae_id"`
	Query string `json:"query"`
	LLM   string `json:"llm"`

	// SnapshotKey overrides the configured snapshot object.
	SnapshotKey string `json:"snapshot_key,omitempty"`
}

// Source produces a fetch result for a query.
type Source interface {
	Load(ctx context.Context, q Query) (*domainProj.FetchResult, error)
}

// Watcher is implemented by sources that can report changes.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Backend
// ─────────────────────────────────────────────────────────────────────────────

// BackendSource fetches from the analysis backend.
type BackendSource struct {
	api          backend.API
	defaultSAEID string
	defaultLLM   string
}

// NewBackendSource fills empty SAE and LLM fields from the given defaults.
func NewBackendSource(api backend.API, defaultSAEID, defaultLLM string) *BackendSource {
	return &BackendSource{api: api, defaultSAEID: defaultSAEID, defaultLLM: defaultLLM}
}

func (s *BackendSource) resolve(q Query) Query {
	if q.SAEID == "" {
		q.SAEID = s.defaultSAEID
	}
	if q.LLM == "" {
		q.LLM = s.defaultLLM
	}
	return q
}

func (s *BackendSource) Load(ctx context.Context, q Query) (*domainProj.FetchResult, error) {
	q = s.resolve(q)
	return s.api.FetchScatter(ctx, backend.ScatterQuery{SAEID: q.SAEID, Query: q.Query, LLM: q.LLM})
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis cache decorator
// ─────────────────────────────────────────────────────────────────────────────

// CachedSource serves repeated queries from Redis. Concurrent misses for
// one query share a single upstream load; with a fill lock that holds across
// replicas too.
type CachedSource struct {
	inner    Source
	cache    redis.Cache
	ttl      time.Duration
	locker   *redis.Locker
	lockWait time.Duration
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

// NewCachedSource wraps inner.
func NewCachedSource(inner Source, cache redis.Cache, ttl time.Duration, metrics *prometheus.AppMetrics, logger logging.Logger) *CachedSource {
	if metrics == nil {
		metrics = prometheus.NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachedSource{inner: inner, cache: cache, ttl: ttl, metrics: metrics, logger: logger.Named("projection-cache")}
}

// WithFillLock makes a miss wait up to wait for another replica filling the
// same key before loading upstream itself.
func (s *CachedSource) WithFillLock(locker *redis.Locker, wait time.Duration) *CachedSource {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	s.locker = locker
	s.lockWait = wait
	return s
}

// CacheKey is the cache key for q.
func CacheKey(q Query) string {
	h := sha256.Sum256([]byte(q.Query))
	return "scatter:" + q.SAEID + ":" + q.LLM + ":" + hex.EncodeToString(h[:8])
}

func (s *CachedSource) Load(ctx context.Context, q Query) (*domainProj.FetchResult, error) {
	if bs, ok := s.inner.(*BackendSource); ok {
		q = bs.resolve(q)
	}
	key := CacheKey(q)
	var res domainProj.FetchResult
	hit, err := s.cache.GetOrSet(ctx, key, &res, s.ttl, func(ctx context.Context) (interface{}, error) {
		if s.locker != nil {
			release, filled := s.awaitFill(ctx, key)
			defer release()
			if filled != nil {
				return filled, nil
			}
		}
		r, err := s.inner.Load(ctx, q)
		if err != nil || r == nil {
			return nil, err
		}
		if s.locker != nil {
			// Waiting replicas read the key as soon as the lock drops.
			if err := s.cache.Set(ctx, key, r, s.ttl); err != nil {
				s.logger.Warn("cache write failed", logging.String("key", key), logging.Err(err))
			}
		}
		return r, nil
	})
	prometheus.RecordCacheAccess(s.metrics, "projection", hit)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// awaitFill takes the fill lock for key. When another replica filled the key
// while this one waited, the cached result is returned.
func (s *CachedSource) awaitFill(ctx context.Context, key string) (release func(), filled *domainProj.FetchResult) {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	lock, err := s.locker.Acquire(waitCtx, key)
	if err != nil {
		s.logger.Warn("cache fill lock unavailable, loading directly", logging.String("key", key), logging.Err(err))
		return func() {}, nil
	}
	release = func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logger.Warn("cache fill lock release failed", logging.String("key", key), logging.Err(err))
		}
	}
	var cached domainProj.FetchResult
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return release, &cached
	}
	return release, nil
}

// Invalidate drops every cached projection.
func (s *CachedSource) Invalidate(ctx context.Context) (int64, error) {
	return s.cache.DeleteByPrefix(ctx, "scatter:")
}

// ─────────────────────────────────────────────────────────────────────────────
// Object storage snapshot
// ─────────────────────────────────────────────────────────────────────────────

// SnapshotSource reads a published snapshot. The query text is ignored.
type SnapshotSource struct {
	store      minio.SnapshotStore
	defaultKey string
}

// NewSnapshotSource reads defaultKey unless a query names another key.
func NewSnapshotSource(store minio.SnapshotStore, defaultKey string) *SnapshotSource {
	return &SnapshotSource{store: store, defaultKey: defaultKey}
}

func (s *SnapshotSource) Load(ctx context.Context, q Query) (*domainProj.FetchResult, error) {
	key := q.SnapshotKey
	if key == "" {
		key = s.defaultKey
	}
	return s.store.Load(ctx, key)
}

// ─────────────────────────────────────────────────────────────────────────────
// Local file
// ─────────────────────────────────────────────────────────────────────────────

// FileSource reads a local projection file and reports rewrites of it.
type FileSource struct {
	file *filesystem.FileStore
}

// NewFileSource wraps file.
func NewFileSource(file *filesystem.FileStore) *FileSource {
	return &FileSource{file: file}
}

func (s *FileSource) Load(ctx context.Context, _ Query) (*domainProj.FetchResult, error) {
	return s.file.Load(ctx)
}

// Watch blocks until ctx is done, calling onChange after each rewrite.
func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	return s.file.Watch(ctx, onChange)
}
