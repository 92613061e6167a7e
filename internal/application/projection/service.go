package projection

import (
	"context"
	"time"

	"github.com/turtacn/FeatureScope/internal/config"
	domainProj "github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	"github.com/turtacn/FeatureScope/internal/infrastructure/database/redis"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FeatureScope/internal/infrastructure/storage/filesystem"
	"github.com/turtacn/FeatureScope/internal/infrastructure/storage/minio"
	"github.com/turtacn/FeatureScope/pkg/errors"
)

// Service loads projections and builds stores from them.
type Service interface {
	// Load returns the raw fetch result.
	Load(ctx context.Context, q Query) (*domainProj.FetchResult, error)
	// Store loads and validates a projection into a fresh Store.
	Store(ctx context.Context, q Query) (*domainProj.Store, error)
	// Kind names the configured source.
	Kind() string
	// Watch reports source changes; it returns nil at once for sources
	// that cannot change underneath a session.
	Watch(ctx context.Context, onChange func()) error
}

type serviceImpl struct {
	source  Source
	kind    string
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewService wraps source.
func NewService(source Source, kind string, metrics *prometheus.AppMetrics, logger logging.Logger) Service {
	if metrics == nil {
		metrics = prometheus.NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{source: source, kind: kind, metrics: metrics, logger: logger.Named("projection")}
}

func (s *serviceImpl) Kind() string { return s.kind }

func (s *serviceImpl) Load(ctx context.Context, q Query) (*domainProj.FetchResult, error) {
	start := time.Now()
	res, err := s.source.Load(ctx, q)
	d := time.Since(start)
	prometheus.RecordProjectionLoad(s.metrics, s.kind, err, d)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("projection load failed",
				logging.String("source", s.kind), logging.String("sae_id", q.SAEID), logging.Err(err))
		}
		return nil, err
	}
	s.logger.Debug("projection loaded",
		logging.String("source", s.kind), logging.Int("points", len(res.Coordinates)), logging.Duration("took", d))
	return res, nil
}

func (s *serviceImpl) Store(ctx context.Context, q Query) (*domainProj.Store, error) {
	res, err := s.Load(ctx, q)
	if err != nil {
		return nil, err
	}
	store, err := domainProj.Build(res)
	if err != nil {
		prometheus.RecordError(s.metrics, "projection", string(errors.GetCode(err)))
		return nil, err
	}
	return store, nil
}

func (s *serviceImpl) Watch(ctx context.Context, onChange func()) error {
	w, ok := s.source.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, onChange)
}

// Deps are the clients a source may need. Unused ones may be nil.
type Deps struct {
	Backend   backend.API
	Cache     redis.Cache
	Locker    *redis.Locker
	Snapshots minio.SnapshotStore
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

// NewSourceFromConfig picks the source named by cfg.Source.Kind.
func NewSourceFromConfig(cfg *config.Config, deps Deps) (Source, error) {
	switch cfg.Source.Kind {
	case KindBackend, "":
		if deps.Backend == nil {
			return nil, errors.New(errors.ErrCodeSourceUnsupported, "backend source requires a backend client")
		}
		var src Source = NewBackendSource(deps.Backend, cfg.Backend.SAEID, cfg.Backend.LLM)
		if cfg.Source.Cache && deps.Cache != nil {
			cached := NewCachedSource(src, deps.Cache, cfg.Source.CacheTTL, deps.Metrics, deps.Logger)
			if deps.Locker != nil {
				cached.WithFillLock(deps.Locker, cfg.Backend.Timeout)
			}
			src = cached
		}
		return src, nil
	case KindSnapshot:
		if deps.Snapshots == nil {
			return nil, errors.New(errors.ErrCodeSourceUnsupported, "snapshot source requires object storage")
		}
		return NewSnapshotSource(deps.Snapshots, cfg.Source.SnapshotKey), nil
	case KindFile:
		if cfg.Source.FilePath == "" {
			return nil, errors.New(errors.ErrCodeSourceUnsupported, "file source requires source.file_path")
		}
		fs := filesystem.NewFileStore(cfg.Source.FilePath, filesystem.WithLogger(loggerOr(deps.Logger)))
		return NewFileSource(fs), nil
	default:
		return nil, errors.New(errors.ErrCodeSourceUnsupported, "unsupported projection source").WithDetail(cfg.Source.Kind)
	}
}

// NewServiceFromConfig builds the source for cfg and wraps it.
func NewServiceFromConfig(cfg *config.Config, deps Deps) (Service, error) {
	src, err := NewSourceFromConfig(cfg, deps)
	if err != nil {
		return nil, err
	}
	kind := cfg.Source.Kind
	if kind == "" {
		kind = KindBackend
	}
	return NewService(src, kind, deps.Metrics, deps.Logger), nil
}

func loggerOr(l logging.Logger) logging.Logger {
	if l == nil {
		return logging.NewNopLogger()
	}
	return l
}
