package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	"github.com/turtacn/FeatureScope/internal/infrastructure/database/redis"
	"github.com/turtacn/FeatureScope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FeatureScope/internal/infrastructure/storage/minio"
	grpcserver "github.com/turtacn/FeatureScope/internal/interfaces/grpc"
	httpserver "github.com/turtacn/FeatureScope/internal/interfaces/http"
	"github.com/turtacn/FeatureScope/internal/interfaces/http/handlers"
	"github.com/turtacn/FeatureScope/internal/interfaces/http/middleware"
)

// app holds the wired servers and the resources they release on exit.
type app struct {
	cfg     *config.Config
	log     logging.Logger
	manager *render.Manager
	http    *httpserver.Server
	grpc    *grpcserver.Server
	checks  []handlers.HealthChecker
	closers []func() error
}

// newApp connects the configured infrastructure and builds the servers. On
// error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, log logging.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            cfg.Metrics.Subsystem,
		EnableProcessMetrics: cfg.Metrics.Enabled,
		EnableGoMetrics:      cfg.Metrics.Enabled,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	metrics := prometheus.NewAppMetrics(collector)

	deps := appProj.Deps{Metrics: metrics, Logger: log}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		a.checks = append(a.checks, handlers.NewCheck("redis", rc.Ping))
		deps.Cache = redis.NewRedisCache(rc, log,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
		deps.Locker = redis.NewLocker(rc, log, redis.WithLockPrefix(cfg.Redis.KeyPrefix))
	}

	if cfg.MinIO.Enabled {
		mc, err := minio.NewClient(cfg.MinIO, log)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		a.closers = append(a.closers, mc.Close)
		a.checks = append(a.checks, handlers.NewCheck("minio", func(ctx context.Context) error {
			status, err := mc.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !status.Healthy {
				return errors.New(status.Error)
			}
			return nil
		}))
		deps.Snapshots = minio.NewSnapshotStore(mc, log)
	}

	var api backend.API
	if cfg.Backend.BaseURL != "" {
		bc, err := backend.NewClientFromConfig(cfg.Backend,
			backend.WithLogger(log),
			backend.WithMetrics(metrics),
			backend.WithUserAgent("featurescope/"+Version))
		if err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
		api = bc
		deps.Backend = bc
	}

	var publisher kafka.EventPublisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		if cfg.Kafka.EnsureTopic {
			if err := ensureTopic(ctx, cfg.Kafka, log); err != nil {
				return nil, err
			}
		}
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		publisher = kafka.NewEventPublisher(producer, cfg.Kafka.Topic, metrics, log)
		a.closers = append(a.closers, publisher.Close)
	}

	source, err := appProj.NewServiceFromConfig(cfg, deps)
	if err != nil {
		return nil, err
	}

	a.manager, err = render.NewManager(cfg, render.Deps{
		Backend:   api,
		Source:    source,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	a.checks = append([]handlers.HealthChecker{handlers.NewCheck("sessions", func(context.Context) error {
		if !a.manager.Ready() {
			return errors.New("render manager is shutting down")
		}
		return nil
	})}, a.checks...)

	a.http = httpserver.NewServer(cfg.Server, a.router(metrics, collector), log)

	if cfg.GRPC.Enabled {
		a.grpc = grpcserver.NewServer(cfg.GRPC,
			grpcserver.WithLogger(log),
			grpcserver.WithMetrics(metrics),
			grpcserver.WithReadiness(a.manager.Ready, 0))
	}
	return a, nil
}

func (a *app) router(metrics *prometheus.AppMetrics, collector prometheus.MetricsCollector) http.Handler {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = a.cfg.Server.AllowedOrigins

	sessions := handlers.NewSessionHandler(a.manager, metrics, a.log,
		handlers.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		handlers.WithStreamOptions(handlers.StreamOptions{WriteWait: a.cfg.Server.WriteTimeout}))

	rc := httpserver.RouterConfig{
		SessionHandler: sessions,
		LevelHandler:   handlers.NewLevelHandler(a.manager.Machine(), a.log),
		HealthHandler:  handlers.NewHealthHandler(Version, a.checks...),
		CORS:           &cors,
		Logger:         a.log,
		Metrics:        metrics,
		Mode:           a.cfg.Server.Mode,
	}
	if a.cfg.Metrics.Enabled {
		rc.MetricsCollector = collector
		rc.MetricsPath = a.cfg.Metrics.Path
	}
	return httpserver.NewRouter(rc)
}

func ensureTopic(ctx context.Context, cfg config.KafkaConfig, log logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, log)
	if err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	defer tm.Close()
	return tm.EnsureTopic(ctx, kafka.TopicConfig{
		Name:              cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	})
}

// run serves until ctx is done, then stops the servers and closes sessions.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(gctx) })
	g.Go(a.http.Start)
	if a.grpc != nil {
		g.Go(a.grpc.Start)
		g.Go(func() error {
			a.grpc.WatchReadiness(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down servers")
		stopCtx := context.Background()
		if err := a.http.Stop(stopCtx); err != nil {
			a.log.Error("HTTP shutdown failed", logging.Err(err))
		}
		if a.grpc != nil {
			if err := a.grpc.Stop(stopCtx); err != nil {
				a.log.Error("gRPC shutdown failed", logging.Err(err))
			}
		}
		return nil
	})
	return g.Wait()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", logging.Err(err))
		}
	}
	a.closers = nil
}
