package container

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"catalog/taxonomy/internal/client"
	"catalog/taxonomy/internal/config"
	"catalog/taxonomy/internal/expansion"
	"catalog/taxonomy/internal/metrics"
	"catalog/taxonomy/internal/queue"
	"catalog/taxonomy/internal/repository"
	"catalog/taxonomy/internal/server"
	"catalog/taxonomy/internal/service"
	"catalog/taxonomy/internal/state"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Client   client.CatalogClient
	Store    *service.Store
	Service  *service.Service
	Server   *server.Server

	// Optional; nil when redis or the database is disabled.
	Bus          queue.InvalidationBus
	StateManager state.StateManager
	Repository   repository.TaxonomyRepository
	Syncer       *service.Syncer

	// Origin tags invalidations published by this instance.
	Origin string

	db *pgxpool.Pool
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Origin:   uuid.NewString(),
	}

	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(container.Registry)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})

		// Test connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")

		container.Bus = queue.NewRedisBus(rdb, cfg.Redis)
		container.StateManager = state.NewRedisStateManager(rdb)
	}

	if cfg.Database.Enabled {
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			container.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("✅ Connected to Postgres successfully")

		container.db = db
		container.Repository = repository.NewTaxonomyRepository(db)
	}

	catalogClient := client.NewCatalogClient(cfg.Catalog, m)
	container.Client = catalogClient

	store := service.NewStore(catalogClient,
		service.WithMaxWorkers(cfg.Catalog.MaxWorkers),
		service.WithEagerPopulation(cfg.Taxonomy.EagerPopulation),
		service.WithMetrics(m),
	)
	container.Store = store

	commandOpts := []service.CommandsOption{
		service.WithFullRefetchOnSubSubMutation(cfg.Taxonomy.FullRefetchOnSubSubMutation),
		service.WithCommandMetrics(m),
	}
	if container.Bus != nil {
		commandOpts = append(commandOpts, service.WithPublisher(container.Bus, container.Origin))
	}
	commands := service.NewCommands(catalogClient, store, commandOpts...)

	container.Service = service.NewService(store, commands, expansion.New())
	container.Server = server.New(container.Service, container.Registry)

	if container.Repository != nil {
		container.Syncer = service.NewSyncer(container.Service, container.Repository, container.StateManager)
	}

	return container, nil
}

// Run serves the HTTP adapter and, when redis is enabled, applies
// invalidations published by other instances.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Server.Run(ctx, c.Config.Server.Addr())
	})

	if c.Bus != nil {
		g.Go(func() error {
			return c.Bus.Consume(ctx, c.Service.ApplyInvalidation)
		})
	}

	// Warm the cache so the first page load does not wait on the API.
	g.Go(func() error {
		if _, err := c.Service.Tree(ctx); err != nil {
			log.Warnf("⚠️ Initial taxonomy load failed: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// Sync mirrors the taxonomy into the database.
func (c *Container) Sync(ctx context.Context) error {
	if c.Syncer == nil {
		return fmt.Errorf("sync requires database.enabled")
	}
	_, err := c.Syncer.Sync(ctx)
	return err
}

// Close performs cleanup when shutting down
func (c *Container) Close() {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			log.Warnf("⚠️ Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
}
