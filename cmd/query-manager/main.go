// cmd/query-manager/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"itdocs-query/internal/common/camunda"
	"itdocs-query/internal/common/config"
	"itdocs-query/internal/common/database"
	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/common/metrics"
	"itdocs-query/internal/common/observability"
	"itdocs-query/internal/query/engine"
	"itdocs-query/internal/query/resolver"
	"itdocs-query/internal/query/validator"
	"itdocs-query/internal/store/cache"
	"itdocs-query/internal/store/postgres"
	"itdocs-query/internal/store/search"
	"itdocs-query/internal/transport/httpapi"
	processquery "itdocs-query/internal/workers/query/process-query"
)

var connectRetry = camunda.RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	log.Info("starting query manager", map[string]interface{}{"environment": cfg.App.Environment})

	obs := observability.New(cfg.App.Name, nil, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	var pg *database.PostgresClient
	err = camunda.Retry(ctx, connectRetry, log, "postgres connection", func(ctx context.Context) error {
		var err error
		if pg == nil {
			if pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
				return err
			}
		}
		return pg.Ping(ctx)
	})
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	// --- Elasticsearch ---
	esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("elasticsearch client failed", zap.Error(err))
	}
	if err := camunda.Retry(ctx, connectRetry, log, "elasticsearch connection", esClient.Ping); err != nil {
		zapLog.Fatal("elasticsearch unavailable", zap.Error(err))
	}

	// --- Redis ---
	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()
	if err := camunda.Retry(ctx, connectRetry, log, "redis connection", rdb.Ping); err != nil {
		// The cache is optional; lookups degrade to misses.
		log.Warn("redis unavailable, continuing without a warm cache", map[string]interface{}{"error": err.Error()})
	}

	// --- Query engine ---
	store := postgres.New(pg.DB, log)
	qe := engine.New(engine.ConfigFrom(cfg.Query), engine.Deps{
		Gateway:   search.NewGateway(esClient.Client, cfg.Database.Elasticsearch.Index, log),
		Entities:  store,
		Validator: validator.New(store, validator.Config{StrictClaims: cfg.Query.StrictClaims}, log),
		Resolver:  resolver.New(store, resolver.NewMapMemo(), log),
		Cache:     cache.NewRedisCache(rdb.Client),
		Audit:     store,
		Observer:  metrics.NewQueryRecorder(obs),
		Tracer:    obs.Tracer("itdocs-query/engine"),
	}, log)

	esReady := func(ctx context.Context) error {
		return esClient.CheckIndex(ctx, cfg.Database.Elasticsearch.Index)
	}
	checks := map[string]httpapi.Pinger{
		"postgres":      pg,
		"elasticsearch": httpapi.PingFunc(esReady),
		"redis":         rdb,
	}

	// --- Zeebe ---
	var (
		zeebe   *camunda.Client
		workers []*camunda.Worker
	)
	if cfg.Camunda.Enabled {
		err = camunda.Retry(ctx, connectRetry, log, "zeebe client initialization", func(context.Context) error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda)
			return err
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		checks["zeebe"] = httpapi.PingFunc(zeebe.HealthCheck)

		if config.IsWorkerEnabled(cfg, processquery.TaskType) {
			wcfg := config.GetWorkerConfig(cfg, processquery.TaskType)
			handler := processquery.NewHandler(&processquery.Config{Timeout: config.GetDuration(wcfg.Timeout)}, qe, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), processquery.TaskType, wcfg, handler.Handle, log))
		} else {
			log.Info("worker disabled", map[string]interface{}{"taskType": processquery.TaskType})
		}
	}

	// --- HTTP API, health and metrics ---
	server := httpapi.NewServer(httpapi.Config{
		Address:        cfg.Server.Address,
		ReadTimeout:    config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout:   config.GetDuration(cfg.Server.WriteTimeout),
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
	}, qe, checks, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down http server", map[string]interface{}{"error": err.Error()})
	}
	for _, w := range workers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			log.Error("error closing zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("query manager stopped", nil)
}
