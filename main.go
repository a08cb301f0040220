package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"circuit-ytd/internal/cache"
	"circuit-ytd/internal/config"
	"circuit-ytd/internal/logger"
	"circuit-ytd/internal/results"
	"circuit-ytd/internal/scheduler"
	"circuit-ytd/internal/standings"
	"circuit-ytd/internal/store"
	"circuit-ytd/internal/web"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) == 3 && os.Args[1] == "hash-token" {
		hash, err := web.HashToken(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment())

	appStore, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store")
	}
	defer appStore.Close()
	// a fresh calendar year is only created for throwaway stores
	_, inMemory := appStore.(*store.MemoryStore)
	if err := store.Seed(context.Background(), appStore, store.SeedOptions{Year: inMemory}); err != nil {
		log.WithError(err).Fatal("seed")
	}

	appCache := openCache(cfg, log)
	defer appCache.Close()

	svc := standings.NewService(appStore, standings.Options{
		Cache:    appCache,
		CacheTTL: cfg.CacheTTL,
		Logger:   log,
	})
	importer := results.NewImporter(appStore, log)
	server := web.NewServer(appStore, svc, importer, web.Options{
		AdminTokenHash: cfg.AdminTokenHash,
		CorsOrigin:     cfg.CorsOrigin,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
	})

	r := chi.NewRouter()
	r.Mount("/", server.Routes())

	if cfg.IsLambda() {
		log.Info("Starting in Lambda mode")
		adapter := httpadapter.New(r)
		lambda.Start(adapter.ProxyWithContext)
		return
	}

	if cfg.RecalcSchedule != "" {
		jobs := scheduler.New(appStore, svc, log, cfg.RequestTimeout)
		if err := jobs.Start(cfg.RecalcSchedule); err != nil {
			log.WithError(err).Fatal("scheduler")
		}
		defer jobs.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", httpServer.Addr).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
	log.Info("Server stopped")
}

func openStore(cfg *config.Config, log *logrus.Logger) (store.Store, error) {
	switch {
	case cfg.PostgresDSN != "":
		log.Info("Using Postgres store")
		return store.NewPostgresStore(cfg.PostgresDSN, store.PostgresOptions{
			MigrationsDir: cfg.PostgresMigrationsDir,
		})
	case cfg.SupabaseURL != "":
		log.Info("Using Supabase store")
		return store.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, store.SupabaseOptions{
			Logger: log,
		})
	case cfg.DBPath != "":
		log.WithField("path", cfg.DBPath).Info("Using SQLite store")
		return store.NewSQLiteStore(cfg.DBPath, store.SQLiteOptions{
			MigrationsDir: cfg.DBMigrationsDir,
		})
	}
	log.Warn("No database configured, using in-memory store")
	return store.NewMemoryStore(), nil
}

// openCache falls back to the in-process cache when Redis is not configured
// or not reachable.
func openCache(cfg *config.Config, log *logrus.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache()
	}
	redisCache, err := cache.NewRedisCache(cfg.RedisURL, cache.RedisOptions{
		KeyPrefix: "circuit-ytd:",
		Logger:    log,
	})
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-memory cache")
		return cache.NewMemoryCache()
	}
	return redisCache
}
