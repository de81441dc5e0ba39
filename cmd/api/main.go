package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"floorplan/api/internal/app"
	"floorplan/api/internal/checkpoint"
	"floorplan/api/internal/config"
	"floorplan/api/internal/search"
	"floorplan/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}

	var (
		backend  app.Backend
		fallback search.Searcher
		db       *sql.DB
	)
	switch cfg.Store {
	case config.StorePostgres:
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := store.MigrateUp(db, store.DialectPostgres); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		backend = store.NewSQLStore(db, store.DialectPostgres)
		fallback = search.NewPgFTS(db)
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Fatalf("failed to create sqlite dir: %v", err)
		}
		var err error
		db, err = store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite open failed: %v", err)
		}
		defer db.Close()
		if err := store.MigrateUp(db, store.DialectSQLite); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		backend = store.NewSQLStore(db, store.DialectSQLite)
		fallback = search.NewLike(db)
	case config.StoreRedis:
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		backend = redisStore
		log.Printf("Using Redis for marker storage; search needs Meilisearch")
	default:
		log.Fatalf("unknown FLOORPLAN_STORE %q", cfg.Store)
	}

	searchService := search.NewService(meiliClient, fallback)
	if db != nil && meiliClient != nil {
		records, err := search.LoadAllRecords(ctx, db)
		if err != nil {
			log.Printf("WARNING: search reindex skipped: %v", err)
		} else {
			searchService.ReindexAll(records)
		}
	}

	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		log.Fatalf("failed to create checkpoint dir: %v", err)
	}
	checkpoints := checkpoint.New(cfg.CheckpointDir)

	service := app.New(cfg, backend, searchService, checkpoints)
	runCtx, stopRun := context.WithCancel(ctx)
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		service.Run(runCtx)
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Floorplan API listening on %s (store %s)", cfg.Addr, cfg.Store)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Stop the sync loop only after requests drain so its final flush sees
	// every edit.
	stopRun()
	<-syncDone
}
