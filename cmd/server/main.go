package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/rpattn/auditq/internal/api"
	"github.com/rpattn/auditq/internal/auditor"
	"github.com/rpattn/auditq/internal/auth"
	"github.com/rpattn/auditq/internal/config"
	"github.com/rpattn/auditq/internal/db"
	"github.com/rpattn/auditq/internal/export"
	"github.com/rpattn/auditq/internal/history"
	"github.com/rpattn/auditq/internal/middleware"
	"github.com/rpattn/auditq/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	entries, cleanup, err := openLogStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open log store: %v", err)
	}
	defer cleanup()

	// Wire tracked types. Every audited type needs both a lookup source and
	// write-path options; anything not declared here is rejected at request
	// time as a configuration defect.
	registry := auditor.NewRegistry()
	engine := history.NewEngine()
	for _, tracked := range cfg.Tracking {
		registry.Register(tracked.ObjectType, auditor.Options{
			IncludeFields: tracked.IncludeFields,
			ExcludeFields: tracked.ExcludeFields,
			MaskFields:    tracked.MaskFields,
		})
		engine.Register(tracked.ObjectType, entries)
		log.Printf("Tracking object type %q", tracked.ObjectType)
	}
	if len(cfg.Tracking) == 0 {
		log.Println("Warning: no tracked object types configured; all queries will be rejected")
	}

	recorder := auditor.NewRecorder(registry, entries)
	exporter := export.NewService(entries)
	handler := api.NewHandler(engine, registry, recorder, entries, exporter)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	router := chi.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(auth.Middleware)
	router.Mount("/api", handler.Routes())

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting audit log server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// openLogStore opens the configured backend and returns the repository plus
// a cleanup func.
func openLogStore(ctx context.Context, cfg config.Config) (repository.LogEntryRepository, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		repo, err := repository.OpenSQLiteLogEntryRepository(cfg.Storage.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := repo.Close(); err != nil {
				log.Printf("Failed to close sqlite store: %v", err)
			}
		}
		return repo, cleanup, nil
	default:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(cfg.Database); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return repository.NewLogEntryRepository(conn.Pool), conn.Close, nil
	}
}
