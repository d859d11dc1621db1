package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mytimetablemaker/transit-sync/internal/api"
	"github.com/mytimetablemaker/transit-sync/internal/api/handlers"
	"github.com/mytimetablemaker/transit-sync/internal/app"
	"github.com/mytimetablemaker/transit-sync/internal/config"
)

func main() {
	app.InitLogging()
	log.Println("Starting transit syncer...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Config loaded: %d operators, refresh every %v, retain %v", len(cfg.Operators), cfg.RefreshInterval, cfg.RetentionDuration)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Storage and services
	// ═══════════════════════════════════════════════════════
	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Static data refresh (startup)
	// ═══════════════════════════════════════════════════════
	log.Println("Checking static data freshness...")
	refreshOnce(ctx, a)

	go func() {
		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Println("Running static data freshness check...")
				refreshOnce(ctx, a)
			case <-ctx.Done():
				log.Println("Static refresh loop stopped")
				return
			}
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 3: HTTP surface
	// ═══════════════════════════════════════════════════════
	router := api.NewRouter(api.Handlers{
		Health:     handlers.NewHealthHandler(a.DB, cfg.Operators),
		Documents:  handlers.NewDocumentHandler(a.Store, a.Synthesizer),
		Timetables: handlers.NewTimetableHandler(a.Catalog, a.Synthesizer),
	})
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Graceful shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Goodbye!")
}

func refreshOnce(ctx context.Context, a *app.App) {
	if err := a.Refresher.RefreshIfStale(ctx, a.Config.Operators); err != nil {
		log.Printf("Warning: static data refresh failed: %v", err)
	}

	if err := a.DB.Cleanup(ctx, a.Config.RetentionDuration); err != nil {
		log.Printf("Cleanup error: %v", err)
	}
}
