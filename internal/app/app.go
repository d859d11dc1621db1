// Package app wires configuration, storage and the data services together
// for the commands.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mytimetablemaker/transit-sync/internal/blobcache"
	"github.com/mytimetablemaker/transit-sync/internal/catalog"
	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/db"
	"github.com/mytimetablemaker/transit-sync/internal/fetch"
	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/odpt"
	"github.com/mytimetablemaker/transit-sync/internal/static"
	"github.com/mytimetablemaker/transit-sync/internal/static/gtfs"
	"github.com/mytimetablemaker/transit-sync/internal/timetable"
)

// InitLogging writes timestamped logs with microseconds to stdout
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// App holds the long-lived services of a process
type App struct {
	Config      *config.Config
	DB          *db.DB
	Store       kvstore.Store
	Catalog     *catalog.Catalog
	Synthesizer *timetable.Synthesizer
	Refresher   *static.Refresher

	closers []func()
}

// Open connects the database and key-value store and builds the services
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	database, err := db.Connect(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.DB = database
	a.closers = append(a.closers, func() { database.Close() })

	if err := database.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	if cfg.DatabaseURL != "" {
		pg, err := kvstore.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = pg
		a.closers = append(a.closers, pg.Close)
		log.Println("Key-value store: Postgres")
	} else {
		a.Store = kvstore.NewSQLite(database)
		log.Println("Key-value store: SQLite")
	}

	caches := make(map[string]*blobcache.Cache)
	for _, name := range []string{"blobs", "manifests"} {
		c, err := blobcache.New(filepath.Join(cfg.CacheDir, name))
		if err != nil {
			a.Close()
			return nil, err
		}
		caches[name] = c
	}
	snapshots, err := blobcache.New(cfg.SnapshotDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.New(fetch.DefaultOptions())
	service := odpt.NewService(cfg.APIBaseURL, fetcher, caches["blobs"], snapshots, a.Store)
	timetables := odpt.NewTimetableSource(cfg.APIBaseURL, fetcher, cfg.ConsumerToken)
	pipeline := gtfs.NewPipeline(caches["blobs"], fetcher, a.Store, cfg.ConsumerToken, cfg.Locale)

	a.Catalog = catalog.New(cfg, service, timetables, pipeline)
	a.Synthesizer = timetable.NewSynthesizer(a.Store, cfg.FetchConcurrency)
	a.Refresher = static.NewRefresher(cfg, service, pipeline, database, caches["manifests"])
	return a, nil
}

// Close releases the store and database in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
