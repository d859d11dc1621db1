// Package static keeps the per-operator line data fresh.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mytimetablemaker/transit-sync/internal/blobcache"
	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/odpt"
	"github.com/mytimetablemaker/transit-sync/internal/static/gtfs"
)

// GeneratorVersion is written to every manifest. Bump it when line
// derivation changes so stored manifests are treated as stale.
const GeneratorVersion = "1"

var refreshCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "transit_static_refresh_total",
	Help: "Operator refreshes by outcome (updated, unchanged, failed)",
}, []string{"operator", "outcome"})

func init() {
	prometheus.MustRegister(refreshCount)
}

// Manifest records when an operator's line data was last refreshed
type Manifest struct {
	UpdatedAt        string `json:"updated_at,omitempty"`
	GeneratedAt      string `json:"generated_at,omitempty"` // legacy name of updated_at
	GeneratorVersion string `json:"generator_version,omitempty"`
	Operator         string `json:"operator,omitempty"`
	Source           string `json:"source,omitempty"`
	Lines            int    `json:"lines"`
	Updated          bool   `json:"updated"`
}

// RunRecorder records refresh attempts; *db.DB implements it
type RunRecorder interface {
	StartRun(ctx context.Context, operatorCode string, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, runID string, updated bool, runErr error) error
}

// Refresher refreshes operators whose manifest is missing or too old
type Refresher struct {
	odpt       *odpt.Service
	gtfs       *gtfs.Pipeline
	runs       RunRecorder
	manifests  *blobcache.Cache
	token      string
	maxAgeDays int
}

// NewRefresher creates a refresher. runs may be nil.
func NewRefresher(cfg *config.Config, service *odpt.Service, pipeline *gtfs.Pipeline, runs RunRecorder, manifests *blobcache.Cache) *Refresher {
	return &Refresher{
		odpt:       service,
		gtfs:       pipeline,
		runs:       runs,
		manifests:  manifests,
		token:      cfg.ConsumerToken,
		maxAgeDays: cfg.StaticRefreshDays,
	}
}

func manifestKey(op config.Operator) string {
	return "manifest_" + op.Code + ".json"
}

// RefreshIfStale refreshes every stale operator. One operator failing does
// not stop the others; failures are logged and counted.
func (r *Refresher) RefreshIfStale(ctx context.Context, operators []config.Operator) error {
	stale := 0
	for _, op := range operators {
		path := r.manifests.Path(manifestKey(op))
		if !isStaleOrMissing(path, r.maxAgeDays) && getStoredGeneratorVersion(path) == GeneratorVersion {
			continue
		}
		stale++
		if err := ctx.Err(); err != nil {
			return err
		}
		r.refreshOperator(ctx, op)
	}
	if stale == 0 {
		log.Println("Static data is fresh, skipping refresh")
	}
	return nil
}

func (r *Refresher) refreshOperator(ctx context.Context, op config.Operator) {
	log.Printf("Refreshing %s (%s) static data...", op.Code, op.Source)

	runID := ""
	if r.runs != nil {
		id, err := r.runs.StartRun(ctx, op.Code, time.Now())
		if err != nil {
			log.Printf("Warning: failed to record refresh of %s: %v", op.Code, err)
		}
		runID = id
	}

	updated, lines, err := r.refresh(ctx, op)
	if runID != "" {
		if ferr := r.runs.FinishRun(ctx, runID, updated, err); ferr != nil {
			log.Printf("Warning: failed to finish refresh run of %s: %v", op.Code, ferr)
		}
	}
	if err != nil {
		refreshCount.WithLabelValues(op.Code, "failed").Inc()
		log.Printf("Failed to refresh %s: %v", op.Code, err)
		return
	}

	outcome := "unchanged"
	if updated {
		outcome = "updated"
	}
	refreshCount.WithLabelValues(op.Code, outcome).Inc()

	manifest := Manifest{
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339),
		GeneratorVersion: GeneratorVersion,
		Operator:         op.Code,
		Source:           string(op.Source),
		Lines:            lines,
		Updated:          updated,
	}
	if err := r.writeManifest(op, manifest); err != nil {
		log.Printf("Warning: failed to write manifest of %s: %v", op.Code, err)
		return
	}
	log.Printf("%s static data refreshed: %d lines (%s)", op.Code, lines, outcome)
}

// refresh checks op's source for new data and reloads its lines
func (r *Refresher) refresh(ctx context.Context, op config.Operator) (bool, int, error) {
	switch op.Source {
	case config.SourceGTFS:
		updated, err := r.gtfs.Refresh(ctx, op)
		if err != nil {
			return false, 0, err
		}
		lines, err := r.gtfs.Lines(ctx, op)
		if err != nil {
			return updated, 0, err
		}
		return updated, len(lines), nil
	case config.SourceODPT:
		// a first fetch counts as an update
		updated := !r.odpt.Cached(op)
		if !updated {
			changed, err := r.odpt.CheckForUpdate(ctx, op, r.token)
			if err != nil {
				return false, 0, err
			}
			updated = changed
		}
		lines, err := r.odpt.Lines(ctx, op, r.token)
		if err != nil {
			return updated, 0, err
		}
		return updated, len(lines), nil
	}
	return false, 0, fmt.Errorf("unknown source %q", op.Source)
}

func (r *Refresher) writeManifest(op config.Operator, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return r.manifests.Save(data, manifestKey(op))
}

func readManifest(manifestPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func isStaleOrMissing(manifestPath string, maxAgeDays int) bool {
	manifest, err := readManifest(manifestPath)
	if err != nil {
		// Missing or unreadable
		return true
	}

	stamp := manifest.UpdatedAt
	if stamp == "" {
		stamp = manifest.GeneratedAt
	}
	updatedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return true
	}

	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	return time.Since(updatedAt) > maxAge
}

// getStoredGeneratorVersion returns the generator version of a manifest, ""
// when missing
func getStoredGeneratorVersion(manifestPath string) string {
	manifest, err := readManifest(manifestPath)
	if err != nil {
		return ""
	}
	return manifest.GeneratorVersion
}
