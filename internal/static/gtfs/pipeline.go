package gtfs

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mytimetablemaker/transit-sync/internal/blobcache"
	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/fetch"
	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
)

// State is the cache state of one GTFS cache key
type State int

const (
	StateNoCache State = iota
	StateDownloading
	StateCached // archive cached, not extracted
	StateExtracted
)

func (s State) String() string {
	switch s {
	case StateDownloading:
		return "downloading"
	case StateCached:
		return "cached"
	case StateExtracted:
		return "extracted"
	}
	return "no-cache"
}

// Pipeline downloads, caches and extracts GTFS archives and derives lines
// from them. At most one download or extraction runs per cache key.
type Pipeline struct {
	cache   *blobcache.Cache
	fetcher *fetch.Fetcher
	store   kvstore.Store
	token   string
	locale  string

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]bool
	feeds    map[string]*Feed // by extracted directory
}

// NewPipeline creates a Pipeline. locale selects translations; token is sent
// to operators that require authentication.
func NewPipeline(cache *blobcache.Cache, fetcher *fetch.Fetcher, store kvstore.Store, token, locale string) *Pipeline {
	return &Pipeline{
		cache:    cache,
		fetcher:  fetcher,
		store:    store,
		token:    token,
		locale:   locale,
		inflight: make(map[string]bool),
		feeds:    make(map[string]*Feed),
	}
}

// CacheKey is "gtfs_{operator}" or "gtfs_{operator}_{version}" when the
// operator's feed carries a version token
func CacheKey(op config.Operator) string {
	if v := op.VersionToken(); v != "" {
		return "gtfs_" + op.Code + "_" + v
	}
	return "gtfs_" + op.Code
}

func archiveKey(cacheKey string) string { return cacheKey + ".zip" }

// State reports where op's feed is in the download / extract cycle
func (p *Pipeline) State(op config.Operator) State {
	key := CacheKey(op)
	p.mu.Lock()
	downloading := p.inflight[key]
	p.mu.Unlock()

	switch {
	case p.cache.DirectoryExists(key):
		return StateExtracted
	case downloading:
		return StateDownloading
	case p.cache.Exists(archiveKey(key)):
		return StateCached
	}
	return StateNoCache
}

// EnsureExtracted returns the directory of op's extracted feed, downloading
// and extracting as needed. A cached archive is extracted without
// re-downloading.
func (p *Pipeline) EnsureExtracted(ctx context.Context, op config.Operator) (string, error) {
	key := CacheKey(op)
	if dir := p.cache.LoadDirectoryPath(key); dir != "" {
		return dir, nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if dir := p.cache.LoadDirectoryPath(key); dir != "" {
			return dir, nil
		}
		if !p.cache.Exists(archiveKey(key)) {
			if err := p.download(ctx, op, key); err != nil {
				return "", err
			}
		}
		return p.extract(key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh checks op's feed for a new version. Versioned feeds only need
// EnsureExtracted: a new version is a new cache key. Conditional feeds are
// re-requested with the stored validators and re-extracted on change.
func (p *Pipeline) Refresh(ctx context.Context, op config.Operator) (bool, error) {
	key := CacheKey(op)
	if op.VersionToken() != "" || !op.Conditional || !p.cache.Exists(archiveKey(key)) {
		had := p.cache.DirectoryExists(key)
		_, err := p.EnsureExtracted(ctx, op)
		return err == nil && !had, err
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		p.setInflight(key, true)
		defer p.setInflight(key, false)

		result, err := p.fetcher.FetchConditional(ctx, fetch.ConditionalRequest{
			URL:           op.GTFSURL,
			ETag:          p.store.GetString(ctx, kvstore.ETagKey(key), ""),
			LastModified:  p.store.GetString(ctx, kvstore.LastModifiedKey(key), ""),
			Authorization: p.authFor(op),
		})
		if err != nil {
			return false, err
		}
		if result.NotModified || bytes.Equal(result.Body, p.cache.Load(archiveKey(key))) {
			return false, nil
		}
		if err := p.saveArchive(ctx, key, result.Body, result.ETag, result.LastModified); err != nil {
			return false, err
		}
		if err := p.cache.RemoveDirectory(key); err != nil {
			return false, err
		}
		if _, err := p.extract(key); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Pipeline) download(ctx context.Context, op config.Operator, key string) error {
	p.setInflight(key, true)
	defer p.setInflight(key, false)

	log.Printf("GTFS: downloading %s from %s", op.Code, op.GTFSURL)
	if op.Conditional {
		result, err := p.fetcher.FetchConditional(ctx, fetch.ConditionalRequest{
			URL:           op.GTFSURL,
			Authorization: p.authFor(op),
		})
		if err != nil {
			return err
		}
		return p.saveArchive(ctx, key, result.Body, result.ETag, result.LastModified)
	}

	resp, err := p.fetcher.FetchOK(ctx, op.GTFSURL, p.authFor(op))
	if err != nil {
		return err
	}
	return p.saveArchive(ctx, key, resp.Body, "", "")
}

func (p *Pipeline) saveArchive(ctx context.Context, key string, body []byte, etag, lastModified string) error {
	if err := p.cache.Save(body, archiveKey(key)); err != nil {
		return err
	}
	for k, v := range map[string]string{
		kvstore.ETagKey(key):         etag,
		kvstore.LastModifiedKey(key): lastModified,
	} {
		var err error
		if v == "" {
			err = p.store.Remove(ctx, k)
		} else {
			err = p.store.PutString(ctx, k, v)
		}
		if err != nil {
			log.Printf("Warning: failed to store %s: %v", k, err)
		}
	}
	return nil
}

// extract unzips the cached archive into a fresh workspace and moves the
// whole directory into the cache
func (p *Pipeline) extract(key string) (string, error) {
	workspace := filepath.Join(os.TempDir(), "gtfs-extract-"+uuid.NewString())
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return "", err
	}
	defer os.RemoveAll(workspace)

	if err := unzip(p.cache.Path(archiveKey(key)), workspace); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", key, err)
	}
	if err := p.cache.SaveDirectory(workspace, key); err != nil {
		return "", err
	}

	dir := p.cache.LoadDirectoryPath(key)
	p.mu.Lock()
	delete(p.feeds, dir)
	p.mu.Unlock()

	log.Printf("GTFS: extracted %s", key)
	return dir, nil
}

func unzip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !filepath.IsLocal(f.Name) {
			return fmt.Errorf("illegal path %q in archive", f.Name)
		}
		target := filepath.Join(dest, f.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (p *Pipeline) authFor(op config.Operator) string {
	if !op.RequiresAuth {
		return ""
	}
	return fetch.BearerAuth(p.token)
}

func (p *Pipeline) setInflight(key string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on {
		p.inflight[key] = true
	} else {
		delete(p.inflight, key)
	}
}
