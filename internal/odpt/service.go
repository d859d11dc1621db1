// Package odpt reads operator line metadata and timetables from an
// ODPT-style JSON API.
package odpt

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/mytimetablemaker/transit-sync/internal/blobcache"
	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/fetch"
	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// Service fetches, caches and parses operator line metadata
type Service struct {
	baseURL   string
	fetcher   *fetch.Fetcher
	cache     *blobcache.Cache
	snapshots *blobcache.Cache
	store     kvstore.Store
}

// NewService creates a Service. snapshots is a second cache directory kept
// in step with cache and read when cache has lost an entry.
func NewService(baseURL string, fetcher *fetch.Fetcher, cache, snapshots *blobcache.Cache, store kvstore.Store) *Service {
	return &Service{
		baseURL:   baseURL,
		fetcher:   fetcher,
		cache:     cache,
		snapshots: snapshots,
		store:     store,
	}
}

// CacheKey is the blob key of an operator's metadata: "{kind}_{operator}"
func CacheKey(op config.Operator) string {
	return string(op.Kind) + "_" + op.Code
}

// OperatorURL returns the metadata endpoint for op
func (s *Service) OperatorURL(op config.Operator) string {
	resource := "odpt:Railway"
	if op.Kind == models.KindBus {
		resource = "odpt:BusroutePattern"
	}
	q := url.Values{}
	q.Set("odpt:operator", "odpt.Operator:"+op.Code)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, resource, q.Encode())
}

// FetchOperatorData downloads op's metadata, stores it in the cache and the
// snapshot directory, and records the response validators
func (s *Service) FetchOperatorData(ctx context.Context, op config.Operator, token string) ([]byte, error) {
	resp, err := s.fetcher.FetchOK(ctx, s.OperatorURL(op), fetch.BearerAuth(token))
	if err != nil {
		return nil, err
	}

	key := CacheKey(op)
	s.persist(ctx, key, resp.Body, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"))
	return resp.Body, nil
}

// Cached reports whether op's metadata is in the cache
func (s *Service) Cached(op config.Operator) bool {
	return s.cache.Exists(CacheKey(op))
}

// CheckForUpdate asks the server whether op's metadata changed. It returns
// false without a request when nothing is cached yet or no validators are on
// record. A 304 or a byte-identical body is not an update; any other 200 is,
// and its bytes and validators have been stored when true is returned.
func (s *Service) CheckForUpdate(ctx context.Context, op config.Operator, token string) (bool, error) {
	key := CacheKey(op)
	cached := s.cache.Load(key)
	if cached == nil {
		return false, nil
	}

	etag := s.store.GetString(ctx, kvstore.ETagKey(key), "")
	lastModified := s.store.GetString(ctx, kvstore.LastModifiedKey(key), "")
	if etag == "" && lastModified == "" {
		return false, nil
	}

	result, err := s.fetcher.FetchConditional(ctx, fetch.ConditionalRequest{
		URL:           s.OperatorURL(op),
		ETag:          etag,
		LastModified:  lastModified,
		Authorization: fetch.BearerAuth(token),
	})
	if err != nil {
		return false, err
	}
	if result.NotModified || bytes.Equal(result.Body, cached) {
		return false, nil
	}

	s.persist(ctx, key, result.Body, result.ETag, result.LastModified)
	return true, nil
}

// Lines returns op's lines from the cache, the snapshot directory, or the
// network, in that order
func (s *Service) Lines(ctx context.Context, op config.Operator, token string) ([]models.Line, error) {
	key := CacheKey(op)

	if data := s.cache.Load(key); data != nil {
		lines, err := ParseLines(op.Kind, data, op.Code)
		if err == nil {
			return lines, nil
		}
		log.Printf("Warning: cached %s is unreadable, refetching: %v", describe(op.Code, op.Kind), err)
	}

	if s.snapshots != nil {
		if data := s.snapshots.Load(key); data != nil {
			lines, err := ParseLines(op.Kind, data, op.Code)
			if err == nil {
				if err := s.cache.Save(data, key); err != nil {
					log.Printf("Warning: failed to restore %s from snapshot: %v", key, err)
				}
				return lines, nil
			}
		}
	}

	data, err := s.FetchOperatorData(ctx, op, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", describe(op.Code, op.Kind), err)
	}
	return ParseLines(op.Kind, data, op.Code)
}

// persist writes body to both caches and records the validators. Cache
// write failures are logged; the caller still has the bytes.
func (s *Service) persist(ctx context.Context, key string, body []byte, etag, lastModified string) {
	if err := s.cache.Save(body, key); err != nil {
		log.Printf("Warning: failed to cache %s: %v", key, err)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Save(body, key); err != nil {
			log.Printf("Warning: failed to snapshot %s: %v", key, err)
		}
	}
	s.putValidator(ctx, kvstore.ETagKey(key), etag)
	s.putValidator(ctx, kvstore.LastModifiedKey(key), lastModified)
}

func (s *Service) putValidator(ctx context.Context, key, value string) {
	var err error
	if value == "" {
		err = s.store.Remove(ctx, key)
	} else {
		err = s.store.PutString(ctx, key, value)
	}
	if err != nil {
		log.Printf("Warning: failed to store %s: %v", key, err)
	}
}
