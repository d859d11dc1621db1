package odpt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytimetablemaker/transit-sync/internal/blobcache"
	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/fetch"
	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

const railwayJSON = `[
  {
    "@type": "odpt:Railway",
    "owl:sameAs": "odpt.Railway:Toei.Asakusa",
    "dc:title": "浅草線",
    "odpt:railwayTitle": {"ja": "浅草線", "en": "Asakusa Line"},
    "odpt:lineCode": "A",
    "odpt:lineColor": "#E85298",
    "odpt:ascendingRailDirection": "odpt.RailDirection:Northbound",
    "odpt:descendingRailDirection": "odpt.RailDirection:Southbound",
    "odpt:stationOrder": [
      {"odpt:index": 2, "odpt:station": "odpt.Station:Toei.Asakusa.Magome", "odpt:stationTitle": {"ja": "馬込", "en": "Magome"}},
      {"odpt:index": 1, "odpt:station": "odpt.Station:Toei.Asakusa.NishiMagome", "odpt:stationTitle": {"ja": "西馬込", "en": "Nishi-magome"}}
    ]
  }
]`

const busJSON = `[
  {
    "@type": "odpt:BusroutePattern",
    "owl:sameAs": "odpt.BusroutePattern:Toei.Ou57.1001",
    "dc:title": "王57",
    "odpt:busroute": "odpt.Busroute:Toei.Ou57",
    "odpt:busstopPoleOrder": [
      {"odpt:index": 1, "odpt:busstopPole": "odpt.BusstopPole:Toei.Akabaneeki.1.1", "odpt:note": "赤羽駅東口:1番"},
      {"odpt:index": 2, "odpt:busstopPole": "odpt.BusstopPole:Toei.Oji.2.1"}
    ]
  },
  {"@type": "odpt:Busroute", "owl:sameAs": "odpt.Busroute:Toei.Ou57"}
]`

type fixture struct {
	service *Service
	store   *kvstore.Memory
	cache   *blobcache.Cache
	op      config.Operator
	hits    *atomic.Int32
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cache, err := blobcache.New(t.TempDir())
	require.NoError(t, err)
	snapshots, err := blobcache.New(t.TempDir())
	require.NoError(t, err)
	store := kvstore.NewMemory()

	return &fixture{
		service: NewService(server.URL, fetch.New(fetch.DefaultOptions()), cache, snapshots, store),
		store:   store,
		cache:   cache,
		op:      config.Operator{Code: "Toei", Kind: models.KindRailway, Source: config.SourceODPT},
		hits:    hits,
	}
}

func TestParseRailways(t *testing.T) {
	lines, err := ParseRailways([]byte(railwayJSON), "Toei")
	require.NoError(t, err)
	require.Len(t, lines, 1)

	l := lines[0]
	assert.Equal(t, "odpt.Railway:Toei.Asakusa", l.Code)
	assert.Equal(t, "浅草線", l.Name)
	assert.Equal(t, "Asakusa Line", l.Title.Secondary)
	assert.Equal(t, "#E85298", l.LineColor, "falls back to odpt:lineColor")
	require.Len(t, l.StopOrder, 2)
	assert.Equal(t, "西馬込", l.StopOrder[0].Name, "stations are ordered by odpt:index")
	assert.Equal(t, 1, l.StopOrder[1].Index)
	assert.Equal(t, "馬込", l.Destination)
	assert.Equal(t, "odpt.Railway:Toei.Asakusa", l.StopOrder[0].LineCode)
}

func TestRailwayDestinationPrecedence(t *testing.T) {
	d := RailwayDTO{SameAs: "odpt.Railway:X.Y", DescendingDirection: "odpt.RailDirection:Outbound"}
	assert.Equal(t, "Outbound", railwayLine(d, "X").Destination)

	d.DestinationStation = "odpt.Station:X.Y.Terminal"
	assert.Equal(t, "Terminal", railwayLine(d, "X").Destination)
}

func TestParseBusroutePatternsFiltersType(t *testing.T) {
	lines, err := ParseBusroutePatterns([]byte(busJSON), "Toei")
	require.NoError(t, err)
	require.Len(t, lines, 1)

	l := lines[0]
	assert.Equal(t, models.KindBus, l.Kind)
	assert.Equal(t, "odpt.Busroute:Toei.Ou57", l.LineCode)
	require.Len(t, l.BusStopOrder, 2)
	assert.Equal(t, "赤羽駅東口", l.BusStopOrder[0].Name)
	assert.Equal(t, "Oji", l.BusStopOrder[1].Name)
	assert.Equal(t, "Oji", l.Destination)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := ParseRailways([]byte("{not json"), "Toei")
	var invalid *models.InvalidDataError
	assert.ErrorAs(t, err, &invalid)
}

func TestFetchOperatorDataStoresValidators(t *testing.T) {
	var gotAuth string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "odpt.Operator:Toei", r.URL.Query().Get("odpt:operator"))
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(railwayJSON))
	})
	ctx := context.Background()

	data, err := f.service.FetchOperatorData(ctx, f.op, "secret")
	require.NoError(t, err)
	assert.Equal(t, railwayJSON, string(data))
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, railwayJSON, string(f.cache.Load("railway_Toei")))
	assert.Equal(t, railwayJSON, string(f.service.snapshots.Load("railway_Toei")))
	assert.Equal(t, `"v1"`, f.store.GetString(ctx, "railway_Toei_etag", ""))
}

func TestCheckForUpdateWithoutCacheIsNoop(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	updated, err := f.service.CheckForUpdate(context.Background(), f.op, "")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Zero(t, f.hits.Load())
}

func TestCheckForUpdateNotModified(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(railwayJSON))
	})
	ctx := context.Background()

	_, err := f.service.FetchOperatorData(ctx, f.op, "")
	require.NoError(t, err)
	before, _ := f.cache.ModTime("railway_Toei")

	updated, err := f.service.CheckForUpdate(ctx, f.op, "")
	require.NoError(t, err)
	assert.False(t, updated)

	after, _ := f.cache.ModTime("railway_Toei")
	assert.Equal(t, before, after, "cache must not be rewritten")
	assert.Equal(t, `"v1"`, f.store.GetString(ctx, "railway_Toei_etag", ""))
}

func TestCheckForUpdateIdenticalBodyIsNotAnUpdate(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Mon, 01 Sep 2025 00:00:00 GMT")
		w.Write([]byte(railwayJSON))
	})
	ctx := context.Background()

	_, err := f.service.FetchOperatorData(ctx, f.op, "")
	require.NoError(t, err)

	updated, err := f.service.CheckForUpdate(ctx, f.op, "")
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestCheckForUpdateCapturesNewBody(t *testing.T) {
	var version atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if version.Load() == 0 {
			w.Header().Set("ETag", `"v1"`)
			w.Write([]byte(railwayJSON))
			return
		}
		w.Header().Set("ETag", `"v2"`)
		w.Write([]byte(`[]`))
	})
	ctx := context.Background()

	_, err := f.service.FetchOperatorData(ctx, f.op, "")
	require.NoError(t, err)
	version.Store(1)

	updated, err := f.service.CheckForUpdate(ctx, f.op, "")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "[]", string(f.cache.Load("railway_Toei")))
	assert.Equal(t, `"v2"`, f.store.GetString(ctx, "railway_Toei_etag", ""))
}

func TestLinesPrefersCacheThenSnapshot(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(railwayJSON))
	})
	ctx := context.Background()

	lines, err := f.service.Lines(ctx, f.op, "")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.EqualValues(t, 1, f.hits.Load())

	require.NoError(t, f.cache.Remove("railway_Toei"))
	lines, err = f.service.Lines(ctx, f.op, "")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.EqualValues(t, 1, f.hits.Load(), "snapshot served the second call")
	assert.True(t, f.cache.Exists("railway_Toei"), "snapshot restored into cache")
}

func TestLinesSurfacesNetworkError(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := f.service.Lines(context.Background(), f.op, "")
	assert.True(t, models.IsNetworkStatus(err, http.StatusForbidden))
}
