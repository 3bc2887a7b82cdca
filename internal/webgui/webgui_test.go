package webgui

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mapleglade/nxfuse/internal/logging"
	"github.com/mapleglade/nxfuse/internal/nxarchive"
	"github.com/mapleglade/nxfuse/internal/nxtest"
	"github.com/mapleglade/nxfuse/internal/projection"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testDashboard(t *testing.T) (*Dashboard, *projection.Engine, *httptest.Server) {
	t.Helper()

	stats := nxtest.Str("stats", "base")
	stats.Children = []*nxtest.Node{nxtest.Int("hp", 100)}
	root := &nxtest.Node{Name: "", Children: []*nxtest.Node{stats}}

	a, err := nxarchive.Open(nxtest.WriteArchive(t, root))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	engine := projection.NewEngine(a, nil, zerolog.Nop())
	t.Cleanup(engine.Close)

	rbuf := logging.NewRingBuffer(10)
	d, err := NewDashboard(engine, rbuf, zerolog.Nop(), "test")
	require.NoError(t, err)

	srv := httptest.NewServer(d.dashboardMux())
	t.Cleanup(srv.Close)

	return d, engine, srv
}

// Expectation: NewDashboard should reject missing arguments.
func Test_NewDashboard_MissingArguments_Failure(t *testing.T) {
	t.Parallel()

	_, err := NewDashboard(nil, logging.NewRingBuffer(1), zerolog.Nop(), "")
	require.ErrorIs(t, err, errInvalidArgument)
}

// Expectation: the dashboard page should render with engine metrics.
func Test_Dashboard_Index_Success(t *testing.T) {
	t.Parallel()
	_, _, srv := testDashboard(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "nxfuse")
	require.Contains(t, string(body), "Materializations")
}

// Expectation: metrics.json should serve decodable, current metrics.
func Test_Dashboard_MetricsJSON_Success(t *testing.T) {
	t.Parallel()
	_, engine, srv := testDashboard(t)

	_, err := engine.Lookup(projection.RootInode, "stats")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data dashboardData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	require.Equal(t, "test", data.Version)
	require.Equal(t, int64(1), data.Lookups)
	require.Equal(t, string(projection.BitmapPNG), data.BitmapFormat)
}

// Expectation: the reset route should zero the engine metrics.
func Test_Dashboard_Reset_Success(t *testing.T) {
	t.Parallel()
	_, engine, srv := testDashboard(t)

	_, err := engine.Lookup(projection.RootInode, "stats")
	require.NoError(t, err)
	require.NotZero(t, engine.Metrics.TotalLookups.Load())

	resp, err := http.Get(srv.URL + "/reset")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, engine.Metrics.TotalLookups.Load())
}

// Expectation: the cache-bypass route should flip the runtime option
// and reject garbage values.
func Test_Dashboard_CacheBypass_Success(t *testing.T) {
	t.Parallel()
	_, engine, srv := testDashboard(t)

	resp, err := http.Get(srv.URL + "/set/content-cache-bypass/true")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, engine.Options.ContentCacheBypass.Load())

	resp, err = http.Get(srv.URL + "/set/content-cache-bypass/junk")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.True(t, engine.Options.ContentCacheBypass.Load())
}
