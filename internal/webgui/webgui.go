// Package webgui implements the diagnostics dashboard.
package webgui

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/mapleglade/nxfuse/internal/logging"
	"github.com/mapleglade/nxfuse/internal/projection"
	"github.com/rs/zerolog"
)

var (
	//go:embed templates/*.html
	templateFS    embed.FS
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

	errInvalidArgument = errors.New("invalid argument")
)

// Dashboard is the implementation of the engine diagnostics dashboard.
type Dashboard struct {
	version string
	engine  *projection.Engine
	rbuf    *logging.RingBuffer
	log     zerolog.Logger
}

// NewDashboard returns a pointer to a new [Dashboard].
func NewDashboard(engine *projection.Engine, rbuf *logging.RingBuffer, logger zerolog.Logger, version string) (*Dashboard, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: need an engine", errInvalidArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errInvalidArgument)
	}

	return &Dashboard{
		version: version,
		engine:  engine,
		rbuf:    rbuf,
		log:     logger,
	}, nil
}

// Serve serves the diagnostics dashboard as part of a [http.Server].
func (d *Dashboard) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: d.dashboardMux()}

	go func() {
		d.log.Info().Str("addr", addr).Msg("serving dashboard")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error().Err(err).Msg("dashboard HTTP error")
		}
	}()

	return srv
}

// dashboardMux describes the routes served by the diagnostics dashboard.
func (d *Dashboard) dashboardMux() *mux.Router {
	mux := mux.NewRouter()

	mux.HandleFunc("/", d.dashboardHandler)
	mux.HandleFunc("/metrics.json", d.metricsHandler)
	mux.HandleFunc("/gc", d.gcHandler)
	mux.HandleFunc("/reset", d.resetMetricsHandler)
	mux.HandleFunc("/set/content-cache-bypass/{value}", d.cacheBypassHandler)

	return mux
}

type dashboardData struct {
	Version            string   `json:"version"`
	Uptime             string   `json:"uptime"`
	BitmapFormat       string   `json:"bitmapFormat"`
	ContentCacheBypass string   `json:"contentCacheBypass"`
	ContentCacheCap    uint64   `json:"contentCacheCap"`
	ContentCacheTTL    string   `json:"contentCacheTtl"`
	CacheHits          int64    `json:"cacheHits"`
	CacheMisses        int64    `json:"cacheMisses"`
	CacheHitRatio      string   `json:"cacheHitRatio"`
	Lookups            int64    `json:"lookups"`
	LookupMisses       int64    `json:"lookupMisses"`
	Getattrs           int64    `json:"getattrs"`
	Readdirs           int64    `json:"readdirs"`
	Reads              int64    `json:"reads"`
	BytesRead          string   `json:"bytesRead"`
	Materializations   int64    `json:"materializations"`
	BitmapEncodes      int64    `json:"bitmapEncodes"`
	AllocBytes         string   `json:"allocBytes"`
	SysBytes           string   `json:"sysBytes"`
	NumGC              uint32   `json:"numGc"`
	RingBufferSize     int      `json:"ringBufferSize"`
	Logs               []string `json:"logs"`
}

func (d *Dashboard) collectMetrics() dashboardData {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logs := d.rbuf.Lines()
	slices.Reverse(logs)

	met := d.engine.Metrics

	return dashboardData{
		Version:            d.version,
		Uptime:             humanize.Time(d.engine.Birth()),
		BitmapFormat:       string(d.engine.Options.BitmapFormat),
		ContentCacheBypass: enabledOrDisabled(d.engine.Options.ContentCacheBypass.Load()),
		ContentCacheCap:    d.engine.Options.ContentCacheCap,
		ContentCacheTTL:    d.engine.Options.ContentCacheTTL.String(),
		CacheHits:          met.TotalContentCacheHits.Load(),
		CacheMisses:        met.TotalContentCacheMisses.Load(),
		CacheHitRatio:      cacheHitRatio(met),
		Lookups:            met.TotalLookups.Load(),
		LookupMisses:       met.TotalLookupMisses.Load(),
		Getattrs:           met.TotalGetattrs.Load(),
		Readdirs:           met.TotalReaddirs.Load(),
		Reads:              met.TotalReads.Load(),
		BytesRead:          totalBytesRead(met),
		Materializations:   met.TotalMaterializations.Load(),
		BitmapEncodes:      met.TotalBitmapEncodes.Load(),
		AllocBytes:         humanize.IBytes(m.Alloc),
		SysBytes:           humanize.IBytes(m.Sys),
		NumGC:              m.NumGC,
		RingBufferSize:     d.rbuf.Size(),
		Logs:               logs,
	}
}

func (d *Dashboard) dashboardHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	if err := indexTemplate.Execute(w, data); err != nil {
		d.log.Error().Err(err).Msg("HTTP template execution error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *Dashboard) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *Dashboard) gcHandler(w http.ResponseWriter, _ *http.Request) {
	runtime.GC()
	debug.FreeOSMemory()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.log.Info().Str("heap", humanize.IBytes(m.Alloc)).Msg("GC forced via API")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "GC forced, current heap: %s.\n", humanize.IBytes(m.Alloc))
}

func (d *Dashboard) resetMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	met := d.engine.Metrics
	met.TotalLookups.Store(0)
	met.TotalLookupMisses.Store(0)
	met.TotalGetattrs.Store(0)
	met.TotalReaddirs.Store(0)
	met.TotalReads.Store(0)
	met.TotalBytesRead.Store(0)
	met.TotalMaterializations.Store(0)
	met.TotalBitmapEncodes.Store(0)
	met.TotalContentCacheHits.Store(0)
	met.TotalContentCacheMisses.Store(0)

	d.log.Info().Msg("metrics reset via API")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Metrics reset.")
}

func (d *Dashboard) cacheBypassHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	val, err := strconv.ParseBool(vars["value"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid boolean value: %v", err), http.StatusBadRequest)

		return
	}
	d.engine.Options.ContentCacheBypass.Store(val)

	d.log.Info().Bool("bypass", val).Msg("content cache bypass set via API")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Content cache bypass set: %t.\n", val)
}
