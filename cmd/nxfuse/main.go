/*
nxfuse is a read-only FUSE filesystem that exposes the node tree of an
NX (PKG4) game-data archive as a browseable directory hierarchy. Typed
node values are materialized into file content on demand: numbers and
vectors as text, strings as their raw bytes, bitmaps as self-contained
image files (PNG or legacy BMP), audio as its stored payload. A node
that carries both children and a value appears twice, as a directory
and as a "<name>_data" file holding the value.

The following signals are observed and handled by the filesystem:
  - SIGTERM or SIGINT (CTRL+C) gracefully unmounts the filesystem
  - SIGUSR1 forces a garbage collection (within Go)
  - SIGUSR2 dumps a diagnostic stacktrace to standard error (stderr)

When enabled, the diagnostics dashboard exposes the following routes:
  - "/" for engine metrics and the event ring-buffer
  - "/metrics.json" for the same metrics in JSON form
  - "/gc" for forcing of a garbage collection (within Go)
  - "/reset" for resetting the engine metrics at runtime
  - "/set/content-cache-bypass/<bool>" for toggling the content cache
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/dustin/go-humanize"
	"github.com/mapleglade/nxfuse/internal/filesystem"
	"github.com/mapleglade/nxfuse/internal/logging"
	"github.com/mapleglade/nxfuse/internal/nxarchive"
	"github.com/mapleglade/nxfuse/internal/projection"
	"github.com/mapleglade/nxfuse/internal/webgui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	stackTraceBuffer = 1 << 24
	ringBufferSize   = 200
)

// Version is the program version (filled in from the Makefile).
var Version string

type programOpts struct {
	archivePath      string
	mountDir         string
	bitmapFormat     string
	cacheCap         uint64
	cacheTTL         time.Duration
	allowOther       bool
	verbose          bool
	dashboardAddress string
}

func rootCmd() *cobra.Command {
	opts := programOpts{}

	cmd := &cobra.Command{
		Use:   "nxfuse <archive.nx> <mountpoint>",
		Short: "a read-only FUSE filesystem for browsing of NX archives",
		Long: `nxfuse is a FUSE filesystem that shows an NX (PKG4) game-data archive as a
browseable directory tree - node values are served as file content, with
bitmaps transcoded into standard image files on the fly. A node carrying
both children and a value appears as a directory plus a "<name>_data" file.

When mounted, the following OS signals are observed at runtime:
- SIGTERM/SIGINT for gracefully unmounting the FS
- SIGUSR1 for forcing a garbage collection run within Go
- SIGUSR2 for printing a stack trace to standard error (stderr)`,
		Version: Version,
		Args:    cobra.ExactArgs(2), //nolint:mnd
		RunE: func(_ *cobra.Command, args []string) error {
			if opts.bitmapFormat != string(projection.BitmapPNG) &&
				opts.bitmapFormat != string(projection.BitmapBMP) {
				return fmt.Errorf("unknown bitmap format %q (want png or bmp)", opts.bitmapFormat) //nolint:err113
			}

			opts.archivePath = args[0]
			opts.mountDir = args[1]

			return run(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.bitmapFormat, "bitmap-format", "b", "png", "Image container for bitmap nodes (png or bmp)")
	cmd.Flags().Uint64Var(&opts.cacheCap, "cache-cap", 256, "Entry capacity of the materialized content cache")
	cmd.Flags().DurationVar(&opts.cacheTTL, "cache-ttl", 60*time.Second, "Time-to-live of cached content buffers")
	cmd.Flags().BoolVar(&opts.allowOther, "allow-other", false, "Allow other users to access the mounted filesystem")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	cmd.Flags().StringVarP(&opts.dashboardAddress, "webaddr", "w", "", "Address to serve the diagnostics dashboard on (e.g. :8000; but disabled when empty)")

	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts programOpts) error {
	rbuf := logging.NewRingBuffer(ringBufferSize)

	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := logging.NewLogger(os.Stderr, rbuf, level)

	archive, err := nxarchive.Open(opts.archivePath)
	if err != nil {
		return fmt.Errorf("archive open error: %w", err)
	}
	defer archive.Close()

	logger.Info().
		Str("archive", opts.archivePath).
		Uint32("nodes", archive.NodeCount()).
		Str("size", humanize.IBytes(archive.Size())).
		Msg("archive opened")

	engineOpts := projection.DefaultOptions()
	engineOpts.BitmapFormat = projection.BitmapFormat(opts.bitmapFormat)
	engineOpts.ContentCacheCap = opts.cacheCap
	engineOpts.ContentCacheTTL = opts.cacheTTL

	engine := projection.NewEngine(archive, engineOpts, logger)
	defer engine.Close()

	fsys, err := filesystem.NewFS(engine, logger)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}

	mountOpts := []fuse.MountOption{fuse.ReadOnly(), fuse.FSName("nxfuse")}
	if opts.allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(opts.mountDir, mountOpts...)
	if err != nil {
		return fmt.Errorf("fs mount error: %w", err)
	}
	defer c.Close()
	defer fuse.Unmount(opts.mountDir) //nolint:errcheck

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(errChan)
		if err := fs.Serve(c, fsys); err != nil {
			errChan <- fmt.Errorf("fs serve error: %w", err)
		}
	}()

	if opts.dashboardAddress != "" {
		dash, err := webgui.NewDashboard(engine, rbuf, logger, Version)
		if err != nil {
			return fmt.Errorf("dashboard setup error: %w", err)
		}
		srv := dash.Serve(opts.dashboardAddress)
		defer srv.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sig {
			logger.Info().Msg("signal received, unmounting the filesystem")

			if err := fuse.Unmount(opts.mountDir); err != nil {
				logger.Warn().Err(err).Msg("unmount error (try again later)")

				continue
			}

			return
		}
	}()

	sig1 := make(chan os.Signal, 1)
	signal.Notify(sig1, syscall.SIGUSR1)
	go func() {
		for range sig1 {
			logger.Info().Msg("signal received, forcing garbage collection")
			runtime.GC()
			debug.FreeOSMemory()
		}
	}()

	sig2 := make(chan os.Signal, 1)
	signal.Notify(sig2, syscall.SIGUSR2)
	go func() {
		for range sig2 {
			logger.Info().Msg("signal received, printing stacktrace (to stderr)")
			buf := make([]byte, stackTraceBuffer)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()

	wg.Wait()

	return <-errChan
}
