// Package projection implements the core engine mapping a read-only NX
// archive tree onto the four-operation contract of the FUSE protocol:
// lookup, getattr, readdir and read.
//
// Every archive node observed through these operations is bound to one
// stable primary inode and, when the node carries both children and a
// non-empty value, a second synthetic "shadow" inode that presents the
// node's own value as a regular file named "<name>_data".
package projection

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mapleglade/nxfuse/internal/nxarchive"
	"github.com/rs/zerolog"
)

const (
	// RootInode is the reserved inode number of the filesystem root.
	RootInode uint64 = 1

	// ShadowSuffix disambiguates a node's shadow file from the
	// directory carrying its children.
	ShadowSuffix = "_data"

	filePerm = 0o444 // RO
	dirPerm  = 0o555 // RO

	defaultContentCacheCap = 256
	defaultContentCacheTTL = 60 * time.Second
)

// ErrNotFound occurs when a lookup matches no child, neither exactly
// nor through the shadow-suffix fallback.
var ErrNotFound = errors.New("no such entry")

// BitmapFormat selects the image container bitmap nodes materialize into.
type BitmapFormat string

// The supported bitmap container formats.
const (
	BitmapPNG BitmapFormat = "png"
	BitmapBMP BitmapFormat = "bmp"
)

// Options contains all settings for the operation of the engine.
// All non-atomic fields can no longer be modified once the engine serves.
type Options struct {
	// BitmapFormat is the image container for bitmap nodes.
	BitmapFormat BitmapFormat

	// ContentCacheCap is the entry capacity of the materialized
	// content cache.
	ContentCacheCap uint64

	// ContentCacheTTL is the time-to-live of cached content buffers.
	ContentCacheTTL time.Duration

	// ContentCacheBypass circumvents the content cache at runtime,
	// re-materializing every read. Attribute records are unaffected.
	ContentCacheBypass atomic.Bool
}

// DefaultOptions returns a pointer to [Options] with the default values.
func DefaultOptions() *Options {
	return &Options{
		BitmapFormat:    BitmapPNG,
		ContentCacheCap: defaultContentCacheCap,
		ContentCacheTTL: defaultContentCacheTTL,
	}
}

// Metrics contains all metrics which are collected within the engine.
type Metrics struct {
	// TotalLookups is the amount of lookup operations served.
	TotalLookups atomic.Int64

	// TotalLookupMisses is the amount of lookups answered not-found.
	TotalLookupMisses atomic.Int64

	// TotalGetattrs is the amount of getattr operations served.
	TotalGetattrs atomic.Int64

	// TotalReaddirs is the amount of readdir operations served.
	TotalReaddirs atomic.Int64

	// TotalReads is the amount of read operations served.
	TotalReads atomic.Int64

	// TotalBytesRead is the amount of content bytes handed out.
	TotalBytesRead atomic.Int64

	// TotalMaterializations is the amount of node-to-bytes conversions.
	TotalMaterializations atomic.Int64

	// TotalBitmapEncodes is the amount of bitmap container encodes.
	TotalBitmapEncodes atomic.Int64

	// TotalContentCacheHits is the amount of content cache-hits.
	TotalContentCacheHits atomic.Int64

	// TotalContentCacheMisses is the amount of content cache-misses.
	TotalContentCacheMisses atomic.Int64
}

// handle is the reverse-index value: which archive node an inode
// stands for, and which of the two presentations it was assigned to.
type handle struct {
	node   nxarchive.Node
	shadow bool
}

// entry binds one archive node to its assigned inode number(s).
type entry struct {
	node    nxarchive.Node
	primary uint64
	shadow  uint64 // zero when the node has no shadow presentation
}

// Engine is the projection engine over one open [nxarchive.Archive].
//
// The registry and attribute cache form a single mutual-exclusion
// domain, so concurrent lookups on a previously-unseen node can never
// allocate two different inode numbers for it. The archive itself is
// read-only and accessed without additional locking.
type Engine struct {
	Options *Options
	Metrics *Metrics

	archive *nxarchive.Archive
	log     zerolog.Logger
	birth   time.Time

	mu        sync.Mutex
	entries   map[uint32]*entry // archive node id -> entry
	byInode   map[uint64]handle // inode -> node and presentation
	nextInode uint64
	attrs     map[uint64]AttributeRecord

	content *ttlcache.Cache[uint32, []byte]
}

// NewEngine returns a pointer to a new [Engine] over the open archive,
// with the root entry pre-registered and pre-attributed.
// You must call Close() once all work is complete.
func NewEngine(archive *nxarchive.Archive, opts *Options, logger zerolog.Logger) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}

	e := &Engine{
		Options:   opts,
		Metrics:   &Metrics{},
		archive:   archive,
		log:       logger,
		birth:     time.Now(),
		entries:   make(map[uint32]*entry),
		byInode:   make(map[uint64]handle),
		nextInode: RootInode,
		attrs:     make(map[uint64]AttributeRecord),
	}

	e.content = ttlcache.New(
		ttlcache.WithTTL[uint32, []byte](opts.ContentCacheTTL),
		ttlcache.WithCapacity[uint32, []byte](opts.ContentCacheCap),
	)
	go e.content.Start()

	e.mu.Lock()
	e.attributesForLocked(archive.Root())
	e.mu.Unlock()

	e.log.Debug().
		Uint32("nodes", archive.NodeCount()).
		Str("bitmapFormat", string(opts.BitmapFormat)).
		Msg("projection engine ready")

	return e
}

// Close stops the content cache eviction loop and blocks until done.
// It does not close the underlying archive.
func (e *Engine) Close() {
	e.content.Stop()
}

// Birth returns the fixed timestamp all attribute records carry.
func (e *Engine) Birth() time.Time {
	return e.birth
}

// allocInode hands out the next inode number. Numbers are monotonic
// and never reused for the engine's lifetime. Caller must hold mu.
func (e *Engine) allocInode() uint64 {
	ino := e.nextInode
	e.nextInode++

	return ino
}
