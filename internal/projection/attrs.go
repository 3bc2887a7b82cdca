package projection

import (
	"os"
	"time"

	"github.com/mapleglade/nxfuse/internal/nxarchive"
)

// AttributeRecord is the cached per-inode metadata served by getattr.
// All four timestamps are fixed at engine construction; records are
// computed once and never invalidated, so repeated getattr calls within
// a session always return identical results.
type AttributeRecord struct {
	Inode uint64
	Size  uint64
	Mode  os.FileMode
	Nlink uint32

	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time
}

// IsDir reports whether the record describes a directory.
func (r AttributeRecord) IsDir() bool {
	return r.Mode.IsDir()
}

// AttributesFor returns the attribute records of the node's primary and
// shadow presentations, computing and caching them on first call. The
// shadow record is the zero value when the node has no shadow inode.
func (e *Engine) AttributesFor(node nxarchive.Node) (AttributeRecord, AttributeRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.attributesForLocked(node)
}

// attributesForLocked ensures the node is registered and attributed.
// The primary size is the materialized content length; the shadow
// shares it, since both presentations serve identical bytes. Caller
// must hold mu.
func (e *Engine) attributesForLocked(node nxarchive.Node) (AttributeRecord, AttributeRecord) {
	inodes := e.inodesForLocked(node)

	primary, ok := e.attrs[inodes.Primary]
	if !ok {
		size := uint64(len(e.contentFor(node)))

		primary = AttributeRecord{
			Inode:  inodes.Primary,
			Size:   size,
			Mode:   filePerm,
			Nlink:  1,
			Atime:  e.birth,
			Mtime:  e.birth,
			Ctime:  e.birth,
			Crtime: e.birth,
		}
		if node.ChildCount() > 0 {
			primary.Mode = os.ModeDir | dirPerm
		}
		e.attrs[inodes.Primary] = primary

		if inodes.HasShadow() {
			shadow := primary
			shadow.Inode = inodes.Shadow
			shadow.Mode = filePerm
			e.attrs[inodes.Shadow] = shadow
		}
	}

	if !inodes.HasShadow() {
		return primary, AttributeRecord{}
	}

	return primary, e.attrs[inodes.Shadow]
}
