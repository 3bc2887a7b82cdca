package filesystem

import (
	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/mapleglade/nxfuse/internal/projection"
)

// fillAttr copies an engine attribute record into a [fuse.Attr].
func fillAttr(rec projection.AttributeRecord, a *fuse.Attr) {
	a.Inode = rec.Inode
	a.Size = rec.Size
	a.Mode = rec.Mode
	a.Nlink = rec.Nlink

	a.Atime = rec.Atime
	a.Mtime = rec.Mtime
	a.Ctime = rec.Ctime
	// rec.Crtime has no counterpart in fuse.Attr: bazil.org/fuse dropped the
	// Crtime field when macOS support was removed.
}

// nodeFor wraps an attribute record into the matching node handle.
func nodeFor(fsys *FS, rec projection.AttributeRecord) fs.Node {
	if rec.IsDir() {
		return &dirNode{fsys: fsys, inode: rec.Inode}
	}

	return &fileNode{fsys: fsys, inode: rec.Inode}
}
