package filesystem

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

var (
	_ fs.Node         = (*fileNode)(nil)
	_ fs.NodeOpener   = (*fileNode)(nil)
	_ fs.HandleReader = (*fileNode)(nil)
)

// fileNode is a regular-file presentation: either the primary of a
// childless archive node, or the shadow ("<name>_data") of a node that
// also presents as a directory. Both serve the node's materialized value.
type fileNode struct {
	fsys  *FS    // Pointer to our filesystem.
	inode uint64 // Inode within the projection engine.
}

func (f *fileNode) Attr(_ context.Context, a *fuse.Attr) error {
	fillAttr(f.fsys.Engine.Getattr(f.inode), a)

	return nil
}

func (f *fileNode) Open(_ context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	// The archive is immutable, the kernel may cache freely.
	resp.Flags |= fuse.OpenKeepCache

	return f, nil
}

func (f *fileNode) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	resp.Data = f.fsys.Engine.Read(f.inode, req.Offset, req.Size)

	return nil
}
