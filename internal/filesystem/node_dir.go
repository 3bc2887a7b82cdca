package filesystem

import (
	"context"
	"errors"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/mapleglade/nxfuse/internal/projection"
)

var (
	_ fs.Node               = (*dirNode)(nil)
	_ fs.NodeOpener         = (*dirNode)(nil)
	_ fs.HandleReadDirAller = (*dirNode)(nil)
	_ fs.NodeStringLookuper = (*dirNode)(nil)
)

// dirNode is the primary presentation of an archive node with children.
type dirNode struct {
	fsys  *FS    // Pointer to our filesystem.
	inode uint64 // Inode within the projection engine.
}

func (d *dirNode) Attr(_ context.Context, a *fuse.Attr) error {
	fillAttr(d.fsys.Engine.Getattr(d.inode), a)

	return nil
}

func (d *dirNode) Open(_ context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	// The archive is immutable, the kernel may cache freely.
	resp.Flags |= fuse.OpenKeepCache | fuse.OpenCacheDir

	return d, nil
}

func (d *dirNode) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	entries := d.fsys.Engine.Readdir(d.inode, 0)

	resp := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		if e.Dir {
			typ = fuse.DT_Dir
		}

		resp = append(resp, fuse.Dirent{
			Inode: e.Inode,
			Type:  typ,
			Name:  e.Name,
		})
	}

	return resp, nil
}

func (d *dirNode) Lookup(_ context.Context, name string) (fs.Node, error) {
	rec, err := d.fsys.Engine.Lookup(d.inode, name)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, fuse.ToErrno(syscall.ENOENT)
		}
		d.fsys.log.Error().Err(err).Uint64("inode", d.inode).Str("name", name).Msg("lookup failed")

		return nil, fuse.ToErrno(syscall.EIO)
	}

	return nodeFor(d.fsys, rec), nil
}
