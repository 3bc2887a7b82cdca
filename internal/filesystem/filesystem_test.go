package filesystem

import (
	"context"
	"os"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/mapleglade/nxfuse/internal/nxarchive"
	"github.com/mapleglade/nxfuse/internal/nxtest"
	"github.com/mapleglade/nxfuse/internal/projection"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testFS(t *testing.T, root *nxtest.Node) *FS {
	t.Helper()

	a, err := nxarchive.Open(nxtest.WriteArchive(t, root))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	engine := projection.NewEngine(a, nil, zerolog.Nop())
	t.Cleanup(engine.Close)

	fsys, err := NewFS(engine, zerolog.Nop())
	require.NoError(t, err)

	return fsys
}

func statsTree() *nxtest.Node {
	stats := nxtest.Str("stats", "base")
	stats.Children = []*nxtest.Node{nxtest.Int("hp", 100)}

	return &nxtest.Node{Name: "", Children: []*nxtest.Node{stats}}
}

// Expectation: NewFS should reject a missing engine.
func Test_NewFS_MissingEngine_Failure(t *testing.T) {
	t.Parallel()

	_, err := NewFS(nil, zerolog.Nop())
	require.ErrorIs(t, err, errMissingArgument)
}

// Expectation: Root should return a directory handle on the reserved
// root inode.
func Test_FS_Root_Success(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	node, err := fsys.Root()
	require.NoError(t, err)

	dn, ok := node.(*dirNode)
	require.True(t, ok)
	require.Equal(t, projection.RootInode, dn.inode)

	attr := fuse.Attr{}
	require.NoError(t, dn.Attr(context.Background(), &attr))
	require.Equal(t, projection.RootInode, attr.Inode)
	require.Equal(t, os.ModeDir|0o555, attr.Mode)
	require.Equal(t, uint32(1), attr.Nlink)
}

// Expectation: a degenerate archive whose root has no children should
// get a file handle matching its file-mode attribute record.
func Test_FS_Root_ChildlessRoot_FileHandle(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, nxtest.Str("", "lonely"))

	node, err := fsys.Root()
	require.NoError(t, err)

	fn, ok := node.(*fileNode)
	require.True(t, ok)
	require.Equal(t, projection.RootInode, fn.inode)

	attr := fuse.Attr{}
	require.NoError(t, fn.Attr(context.Background(), &attr))
	require.Equal(t, os.FileMode(0o444), attr.Mode)
	require.Equal(t, uint64(6), attr.Size) // "lonely"
}

// Expectation: GenerateInode must never be reached; the engine owns
// all inode assignment.
func Test_FS_GenerateInode_Panics(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	require.Panics(t, func() { fsys.GenerateInode(1, "name") })
}

// Expectation: ReadDirAll should emit the primary and shadow entries
// with engine-assigned inodes and correct types.
func Test_dirNode_ReadDirAll_Success(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	root, err := fsys.Root()
	require.NoError(t, err)

	dirents, err := root.(*dirNode).ReadDirAll(context.Background())
	require.NoError(t, err)
	require.Len(t, dirents, 2)

	require.Equal(t, "stats", dirents[0].Name)
	require.Equal(t, fuse.DT_Dir, dirents[0].Type)
	require.Equal(t, "stats_data", dirents[1].Name)
	require.Equal(t, fuse.DT_File, dirents[1].Type)
	require.NotZero(t, dirents[0].Inode)
	require.NotZero(t, dirents[1].Inode)
}

// Expectation: Lookup should return a dirNode for the primary and a
// fileNode for the shadow of the same archive node.
func Test_dirNode_Lookup_Success(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	root, err := fsys.Root()
	require.NoError(t, err)

	primary, err := root.(*dirNode).Lookup(context.Background(), "stats")
	require.NoError(t, err)
	_, ok := primary.(*dirNode)
	require.True(t, ok)

	shadow, err := root.(*dirNode).Lookup(context.Background(), "stats_data")
	require.NoError(t, err)
	fn, ok := shadow.(*fileNode)
	require.True(t, ok)

	attr := fuse.Attr{}
	require.NoError(t, fn.Attr(context.Background(), &attr))
	require.Equal(t, uint64(4), attr.Size) // "base"
	require.Equal(t, os.FileMode(0o444), attr.Mode)
}

// Expectation: a miss should translate into ENOENT for the kernel.
func Test_dirNode_Lookup_Missing_Failure(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	root, err := fsys.Root()
	require.NoError(t, err)

	_, err = root.(*dirNode).Lookup(context.Background(), "missing")
	require.Equal(t, fuse.ToErrno(syscall.ENOENT), err)
}

// Expectation: Read should serve the engine's clamped byte window.
func Test_fileNode_Read_Success(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	root, err := fsys.Root()
	require.NoError(t, err)
	node, err := root.(*dirNode).Lookup(context.Background(), "stats_data")
	require.NoError(t, err)
	fn := node.(*fileNode)

	resp := &fuse.ReadResponse{}
	require.NoError(t, fn.Read(context.Background(), &fuse.ReadRequest{Offset: 0, Size: 10}, resp))
	require.Equal(t, []byte("base"), resp.Data)

	resp = &fuse.ReadResponse{}
	require.NoError(t, fn.Read(context.Background(), &fuse.ReadRequest{Offset: 100, Size: 10}, resp))
	require.Empty(t, resp.Data)
}

// Expectation: Open should mark handles kernel-cacheable and return the
// node itself as the handle.
func Test_fileNode_Open_Success(t *testing.T) {
	t.Parallel()
	fsys := testFS(t, statsTree())

	root, err := fsys.Root()
	require.NoError(t, err)
	node, err := root.(*dirNode).Lookup(context.Background(), "stats_data")
	require.NoError(t, err)
	fn := node.(*fileNode)

	resp := &fuse.OpenResponse{}
	handle, err := fn.Open(context.Background(), &fuse.OpenRequest{}, resp)
	require.NoError(t, err)
	require.Equal(t, fn, handle)
	require.NotZero(t, resp.Flags&fuse.OpenKeepCache)
}
