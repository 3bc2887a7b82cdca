// Package filesystem adapts the projection engine onto the FUSE
// protocol host. Node types are thin handles carrying only an inode
// number; all state lives in the engine.
package filesystem

import (
	"errors"
	"fmt"

	"bazil.org/fuse/fs"
	"github.com/mapleglade/nxfuse/internal/projection"
	"github.com/rs/zerolog"
)

var (
	_ fs.FS               = (*FS)(nil)
	_ fs.FSInodeGenerator = (*FS)(nil)

	errMissingArgument = errors.New("missing argument")
)

// FS is the FUSE-facing surface over one [projection.Engine].
type FS struct {
	Engine *projection.Engine

	log zerolog.Logger
}

// NewFS returns a pointer to a new [FS] serving the given engine.
func NewFS(engine *projection.Engine, logger zerolog.Logger) (*FS, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: need an engine", errMissingArgument)
	}

	return &FS{Engine: engine, log: logger}, nil
}

// Root returns the entry-point [fs.Node] of the filesystem.
// The root inode is pre-registered by the engine at construction. The
// handle type follows the root's attribute record: a degenerate archive
// whose root has no children presents as a regular file.
func (fsys *FS) Root() (fs.Node, error) {
	return nodeFor(fsys, fsys.Engine.Getattr(projection.RootInode)), nil
}

// GenerateInode implements [fs.FSInodeGenerator] to prevent dynamic
// inode generation by the fallback method inside of the FUSE library.
//
// The engine owns all inode assignment, so the library falling back to
// dynamic generation means a reply carried a zero inode. Calls to this
// method panic, revealing where that happened.
func (fsys *FS) GenerateInode(_ uint64, _ string) uint64 {
	panic("unhandled zero inode triggered an illegal dynamic generation")
}
