package projection

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mapleglade/nxfuse/internal/nxarchive"
)

// DirEntry is one emitted entry of a directory listing.
type DirEntry struct {
	Inode  uint64
	Name   string
	Dir    bool
	Cookie uint64 // strictly increasing position within the listing
}

// Lookup resolves name within the directory identified by parentIno and
// returns the attribute record of the matched presentation.
//
// An exact child-name match always wins and resolves to the primary
// presentation. Only when no child matches exactly is the shadow-suffix
// fallback tried: a name ending in [ShadowSuffix] whose stripped base
// names a child that actually owns a shadow resolves to that shadow.
// Anything else is [ErrNotFound].
//
// A well-behaved protocol host never hands us an inode we did not
// produce; an unregistered parentIno is therefore fatal, as is a name
// that is not valid text.
func (e *Engine) Lookup(parentIno uint64, name string) (AttributeRecord, error) {
	e.Metrics.TotalLookups.Add(1)

	if !utf8.ValidString(name) {
		panic(fmt.Sprintf("projection: lookup of non-UTF-8 name %q in inode %d", name, parentIno))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.byInode[parentIno]
	if !ok {
		panic(fmt.Sprintf("projection: lookup in unregistered inode %d", parentIno))
	}

	if child, found := h.node.Child(name); found {
		primary, _ := e.attributesForLocked(child)

		return primary, nil
	}

	// Exact match takes priority: a child literally named with the
	// suffix was already caught above, so reaching the fallback means
	// the suffix can only denote a shadow presentation.
	if base, found := strings.CutSuffix(name, ShadowSuffix); found {
		if child, ok := h.node.Child(base); ok && hasShadow(child) {
			_, shadow := e.attributesForLocked(child)

			return shadow, nil
		}
	}

	e.Metrics.TotalLookupMisses.Add(1)
	e.log.Debug().Uint64("parent", parentIno).Str("name", name).Msg("lookup miss")

	return AttributeRecord{}, ErrNotFound
}

// Getattr returns the cached attribute record of the inode, computing
// it first if the inode is still registered-unattributed. An inode this
// engine never produced is a protocol-consistency violation and fatal.
func (e *Engine) Getattr(ino uint64) AttributeRecord {
	e.Metrics.TotalGetattrs.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.attrs[ino]; ok {
		return rec
	}

	h, ok := e.byInode[ino]
	if !ok {
		panic(fmt.Sprintf("projection: getattr of unregistered inode %d", ino))
	}

	primary, shadow := e.attributesForLocked(h.node)
	if h.shadow {
		return shadow
	}

	return primary
}

// Readdir enumerates the directory identified by ino. Children are
// emitted in the archive reader's native order, each as its primary
// presentation, followed by a "<name>_data" entry when the child owns
// a shadow. The protocol host consumes the full listing in one call,
// so any non-zero offset terminates the listing. A node with zero
// children yields an empty listing, not an error.
func (e *Engine) Readdir(ino uint64, offset uint64) []DirEntry {
	e.Metrics.TotalReaddirs.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.byInode[ino]
	if !ok {
		panic(fmt.Sprintf("projection: readdir of unregistered inode %d", ino))
	}

	if offset != 0 {
		return nil
	}

	var out []DirEntry
	var cookie uint64

	for _, child := range h.node.Children() {
		name := child.Name()
		if !utf8.ValidString(name) {
			panic(fmt.Sprintf("projection: archive node %d has non-UTF-8 name %q", child.ID(), name))
		}

		primary, shadow := e.attributesForLocked(child)

		cookie++
		out = append(out, DirEntry{
			Inode:  primary.Inode,
			Name:   name,
			Dir:    primary.IsDir(),
			Cookie: cookie,
		})

		if shadow.Inode != 0 {
			cookie++
			out = append(out, DirEntry{
				Inode:  shadow.Inode,
				Name:   name + ShadowSuffix,
				Cookie: cookie,
			})
		}
	}

	return out
}

// Read serves the byte window [offset, offset+size) of the inode's
// materialized content, clamped to the content bounds. Out-of-range
// windows yield an empty slice, never an error. Primary and shadow
// presentations of one node serve identical bytes.
func (e *Engine) Read(ino uint64, offset int64, size int) []byte {
	e.Metrics.TotalReads.Add(1)

	e.mu.Lock()
	h, ok := e.byInode[ino]
	e.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("projection: read of unregistered inode %d", ino))
	}

	// Materialization is deterministic and the content cache locks
	// internally, so reads proceed without the registry mutex.
	data := e.contentFor(h.node)

	length := int64(len(data))
	from := min(offset, length)
	if from < 0 {
		from = 0
	}
	to := min(offset+int64(size), length)
	if to < 0 {
		to = 0
	}
	if from > to {
		// Unclear whether a host can hand out a window with from past
		// to (a negative size would do it); clamp rather than slice
		// out of range.
		from = to
	}

	e.Metrics.TotalBytesRead.Add(to - from)

	return data[from:to]
}

// hasShadow is the shadow-existence law: a node owns a shadow
// presentation iff it has at least one child and a non-empty value.
func hasShadow(node nxarchive.Node) bool {
	return node.ChildCount() > 0 && node.Kind() != nxarchive.KindEmpty
}
