package projection

import (
	"github.com/mapleglade/nxfuse/internal/nxarchive"
)

// NodeInodes is the inode pair assigned to one archive node.
type NodeInodes struct {
	Primary uint64

	// Shadow is zero when the node has no shadow presentation.
	Shadow uint64
}

// HasShadow reports whether a shadow inode was assigned.
func (ni NodeInodes) HasShadow() bool {
	return ni.Shadow != 0
}

// Resolve maps an inode number back to its archive node, whether the
// number is the primary or the shadow of the node's entry. The second
// return value reports whether the inode was ever assigned.
func (e *Engine) Resolve(ino uint64) (nxarchive.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.byInode[ino]

	return h.node, ok
}

// InodesFor returns the inode pair of the node, assigning fresh numbers
// on first observation. Repeated calls with the same node are idempotent.
func (e *Engine) InodesFor(node nxarchive.Node) NodeInodes {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.inodesForLocked(node)
}

// inodesForLocked is the lookup-or-create behind [Engine.InodesFor].
// The forward index is keyed on the node's structural identity (its
// archive id), never on name or path: names only disambiguate between
// siblings. Whether a shadow is assigned is decided here, exactly once.
// Caller must hold mu.
func (e *Engine) inodesForLocked(node nxarchive.Node) NodeInodes {
	if ent, ok := e.entries[node.ID()]; ok {
		return NodeInodes{Primary: ent.primary, Shadow: ent.shadow}
	}

	ent := &entry{node: node, primary: e.allocInode()}
	e.byInode[ent.primary] = handle{node: node}

	if hasShadow(node) {
		ent.shadow = e.allocInode()
		e.byInode[ent.shadow] = handle{node: node, shadow: true}
	}

	e.entries[node.ID()] = ent

	return NodeInodes{Primary: ent.primary, Shadow: ent.shadow}
}
