package nxtest

import (
	"fmt"
	"math/rand"
)

// RandomTree generates a random tree spec of at most maxDepth levels,
// with up to maxChildren children per node. Sibling names are unique,
// but names freely repeat across different parents.
func RandomTree(r *rand.Rand, maxDepth, maxChildren int) *Node {
	root := &Node{Name: ""}
	populate(r, root, maxDepth, maxChildren)

	return root
}

func populate(r *rand.Rand, n *Node, depth, maxChildren int) {
	randomValue(r, n)

	if depth <= 0 {
		return
	}

	for i, count := 0, r.Intn(maxChildren+1); i < count; i++ {
		child := &Node{Name: fmt.Sprintf("n%02d", i)}
		populate(r, child, depth-1, maxChildren)
		n.Children = append(n.Children, child)
	}
}

func randomValue(r *rand.Rand, n *Node) {
	switch r.Intn(7) {
	case 0, 1: // empty stays likelier, like real archives
		n.Empty = true
	case 2:
		v := r.Int63n(20000) - 10000
		n.Integer = &v
	case 3:
		v := r.NormFloat64() * 100
		n.Float = &v
	case 4:
		v := fmt.Sprintf("value-%08x", r.Uint32())
		n.Text = &v
	case 5:
		n.Vector = &[2]int32{int32(r.Intn(1000) - 500), int32(r.Intn(1000) - 500)}
	case 6:
		n.Audio = make([]byte, r.Intn(64)+1)
		r.Read(n.Audio) //nolint:errcheck
	}
}
