package nxarchive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/pierrec/lz4/v4"
)

// Kind is the value kind carried by a [Node].
type Kind uint16

// The NX node value kinds, in on-disk type order.
const (
	KindEmpty Kind = iota
	KindInteger
	KindFloat
	KindString
	KindVector
	KindBitmap
	KindAudio
)

// String returns the human-readable name of the [Kind].
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindBitmap:
		return "bitmap"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(k))
	}
}

// Bitmap is a decoded RGBA pixel buffer of a bitmap node.
// Pix holds Width*Height*4 bytes in R, G, B, A order, rows top-to-bottom.
type Bitmap struct {
	Width  int
	Height int
	Pix    []byte
}

// Node is one entry of the archive tree. It is a lightweight handle;
// two Node values compare equal iff they refer to the same archive
// position, regardless of how they were obtained.
type Node struct {
	a  *Archive
	id uint32
}

// ID returns the structural identity of the node within the archive.
// IDs are unique across the whole archive and stable for its lifetime.
func (n Node) ID() uint32 {
	return n.id
}

// Name returns the node name. Names are only unique among siblings.
func (n Node) Name() string {
	rec := n.a.nodeRecord(n.id)

	return string(n.a.stringAt(binary.LittleEndian.Uint32(rec[0:])))
}

// Kind returns the value [Kind] of the node.
func (n Node) Kind() Kind {
	rec := n.a.nodeRecord(n.id)

	return Kind(binary.LittleEndian.Uint16(rec[10:]))
}

// ChildCount returns the number of children of the node.
func (n Node) ChildCount() int {
	rec := n.a.nodeRecord(n.id)

	return int(binary.LittleEndian.Uint16(rec[8:]))
}

// Children returns the children of the node in archive order.
// On-disk, a node's children are contiguous and sorted by name.
func (n Node) Children() []Node {
	rec := n.a.nodeRecord(n.id)
	first := binary.LittleEndian.Uint32(rec[4:])
	count := binary.LittleEndian.Uint16(rec[8:])

	children := make([]Node, count)
	for i := range children {
		children[i] = Node{a: n.a, id: first + uint32(i)}
	}

	return children
}

// Child looks up a direct child by exact name, binary-searching the
// name-sorted child range. The second return value reports existence.
func (n Node) Child(name string) (Node, bool) {
	rec := n.a.nodeRecord(n.id)
	first := binary.LittleEndian.Uint32(rec[4:])
	count := int(binary.LittleEndian.Uint16(rec[8:]))

	target := []byte(name)
	idx := sort.Search(count, func(i int) bool {
		childRec := n.a.nodeRecord(first + uint32(i))
		childName := n.a.stringAt(binary.LittleEndian.Uint32(childRec[0:]))

		return bytes.Compare(childName, target) >= 0
	})
	if idx >= count {
		return Node{}, false
	}

	child := Node{a: n.a, id: first + uint32(idx)}
	if child.Name() != name {
		return Node{}, false
	}

	return child, true
}

// Integer returns the value of an integer node.
func (n Node) Integer() int64 {
	rec := n.requireKind(KindInteger)

	return int64(binary.LittleEndian.Uint64(rec[12:]))
}

// Float returns the value of a float node.
func (n Node) Float() float64 {
	rec := n.requireKind(KindFloat)

	return math.Float64frombits(binary.LittleEndian.Uint64(rec[12:]))
}

// Text returns the value of a string node.
func (n Node) Text() string {
	rec := n.requireKind(KindString)

	return string(n.a.stringAt(binary.LittleEndian.Uint32(rec[12:])))
}

// Vector returns the (x, y) value of a vector node.
func (n Node) Vector() (int32, int32) {
	rec := n.requireKind(KindVector)

	x := int32(binary.LittleEndian.Uint32(rec[12:]))
	y := int32(binary.LittleEndian.Uint32(rec[16:]))

	return x, y
}

// Bitmap decompresses and returns the pixel buffer of a bitmap node.
// On-disk pixels are an LZ4 block of BGRA bytes; the returned [Bitmap]
// is converted to RGBA and owned by the caller.
func (n Node) Bitmap() Bitmap {
	rec := n.requireKind(KindBitmap)

	id := binary.LittleEndian.Uint32(rec[12:])
	width := int(binary.LittleEndian.Uint16(rec[16:]))
	height := int(binary.LittleEndian.Uint16(rec[18:]))

	pix := make([]byte, width*height*4)
	written, err := lz4.UncompressBlock(n.a.bitmapAt(id), pix)
	if err != nil || written != len(pix) {
		panic(fmt.Sprintf("nxarchive: bitmap %d corrupt (%dx%d, wrote %d): %v",
			id, width, height, written, err))
	}

	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i] // BGRA -> RGBA
	}

	return Bitmap{Width: width, Height: height, Pix: pix}
}

// Audio returns the raw payload bytes of an audio node, as stored.
// The slice borrows the archive mapping and must not be modified.
func (n Node) Audio() []byte {
	rec := n.requireKind(KindAudio)

	id := binary.LittleEndian.Uint32(rec[12:])
	length := binary.LittleEndian.Uint32(rec[16:])

	return n.a.audioAt(id, length)
}

// requireKind guards the typed accessors. A kind mismatch means the
// caller logic or the archive itself is broken, never a request error.
func (n Node) requireKind(want Kind) []byte {
	rec := n.a.nodeRecord(n.id)

	if got := Kind(binary.LittleEndian.Uint16(rec[10:])); got != want {
		panic(fmt.Sprintf("nxarchive: %s accessor on %s node %d", want, got, n.id))
	}

	return rec
}
