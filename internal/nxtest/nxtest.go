// Package nxtest synthesizes NX (PKG4) archive files from declarative
// tree specs, for use in tests of the packages that consume them.
package nxtest

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pierrec/lz4/v4"
)

// Node is one node of a tree spec to be serialized into an archive.
// Kind is derived from which value field is populated (see [kindOf]);
// set Empty to force an empty node regardless of other fields.
type Node struct {
	Name     string
	Children []*Node

	Empty   bool
	Integer *int64
	Float   *float64
	Text    *string
	Vector  *[2]int32

	// Bitmap: Pix is Width*Height*4 RGBA bytes, rows top-to-bottom.
	Width  int
	Height int
	Pix    []byte

	Audio []byte
}

// Int is a convenience constructor for an integer leaf.
func Int(name string, v int64) *Node {
	return &Node{Name: name, Integer: &v}
}

// Str is a convenience constructor for a string leaf.
func Str(name string, v string) *Node {
	return &Node{Name: name, Text: &v}
}

const (
	kindEmpty uint16 = iota
	kindInteger
	kindFloat
	kindString
	kindVector
	kindBitmap
	kindAudio
)

func kindOf(n *Node) (uint16, error) {
	switch {
	case n.Empty:
		return kindEmpty, nil
	case n.Integer != nil:
		return kindInteger, nil
	case n.Float != nil:
		return kindFloat, nil
	case n.Text != nil:
		return kindString, nil
	case n.Vector != nil:
		return kindVector, nil
	case n.Pix != nil:
		if len(n.Pix) != n.Width*n.Height*4 {
			return 0, fmt.Errorf("node %q: %d pixel bytes for %dx%d", //nolint:err113
				n.Name, len(n.Pix), n.Width, n.Height)
		}

		return kindBitmap, nil
	case n.Audio != nil:
		return kindAudio, nil
	default:
		return kindEmpty, nil
	}
}

// WriteArchive serializes the tree into a PKG4 file under a test temp
// directory and returns its path. It fails the test on a bad spec.
func WriteArchive(tb testing.TB, root *Node) string {
	tb.Helper()

	data, err := Build(root)
	if err != nil {
		tb.Fatalf("failed to build test archive: %v", err)
	}

	path := filepath.Join(tb.TempDir(), "test.nx")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("failed to write test archive: %v", err)
	}

	return path
}

// Build serializes the tree spec into PKG4 archive bytes.
func Build(root *Node) ([]byte, error) {
	// Level-order walk so each node's children occupy a contiguous,
	// name-sorted id range, as the format requires.
	var order []*Node
	firstChild := map[*Node]uint32{}

	queue := []*Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		children := append([]*Node(nil), n.Children...)
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

		firstChild[n] = uint32(len(order) + len(queue))
		queue = append(queue, children...)
	}

	var strings []string
	stringIDs := map[string]uint32{}
	internString := func(s string) uint32 {
		if id, ok := stringIDs[s]; ok {
			return id
		}
		id := uint32(len(strings))
		strings = append(strings, s)
		stringIDs[s] = id

		return id
	}

	var bitmaps [][]byte
	var audios [][]byte

	nodeBlock := make([]byte, 0, len(order)*20)
	le := binary.LittleEndian

	for _, n := range order {
		kind, err := kindOf(n)
		if err != nil {
			return nil, err
		}

		rec := make([]byte, 20)
		le.PutUint32(rec[0:], internString(n.Name))
		le.PutUint32(rec[4:], firstChild[n])
		le.PutUint16(rec[8:], uint16(len(n.Children)))
		le.PutUint16(rec[10:], kind)

		switch kind {
		case kindInteger:
			le.PutUint64(rec[12:], uint64(*n.Integer))
		case kindFloat:
			le.PutUint64(rec[12:], math.Float64bits(*n.Float))
		case kindString:
			le.PutUint32(rec[12:], internString(*n.Text))
		case kindVector:
			le.PutUint32(rec[12:], uint32(n.Vector[0]))
			le.PutUint32(rec[16:], uint32(n.Vector[1]))
		case kindBitmap:
			le.PutUint32(rec[12:], uint32(len(bitmaps)))
			le.PutUint16(rec[16:], uint16(n.Width))
			le.PutUint16(rec[18:], uint16(n.Height))
			bitmaps = append(bitmaps, compressPixels(n.Pix))
		case kindAudio:
			le.PutUint32(rec[12:], uint32(len(audios)))
			le.PutUint32(rec[16:], uint32(len(n.Audio)))
			audios = append(audios, n.Audio)
		}

		nodeBlock = append(nodeBlock, rec...)
	}

	return assemble(nodeBlock, uint32(len(order)), strings, bitmaps, audios), nil
}

// compressPixels converts RGBA to the on-disk BGRA order and wraps it
// in an LZ4 block. Incompressible buffers get a literal-only block.
func compressPixels(pix []byte) []byte {
	bgra := make([]byte, len(pix))
	copy(bgra, pix)
	for i := 0; i < len(bgra); i += 4 {
		bgra[i], bgra[i+2] = bgra[i+2], bgra[i]
	}

	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(bgra)))
	n, err := c.CompressBlock(bgra, dst)
	if err != nil || n == 0 {
		return literalBlock(bgra)
	}

	return dst[:n]
}

// literalBlock encodes src as a single literal-only LZ4 sequence.
func literalBlock(src []byte) []byte {
	var b []byte
	if len(src) < 15 {
		b = append(b, byte(len(src))<<4)
	} else {
		b = append(b, 0xF0)
		rem := len(src) - 15
		for rem >= 255 {
			b = append(b, 255)
			rem -= 255
		}
		b = append(b, byte(rem))
	}

	return append(b, src...)
}

// assemble lays out header, node block, string data and the three
// offset tables into the final archive image.
func assemble(nodeBlock []byte, nodeCount uint32, strings []string, bitmaps, audios [][]byte) []byte {
	le := binary.LittleEndian
	out := make([]byte, 56) // header + 4 bytes padding, node block 8-aligned

	nodeBase := uint64(len(out))
	out = append(out, nodeBlock...)

	align := func() {
		for len(out)%8 != 0 {
			out = append(out, 0)
		}
	}

	align()
	stringOffsets := make([]uint64, len(strings))
	for i, s := range strings {
		stringOffsets[i] = uint64(len(out))
		var l [2]byte
		le.PutUint16(l[:], uint16(len(s)))
		out = append(out, l[:]...)
		out = append(out, s...)
	}
	align()
	stringBase := uint64(len(out))
	for _, off := range stringOffsets {
		var o [8]byte
		le.PutUint64(o[:], off)
		out = append(out, o[:]...)
	}

	align()
	bitmapOffsets := make([]uint64, len(bitmaps))
	for i, b := range bitmaps {
		bitmapOffsets[i] = uint64(len(out))
		var l [4]byte
		le.PutUint32(l[:], uint32(len(b)))
		out = append(out, l[:]...)
		out = append(out, b...)
	}
	align()
	bitmapBase := uint64(len(out))
	for _, off := range bitmapOffsets {
		var o [8]byte
		le.PutUint64(o[:], off)
		out = append(out, o[:]...)
	}

	align()
	audioOffsets := make([]uint64, len(audios))
	for i, a := range audios {
		audioOffsets[i] = uint64(len(out))
		out = append(out, a...)
	}
	align()
	audioBase := uint64(len(out))
	for _, off := range audioOffsets {
		var o [8]byte
		le.PutUint64(o[:], off)
		out = append(out, o[:]...)
	}

	le.PutUint32(out[0:], 0x34474B50) // "PKG4"
	le.PutUint32(out[4:], nodeCount)
	le.PutUint64(out[8:], nodeBase)
	le.PutUint32(out[16:], uint32(len(strings)))
	le.PutUint64(out[20:], stringBase)
	le.PutUint32(out[28:], uint32(len(bitmaps)))
	le.PutUint64(out[32:], bitmapBase)
	le.PutUint32(out[40:], uint32(len(audios)))
	le.PutUint64(out[44:], audioBase)

	return out
}
