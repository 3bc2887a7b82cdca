// Package nxarchive implements read-only parsing of NX (PKG4) archives.
package nxarchive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	magicPKG4  = 0x34474B50 // "PKG4", little-endian
	headerSize = 52
	nodeSize   = 20
)

var (
	// ErrNotNX occurs when a file does not carry the PKG4 magic.
	ErrNotNX = errors.New("not an NX (PKG4) archive")

	// ErrTruncated occurs when a table or block exceeds the file bounds.
	ErrTruncated = errors.New("truncated NX archive")
)

// Archive is a memory-mapped, read-only NX (PKG4) archive.
//
// All returned [Node] values and byte slices borrow the underlying mapping
// and remain valid only until Close() is called.
type Archive struct {
	data []byte

	nodeCount   uint32
	nodeBase    uint64
	stringCount uint32
	stringBase  uint64
	bitmapCount uint32
	bitmapBase  uint64
	audioCount  uint32
	audioBase   uint64
}

// Open maps the NX archive at path into memory and validates its header.
// You must call Close() once all work with the [Archive] is complete.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	if fi.Size() < headerSize {
		return nil, fmt.Errorf("%w: %d byte file", ErrTruncated, fi.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap archive: %w", err)
	}

	a := &Archive{data: data}
	if err := a.parseHeader(); err != nil {
		_ = unix.Munmap(data)

		return nil, err
	}

	return a, nil
}

// Close unmaps the archive. The [Archive] must not be used afterwards.
func (a *Archive) Close() error {
	if a.data == nil {
		return nil
	}

	data := a.data
	a.data = nil

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("failed to munmap archive: %w", err)
	}

	return nil
}

// Size returns the byte size of the mapped archive file.
func (a *Archive) Size() uint64 {
	return uint64(len(a.data))
}

// NodeCount returns the total number of nodes in the archive.
func (a *Archive) NodeCount() uint32 {
	return a.nodeCount
}

// Root returns the root [Node] of the archive tree.
func (a *Archive) Root() Node {
	return Node{a: a, id: 0}
}

func (a *Archive) parseHeader() error {
	le := binary.LittleEndian

	if le.Uint32(a.data[0:]) != magicPKG4 {
		return ErrNotNX
	}

	a.nodeCount = le.Uint32(a.data[4:])
	a.nodeBase = le.Uint64(a.data[8:])
	a.stringCount = le.Uint32(a.data[16:])
	a.stringBase = le.Uint64(a.data[20:])
	a.bitmapCount = le.Uint32(a.data[28:])
	a.bitmapBase = le.Uint64(a.data[32:])
	a.audioCount = le.Uint32(a.data[40:])
	a.audioBase = le.Uint64(a.data[44:])

	if a.nodeCount == 0 {
		return fmt.Errorf("%w: empty node block", ErrTruncated)
	}

	size := uint64(len(a.data))
	switch {
	case a.nodeBase+uint64(a.nodeCount)*nodeSize > size:
		return fmt.Errorf("%w: node block out of bounds", ErrTruncated)
	case a.stringBase+uint64(a.stringCount)*8 > size:
		return fmt.Errorf("%w: string table out of bounds", ErrTruncated)
	case a.bitmapBase+uint64(a.bitmapCount)*8 > size:
		return fmt.Errorf("%w: bitmap table out of bounds", ErrTruncated)
	case a.audioBase+uint64(a.audioCount)*8 > size:
		return fmt.Errorf("%w: audio table out of bounds", ErrTruncated)
	}

	return nil
}

// nodeRecord returns the 20-byte record of the given node id.
func (a *Archive) nodeRecord(id uint32) []byte {
	if id >= a.nodeCount {
		panic(fmt.Sprintf("nxarchive: node id %d out of range (%d nodes)", id, a.nodeCount))
	}
	off := a.nodeBase + uint64(id)*nodeSize

	return a.data[off : off+nodeSize]
}

// stringAt returns the UTF-8 bytes of the given string table id.
func (a *Archive) stringAt(id uint32) []byte {
	if id >= a.stringCount {
		panic(fmt.Sprintf("nxarchive: string id %d out of range (%d strings)", id, a.stringCount))
	}
	off := binary.LittleEndian.Uint64(a.data[a.stringBase+uint64(id)*8:])
	if off+2 > uint64(len(a.data)) {
		panic(fmt.Sprintf("nxarchive: string %d offset out of bounds", id))
	}
	length := uint64(binary.LittleEndian.Uint16(a.data[off:]))
	if off+2+length > uint64(len(a.data)) {
		panic(fmt.Sprintf("nxarchive: string %d data out of bounds", id))
	}

	return a.data[off+2 : off+2+length]
}

// bitmapAt returns the raw LZ4 block bytes of the given bitmap table id.
func (a *Archive) bitmapAt(id uint32) []byte {
	if id >= a.bitmapCount {
		panic(fmt.Sprintf("nxarchive: bitmap id %d out of range (%d bitmaps)", id, a.bitmapCount))
	}
	off := binary.LittleEndian.Uint64(a.data[a.bitmapBase+uint64(id)*8:])
	if off+4 > uint64(len(a.data)) {
		panic(fmt.Sprintf("nxarchive: bitmap %d offset out of bounds", id))
	}
	length := uint64(binary.LittleEndian.Uint32(a.data[off:]))
	if off+4+length > uint64(len(a.data)) {
		panic(fmt.Sprintf("nxarchive: bitmap %d data out of bounds", id))
	}

	return a.data[off+4 : off+4+length]
}

// audioAt returns length raw payload bytes of the given audio table id.
func (a *Archive) audioAt(id uint32, length uint32) []byte {
	if id >= a.audioCount {
		panic(fmt.Sprintf("nxarchive: audio id %d out of range (%d audios)", id, a.audioCount))
	}
	off := binary.LittleEndian.Uint64(a.data[a.audioBase+uint64(id)*8:])
	if off+uint64(length) > uint64(len(a.data)) {
		panic(fmt.Sprintf("nxarchive: audio %d data out of bounds", id))
	}

	return a.data[off : off+uint64(length)]
}
