package projection

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"strconv"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mapleglade/nxfuse/internal/nxarchive"
)

// contentFor returns the materialized bytes of the node, consulting the
// content cache first. Primary and shadow presentations share one cache
// slot, keyed on the node's archive id. Materialization is deterministic,
// so a cache hit and a fresh conversion are interchangeable.
func (e *Engine) contentFor(node nxarchive.Node) []byte {
	if e.Options.ContentCacheBypass.Load() {
		return e.materialize(node)
	}

	if item := e.content.Get(node.ID()); item != nil {
		e.Metrics.TotalContentCacheHits.Add(1)

		return item.Value()
	}
	e.Metrics.TotalContentCacheMisses.Add(1)

	data := e.materialize(node)
	e.content.Set(node.ID(), data, ttlcache.DefaultTTL)

	return data
}

// materialize converts a node's typed value into the exact byte
// sequence that read operations serve for it. Pure with respect to the
// archive; callable repeatedly with identical results.
func (e *Engine) materialize(node nxarchive.Node) []byte {
	e.Metrics.TotalMaterializations.Add(1)

	switch kind := node.Kind(); kind {
	case nxarchive.KindEmpty:
		return nil

	case nxarchive.KindInteger:
		return strconv.AppendInt(nil, node.Integer(), 10)

	case nxarchive.KindFloat:
		return strconv.AppendFloat(nil, node.Float(), 'g', -1, 64)

	case nxarchive.KindString:
		return []byte(node.Text())

	case nxarchive.KindVector:
		x, y := node.Vector()

		return fmt.Appendf(nil, "(%d, %d)", x, y)

	case nxarchive.KindBitmap:
		e.Metrics.TotalBitmapEncodes.Add(1)

		return encodeBitmap(e.Options.BitmapFormat, node.Bitmap())

	case nxarchive.KindAudio:
		return node.Audio()

	default:
		panic(fmt.Sprintf("projection: node %d has unhandled kind %s", node.ID(), kind))
	}
}

// encodeBitmap wraps the decoded RGBA buffer into a self-describing,
// openable single-frame image container.
func encodeBitmap(format BitmapFormat, bm nxarchive.Bitmap) []byte {
	if format == BitmapBMP {
		return encodeBMP(bm)
	}

	return encodePNG(bm)
}

func encodePNG(bm nxarchive.Bitmap) []byte {
	img := &image.RGBA{
		Pix:    bm.Pix,
		Stride: bm.Width * 4,
		Rect:   image.Rect(0, 0, bm.Width, bm.Height),
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("projection: png encode of %dx%d bitmap: %v", bm.Width, bm.Height, err))
	}

	return buf.Bytes()
}

const (
	bmpFileHeaderSize = 14
	bmpV4HeaderSize   = 108
	bmpBitfields      = 3          // BI_BITFIELDS
	bmpSRGB           = 0x73524742 // 'sRGB'
)

// encodeBMP hand-assembles a legacy bitmap container: BITMAPV4HEADER,
// 32bpp with per-channel bit masks matching the RGBA byte order, and a
// negative height so rows stay top-to-bottom as decoded.
func encodeBMP(bm nxarchive.Bitmap) []byte {
	le := binary.LittleEndian
	out := make([]byte, bmpFileHeaderSize+bmpV4HeaderSize+len(bm.Pix))

	out[0], out[1] = 'B', 'M'
	le.PutUint32(out[2:], uint32(len(out)))
	le.PutUint32(out[10:], bmpFileHeaderSize+bmpV4HeaderSize) // pixel data offset

	dib := out[bmpFileHeaderSize:]
	le.PutUint32(dib[0:], bmpV4HeaderSize)
	le.PutUint32(dib[4:], uint32(int32(bm.Width)))
	le.PutUint32(dib[8:], uint32(int32(-bm.Height))) // top-down
	le.PutUint16(dib[12:], 1)                        // planes
	le.PutUint16(dib[14:], 32)                       // bpp
	le.PutUint32(dib[16:], bmpBitfields)
	le.PutUint32(dib[20:], uint32(len(bm.Pix)))
	le.PutUint32(dib[40:], 0x000000FF) // R mask
	le.PutUint32(dib[44:], 0x0000FF00) // G mask
	le.PutUint32(dib[48:], 0x00FF0000) // B mask
	le.PutUint32(dib[52:], 0xFF000000) // A mask
	le.PutUint32(dib[56:], bmpSRGB)

	copy(out[bmpFileHeaderSize+bmpV4HeaderSize:], bm.Pix)

	return out
}
