package dedisp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

// Grid file layout, all fields little-endian:
//
//	4 bytes: magic "DDGR"
//	2 bytes: version (1)
//	2 bytes: flags (bit 0 = payload is zstd-compressed)
//	4 bytes: rows (DM trials)
//	4 bytes: cols (time offsets)
//	8 bytes: payload length in bytes, as stored
//	8 bytes: xxh3 of the stored payload
//	payload: DMs (rows float64) | Times (cols float64) | Values (rows*cols float64)
const (
	gridMagic      = "DDGR"
	gridVersion    = 1
	gridHeaderSize = 32

	gridFlagZstd = 1 << 0

	// Upper bound on the decoded payload, keeps a corrupt header from
	// triggering a huge allocation.
	maxGridPayload = 1 << 31
)

var zstdEncoderPool = sync.Pool{
	New: func() interface{} {
		encoder, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return encoder
	},
}

// WriteGrid serializes g to w, compressing the payload when compress is set.
func WriteGrid(w io.Writer, g *SignificanceGrid, compress bool) error {
	rows, cols := g.Rows(), g.Cols()
	values := g.Values.DataFloat64()
	if len(values) != rows*cols {
		return fmt.Errorf("grid holds %d values for %d x %d axes", len(values), rows, cols)
	}

	raw := make([]byte, 0, 8*(rows+cols+rows*cols))
	for _, s := range [][]float64{g.DMs, g.Times, values} {
		for _, v := range s {
			raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(v))
		}
	}

	var flags uint16
	payload := raw
	if compress {
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		payload = enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
		zstdEncoderPool.Put(enc)
		flags |= gridFlagZstd
	}

	header := make([]byte, gridHeaderSize)
	copy(header[0:4], gridMagic)
	binary.LittleEndian.PutUint16(header[4:6], gridVersion)
	binary.LittleEndian.PutUint16(header[6:8], flags)
	binary.LittleEndian.PutUint32(header[8:12], uint32(rows))
	binary.LittleEndian.PutUint32(header[12:16], uint32(cols))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(payload)))
	binary.LittleEndian.PutUint64(header[24:32], xxh3.Hash(payload))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing grid header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing grid payload: %w", err)
	}
	return nil
}

// ReadGrid decodes a grid written by WriteGrid and verifies its checksum.
func ReadGrid(r io.Reader) (*SignificanceGrid, error) {
	header := make([]byte, gridHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading grid header: %w", err)
	}
	if string(header[0:4]) != gridMagic {
		return nil, fmt.Errorf("%w: bad grid magic %q", ErrUnsupportedFormat, header[0:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != gridVersion {
		return nil, fmt.Errorf("%w: grid version %d", ErrUnsupportedFormat, v)
	}
	flags := binary.LittleEndian.Uint16(header[6:8])
	if flags&^gridFlagZstd != 0 {
		return nil, fmt.Errorf("%w: unknown grid flags %#x", ErrUnsupportedFormat, flags)
	}
	rows := int(binary.LittleEndian.Uint32(header[8:12]))
	cols := int(binary.LittleEndian.Uint32(header[12:16]))
	stored := binary.LittleEndian.Uint64(header[16:24])
	sum := binary.LittleEndian.Uint64(header[24:32])

	want := 8 * (uint64(rows) + uint64(cols) + uint64(rows)*uint64(cols))
	if want > maxGridPayload || stored > maxGridPayload {
		return nil, fmt.Errorf("%w: grid of %d x %d is too large", ErrUnsupportedFormat, rows, cols)
	}
	if flags&gridFlagZstd == 0 && stored != want {
		return nil, fmt.Errorf("%w: payload of %d bytes for a %d x %d grid", ErrUnsupportedFormat, stored, rows, cols)
	}

	payload := make([]byte, stored)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading grid payload: %w", err)
	}
	if got := xxh3.Hash(payload); got != sum {
		return nil, fmt.Errorf("%w: header %016x, payload %016x", ErrChecksumMismatch, sum, got)
	}

	raw := payload
	if flags&gridFlagZstd != 0 {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(max(want, 1)))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(payload, make([]byte, 0, want))
		if err != nil {
			return nil, fmt.Errorf("zstd decompression error: %w", err)
		}
		if uint64(len(raw)) != want {
			return nil, fmt.Errorf("%w: decompressed %d bytes for a %d x %d grid", ErrUnsupportedFormat, len(raw), rows, cols)
		}
	}

	next := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[:8]))
			raw = raw[8:]
		}
		return out
	}
	dms := next(rows)
	times := next(cols)
	values := next(rows * cols)

	g := &SignificanceGrid{DMs: dms, Times: times}
	if rows == 0 || cols == 0 {
		g.Values = NewMat()
	} else {
		g.Values = NewMatFromFloat64(rows, cols, values)
	}
	return g, nil
}

// SaveGrid writes g to path.
func SaveGrid(path string, g *SignificanceGrid, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating grid file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteGrid(bw, g, compress); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing grid file: %w", err)
	}
	return f.Close()
}

// LoadGrid reads a grid file written by SaveGrid.
func LoadGrid(path string) (*SignificanceGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grid file: %w", err)
	}
	defer f.Close()
	return ReadGrid(bufio.NewReader(f))
}
