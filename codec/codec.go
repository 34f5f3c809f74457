/*
Copyright (C) 2026  coldshard contributors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// Package codec is the pluggable compression adapter (spec.md §4.2). It
// knows nothing about shard entries or indexes; it only turns one byte
// sequence into another and back. The teacher keeps a similarly narrow
// adapter boundary in storage/overlay-blob.go (gzip in, gzip out) — this
// package generalizes that idea to the three codecs the wire format pins.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/coldshard/des/errtax"
)

// ID is the one-byte codec identifier stored in every inline index entry.
type ID uint8

const (
	None ID = 0
	Zstd ID = 1
	LZ4  ID = 2
)

func (id ID) String() string {
	switch id {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Valid reports whether id is one of the three codecs this module supports.
func (id ID) Valid() bool {
	switch id {
	case None, Zstd, LZ4:
		return true
	default:
		return false
	}
}

// Codec is the capability set spec.md §9 asks for in place of duck typing:
// one encode, one decode, dispatched by tag.
type Codec interface {
	ID() ID
	Encode(level int, src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// Decode dispatches to the codec named by id. It is the single entry point
// the shard reader needs; writers hold a concrete Codec from a Config.
func Decode(id ID, src []byte) ([]byte, error) {
	switch id {
	case None:
		return noneCodec{}.Decode(src)
	case Zstd:
		return zstdCodec{}.Decode(src)
	case LZ4:
		return lz4Codec{}.Decode(src)
	default:
		return nil, fmt.Errorf("codec: unknown codec id %d: %w", id, errtax.ErrCorruptShard)
	}
}

// ---- none ----

type noneCodec struct{}

func (noneCodec) ID() ID                             { return None }
func (noneCodec) Encode(_ int, src []byte) ([]byte, error) { return src, nil }
func (noneCodec) Decode(src []byte) ([]byte, error)        { return src, nil }

// ---- zstd ----
// Borrowed from the rest of the retrieval pack: neither memcp nor any of
// its vendored deps implement zstd, but distr1-distri and
// rpcpool-yellowstone-faithful both depend on klauspost/compress, which
// ships it.

type zstdCodec struct{}

func (zstdCodec) ID() ID { return Zstd }

func (zstdCodec) Encode(level int, src []byte) ([]byte, error) {
	opts := []zstd.EOption{zstd.WithEncoderLevel(levelToZstd(level))}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

func (zstdCodec) Decode(src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decode: %w: %w", err, errtax.ErrCorruptShard)
	}
	return out, nil
}

func levelToZstd(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// ---- lz4 ----
// The one domain dependency the teacher's own go.mod already carries.

type lz4Codec struct{}

func (lz4Codec) ID() ID { return LZ4 }

func (lz4Codec) Encode(level int, src []byte) ([]byte, error) {
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := c.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: lz4 encode: %w", err)
	}
	if n == 0 {
		// incompressible block: lz4 signals this by writing nothing
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decode(src []byte) ([]byte, error) {
	// lz4 block format carries no uncompressed-size header; the caller
	// (shard reader) knows uncompressed_size from the index entry and must
	// grow the buffer if this guess undershoots.
	dst := make([]byte, 4*len(src)+64)
	for {
		n, err := lz4.UncompressBlock(src, dst)
		if err == nil {
			return dst[:n], nil
		}
		if err == lz4.ErrInvalidSourceShortBuffer && len(dst) < 1<<30 {
			dst = make([]byte, len(dst)*2)
			continue
		}
		return nil, fmt.Errorf("codec: lz4 decode: %w: %w", err, errtax.ErrCorruptShard)
	}
}

var errIncompressible = fmt.Errorf("codec: lz4 block did not compress")

// DecodeInto decodes an lz4 block when the exact uncompressed size is known
// in advance (the shard reader always knows it from uncompressed_size),
// avoiding the grow-and-retry loop in lz4Codec.Decode.
func DecodeInto(id ID, src []byte, uncompressedSize int) ([]byte, error) {
	switch id {
	case None:
		return append([]byte(nil), src...), nil
	case Zstd:
		return zstdCodec{}.Decode(src)
	case LZ4:
		dst := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("codec: lz4 decode: %w: %w", err, errtax.ErrCorruptShard)
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("codec: unknown codec id %d: %w", id, errtax.ErrCorruptShard)
	}
}

// copyReader reads all of r; small helper kept here (not io.ReadAll's job
// alone) because several call sites need the byte count for size hints too.
func copyReader(r io.Reader) ([]byte, int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	return buf.Bytes(), n, err
}
