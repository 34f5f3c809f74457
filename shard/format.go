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
// Package shard implements the binary container format of spec.md §3:
// [HEADER | DATA | INDEX | FOOTER], its v1/v2 index-entry encoding, the
// three-range read protocol, and the streaming writer that produces it.
//
// The binary layout here plays the role the teacher's storage/shard.go and
// storage/persistence-files.go play for memcp's mutable column storage:
// this module's shards are immutable once closed, so there is no delta /
// rebuild cycle, only encode-once and decode-many.
package shard

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/errtax"
)

const (
	HeaderSize = 8
	FooterSize = 12

	HeaderMagic = "DES2"
	FooterMagic = "DESI"

	Version1 = 1
	Version2 = 2
)

// Header is the fixed 8-byte preamble of every shard.
type Header struct {
	Version uint8
}

// EncodeHeader writes the 8-byte header: magic, version, 3 reserved zero
// bytes.
func EncodeHeader(w io.Writer, version uint8) (int, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], HeaderMagic)
	buf[4] = version
	// buf[5:8] already zero (reserved)
	n, err := w.Write(buf)
	return n, err
}

// DecodeHeader parses exactly HeaderSize bytes and validates the magic.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("shard: header truncated: %w", errtax.ErrCorruptShard)
	}
	if string(buf[0:4]) != HeaderMagic {
		return Header{}, fmt.Errorf("shard: bad header magic %q: %w", buf[0:4], errtax.ErrCorruptShard)
	}
	version := buf[4]
	if version != Version1 && version != Version2 {
		return Header{}, fmt.Errorf("shard: unsupported version %d: %w", version, errtax.ErrCorruptShard)
	}
	return Header{Version: version}, nil
}

// EncodeFooter writes the 12-byte footer exactly as spec.md §3 pins it:
// magic, then big-endian index_size. There is no room for a version byte
// here by design (see DecodeFooter's doc comment on how version is
// resolved without one).
func EncodeFooter(w io.Writer, indexSize uint64) (int, error) {
	buf := make([]byte, FooterSize)
	copy(buf[0:4], FooterMagic)
	binary.BigEndian.PutUint64(buf[4:12], indexSize)
	return w.Write(buf)
}

// DecodeFooter parses exactly FooterSize (12) bytes and validates the
// magic, returning index_size. The footer carries no version field, so it
// alone cannot distinguish v1 from v2 shards; this module's own writer
// only ever emits v2, so FetchIndex (the hot retrieval path) assumes
// Version2 unconditionally and never needs a header round trip to learn
// it. Reading a v1 legacy archive (one this module did not write) requires
// the caller to say so explicitly — see FetchIndexWithVersion.
func DecodeFooter(buf []byte) (indexSize uint64, err error) {
	if len(buf) < FooterSize {
		return 0, fmt.Errorf("shard: footer truncated: %w", errtax.ErrCorruptShard)
	}
	if string(buf[0:4]) != FooterMagic {
		return 0, fmt.Errorf("shard: bad footer magic %q: %w", buf[0:4], errtax.ErrCorruptShard)
	}
	return binary.BigEndian.Uint64(buf[4:12]), nil
}

// Entry is the decoded form of one index record, inline or BigFile, in
// either v1 or v2 layout. UID and Meta are never mutated by the codec
// layer; Meta is preserved verbatim as opaque bytes for callers.
type Entry struct {
	UID []byte

	IsBigFile bool

	// inline fields
	Offset           uint64
	Length           uint64
	CodecID          codec.ID
	CompressedSize   uint64
	UncompressedSize uint64

	// BigFile fields
	HashHex     string
	BigFileSize uint64

	Meta []byte
}

const flagBigFile = 1 << 0

// EncodeEntryV2 appends one v2 index entry to w.
func EncodeEntryV2(w io.Writer, e Entry) error {
	if len(e.UID) > 0xFFFF {
		return fmt.Errorf("shard: uid too long (%d bytes): %w", len(e.UID), errtax.ErrInvalidInput)
	}
	if err := writeU16(w, uint16(len(e.UID))); err != nil {
		return err
	}
	if _, err := w.Write(e.UID); err != nil {
		return err
	}

	flags := uint8(0)
	if e.IsBigFile {
		flags |= flagBigFile
	}
	if _, err := w.Write([]byte{flags}); err != nil {
		return err
	}

	if e.IsBigFile {
		if err := writeU16(w, uint16(len(e.HashHex))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.HashHex); err != nil {
			return err
		}
		if err := writeU64(w, e.BigFileSize); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(e.Meta))); err != nil {
			return err
		}
		if _, err := w.Write(e.Meta); err != nil {
			return err
		}
		return nil
	}

	if err := writeU64(w, e.Offset); err != nil {
		return err
	}
	if err := writeU64(w, e.Length); err != nil {
		return err
	}
	if _, err := w.Write([]byte{uint8(e.CodecID)}); err != nil {
		return err
	}
	if err := writeU64(w, e.CompressedSize); err != nil {
		return err
	}
	if err := writeU64(w, e.UncompressedSize); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(e.Meta))); err != nil {
		return err
	}
	if _, err := w.Write(e.Meta); err != nil {
		return err
	}
	return nil
}

// DecodeIndex parses the full INDEX section for the given header version,
// returning entries in on-disk (arrival) order.
func DecodeIndex(version uint8, buf []byte) ([]Entry, error) {
	if version == Version1 {
		return decodeIndexV1(buf)
	}
	return decodeIndexV2(buf)
}

func decodeIndexV2(buf []byte) ([]Entry, error) {
	var entries []Entry
	r := &byteReader{buf: buf}
	for r.remaining() > 0 {
		nameLen, err := r.u16()
		if err != nil {
			return nil, err
		}
		uid, err := r.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		flagsB, err := r.bytes(1)
		if err != nil {
			return nil, err
		}
		e := Entry{UID: uid, IsBigFile: flagsB[0]&flagBigFile != 0}

		if e.IsBigFile {
			hashLen, err := r.u16()
			if err != nil {
				return nil, err
			}
			hashBytes, err := r.bytes(int(hashLen))
			if err != nil {
				return nil, err
			}
			e.HashHex = string(hashBytes)
			e.BigFileSize, err = r.u64()
			if err != nil {
				return nil, err
			}
			metaLen, err := r.u32()
			if err != nil {
				return nil, err
			}
			e.Meta, err = r.bytes(int(metaLen))
			if err != nil {
				return nil, err
			}
		} else {
			var err error
			e.Offset, err = r.u64()
			if err != nil {
				return nil, err
			}
			e.Length, err = r.u64()
			if err != nil {
				return nil, err
			}
			codecByte, err := r.bytes(1)
			if err != nil {
				return nil, err
			}
			e.CodecID = codec.ID(codecByte[0])
			e.CompressedSize, err = r.u64()
			if err != nil {
				return nil, err
			}
			e.UncompressedSize, err = r.u64()
			if err != nil {
				return nil, err
			}
			metaLen, err := r.u32()
			if err != nil {
				return nil, err
			}
			e.Meta, err = r.bytes(int(metaLen))
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// decodeIndexV1 parses the legacy, read-only layout: no flags byte, no
// BigFile arm, no meta; only inline entries with codec in {0,1,2}.
func decodeIndexV1(buf []byte) ([]Entry, error) {
	var entries []Entry
	r := &byteReader{buf: buf}
	for r.remaining() > 0 {
		nameLen, err := r.u16()
		if err != nil {
			return nil, err
		}
		uid, err := r.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		e := Entry{UID: uid}
		e.Offset, err = r.u64()
		if err != nil {
			return nil, err
		}
		e.Length, err = r.u64()
		if err != nil {
			return nil, err
		}
		codecByte, err := r.bytes(1)
		if err != nil {
			return nil, err
		}
		e.CodecID = codec.ID(codecByte[0])
		if !e.CodecID.Valid() {
			return nil, fmt.Errorf("shard: v1 entry with unsupported codec id %d: %w", e.CodecID, errtax.ErrCorruptShard)
		}
		e.CompressedSize, err = r.u64()
		if err != nil {
			return nil, err
		}
		e.UncompressedSize, err = r.u64()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ---- small big-endian helpers ----

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}
func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}
func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// byteReader is a minimal cursor over an in-memory index buffer; index
// sections are at most a few hundred KB so decoding the whole thing in
// memory (rather than streaming) keeps this trivially correct.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("shard: index truncated: %w", errtax.ErrCorruptShard)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *byteReader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *byteReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *byteReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}
