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
package shard

import (
	"bytes"
	"context"
	"fmt"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/errtax"
)

// Index is the parsed INDEX section of one shard plus the data-section
// start offset, the unit the index cache stores (spec.md §3, §4.7).
type Index struct {
	Version   uint8
	Entries   []Entry
	DataStart uint64 // always HeaderSize for this format, kept explicit for clarity
	FileSize  int64
}

// byUID returns the LAST entry matching uid (spec.md §8 "duplicate-UID
// resolution": later arrival wins), or false if uid is absent.
func (idx Index) byUID(uid []byte) (Entry, bool) {
	for i := len(idx.Entries) - 1; i >= 0; i-- {
		if bytes.Equal(idx.Entries[i].UID, uid) {
			return idx.Entries[i], true
		}
	}
	return Entry{}, false
}

// FetchIndex performs the footer range read (spec.md §4.4 step 1) followed
// by the index range read (step 2): two range GETs on a cold cache. It
// always decodes the index as v2, the only version this module's own
// writer ever produces; the footer's 12-byte layout (spec.md §3) carries no
// version field, so this is the hot retrieval path's contract, not a
// detection heuristic. Reading a foreign v1 archive this module never
// wrote requires FetchIndexWithVersion instead.
func FetchIndex(ctx context.Context, be backend.Backend, objectKey string) (Index, error) {
	return fetchIndex(ctx, be, objectKey, Version2)
}

// FetchIndexWithVersion is FetchIndex with an explicit version, for
// callers (repack/migration tooling) that already know a given shard
// object predates this writer and was produced by a v1-era deployment.
// Because the 12-byte footer carries no in-band version tag (spec.md §3
// pins its exact layout), there is no way to auto-detect v1 vs v2 from the
// footer alone; ordinary online retrieval never takes this path.
func FetchIndexWithVersion(ctx context.Context, be backend.Backend, objectKey string, version uint8) (Index, error) {
	return fetchIndex(ctx, be, objectKey, version)
}

func fetchIndex(ctx context.Context, be backend.Backend, objectKey string, version uint8) (Index, error) {
	footerBytes, fileSize, err := be.GetRange(ctx, objectKey, -int64(FooterSize), 0)
	if err != nil {
		return Index{}, wrapBackendErr(err)
	}
	if len(footerBytes) < FooterSize {
		return Index{}, fmt.Errorf("shard: footer short read (%d bytes): %w", len(footerBytes), errtax.ErrCorruptShard)
	}
	footerBuf := footerBytes[len(footerBytes)-FooterSize:]
	indexSize, err := DecodeFooter(footerBuf)
	if err != nil {
		return Index{}, err
	}

	indexStart := fileSize - int64(FooterSize) - int64(indexSize)
	if indexStart < int64(HeaderSize) || indexStart+int64(indexSize) > fileSize-int64(FooterSize) {
		return Index{}, fmt.Errorf("shard: index bounds [%d,+%d) inconsistent with file size %d: %w", indexStart, indexSize, fileSize, errtax.ErrCorruptShard)
	}

	indexBytes, _, err := be.GetRange(ctx, objectKey, indexStart, indexStart+int64(indexSize)-1)
	if err != nil {
		return Index{}, wrapBackendErr(err)
	}

	entries, err := DecodeIndex(version, indexBytes)
	if err != nil {
		return Index{}, err
	}

	return Index{
		Version:   version,
		Entries:   entries,
		DataStart: HeaderSize,
		FileSize:  fileSize,
	}, nil
}

// Get reconstructs uid's bytes from the shard at objectKey. If idx is
// non-nil, it is assumed already fetched (a cache hit) and only the
// payload range is read — the warm-cache "one range GET" path of spec.md
// §4.4/§8. If idx is nil, Get fetches it first (two more range GETs), the
// cold path, for three range GETs total.
//
// rangeGets reports how many range GET calls this invocation issued, for
// the "exactly three on cold, exactly one on warm" testable property.
func Get(ctx context.Context, be backend.Backend, objectKey string, uid []byte, idx *Index, bigFilesPrefix string) (payload []byte, fetchedIndex *Index, rangeGets int, err error) {
	if bigFilesPrefix == "" {
		bigFilesPrefix = DefaultBigFilesPrefix
	}
	var useIdx Index
	if idx != nil {
		useIdx = *idx
	} else {
		fetched, ferr := FetchIndex(ctx, be, objectKey)
		if ferr != nil {
			return nil, nil, 2, ferr
		}
		useIdx = fetched
		fetchedIndex = &fetched
		rangeGets = 2
	}

	entry, ok := useIdx.byUID(uid)
	if !ok {
		return nil, fetchedIndex, rangeGets, fmt.Errorf("shard: uid not found in %s: %w", objectKey, errtax.ErrNotFound)
	}

	if entry.IsBigFile {
		data, gerr := be.Get(ctx, bigFileKeyOf(entry, bigFilesPrefix))
		if gerr != nil {
			return nil, fetchedIndex, rangeGets, wrapBackendErr(gerr)
		}
		if uint64(len(data)) != entry.BigFileSize {
			return nil, fetchedIndex, rangeGets, fmt.Errorf("shard: bigfile %s size mismatch (got %d, want %d): %w", entry.HashHex, len(data), entry.BigFileSize, errtax.ErrCorruptShard)
		}
		return data, fetchedIndex, rangeGets, nil
	}

	if !entry.CodecID.Valid() {
		return nil, fetchedIndex, rangeGets, fmt.Errorf("shard: unsupported codec id %d: %w", entry.CodecID, errtax.ErrCorruptShard)
	}

	body, _, perr := be.GetRange(ctx, objectKey, int64(entry.Offset), int64(entry.Offset+entry.Length)-1)
	if perr != nil {
		return nil, fetchedIndex, rangeGets, wrapBackendErr(perr)
	}
	rangeGets++

	decoded, derr := codec.DecodeInto(entry.CodecID, body, int(entry.UncompressedSize))
	if derr != nil {
		return nil, fetchedIndex, rangeGets, derr
	}
	if uint64(len(decoded)) != entry.UncompressedSize {
		return nil, fetchedIndex, rangeGets, fmt.Errorf("shard: %s decoded length %d != uncompressed_size %d: %w", objectKey, len(decoded), entry.UncompressedSize, errtax.ErrCorruptShard)
	}
	return decoded, fetchedIndex, rangeGets, nil
}

// bigFileKeyOf derives the sibling object key from the index entry and the
// deployment's configured bigfiles prefix. The prefix is not recorded
// per-entry — it is a deployment-wide constant supplied by the caller —
// so it must match whatever WriterConfig.BigFilesPrefix produced the
// shard (spec.md §6's bigfiles_prefix).
func bigFileKeyOf(e Entry, prefix string) string {
	return prefix + "/" + e.HashHex
}

// DefaultBigFilesPrefix is spec.md §6's default bigfiles_prefix.
const DefaultBigFilesPrefix = "_bigFiles"

func wrapBackendErr(err error) error {
	if errtax.Is(err, errtax.ErrNotFound) || errtax.Is(err, errtax.ErrCorruptShard) {
		return err
	}
	return fmt.Errorf("shard: %w: %w", err, errtax.ErrBackend)
}
