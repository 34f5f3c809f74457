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
// Package router is the pure, stateless function mapping (uid, created_at,
// n_bits) to a concrete shard location. It performs no I/O and is safe for
// concurrent use without any synchronization — the teacher's storage package
// keeps a similar pure-helper flavor in storage-scmer.go's key routines.
package router

import (
	"fmt"
	"hash/crc32"
	"time"

	"github.com/coldshard/des/errtax"
)

// MinBits and MaxBits bound n_bits (spec §4.1): 2^4 to 2^16 shards per day.
const (
	MinBits = 4
	MaxBits = 16
)

// ShardLocation is the result of locate(): the complete addressing
// information needed to read or write one uid's shard.
type ShardLocation struct {
	DateDir    string // 8-character UTC calendar date, YYYYMMDD
	ShardIndex uint32 // in [0, 2^n_bits)
	ShardHex   string // lowercase hex of ShardIndex, zero-padded to ceil(n_bits/4) chars
	ObjectKey  string // "<date_dir>/<shard_hex>.des"; the writer alone picks split suffixes
}

// ieeeTable is the standard CRC32-IEEE polynomial (0xEDB88320) table,
// pinned by spec.md §4.1 for cross-implementation routing agreement.
var ieeeTable = crc32.MakeTable(crc32.IEEE)

// Locate computes the ShardLocation for uid at createdAt with the given
// routing-bit width. It is pure, O(len(uid)), and issues no I/O. createdAt
// may be in any location; it is converted to UTC before deriving date_dir.
func Locate(uid []byte, createdAt time.Time, nBits int) (ShardLocation, error) {
	if len(uid) == 0 {
		return ShardLocation{}, fmt.Errorf("router: empty uid: %w", errtax.ErrInvalidInput)
	}
	if nBits < MinBits || nBits > MaxBits {
		return ShardLocation{}, fmt.Errorf("router: n_bits %d out of [%d,%d]: %w", nBits, MinBits, MaxBits, errtax.ErrInvalidInput)
	}

	dateDir := createdAt.UTC().Format("20060102")

	mask := uint32(1)<<uint(nBits) - 1
	shardIndex := crc32.Checksum(uid, ieeeTable) & mask

	hexWidth := (nBits + 3) / 4
	shardHex := fmt.Sprintf("%0*x", hexWidth, shardIndex)

	return ShardLocation{
		DateDir:    dateDir,
		ShardIndex: shardIndex,
		ShardHex:   shardHex,
		ObjectKey:  dateDir + "/" + shardHex + ".des",
	}, nil
}

// NumShards returns 2^n_bits, the number of distinct shard indices a given
// n_bits partitions each calendar day into.
func NumShards(nBits int) uint32 {
	return uint32(1) << uint(nBits)
}
