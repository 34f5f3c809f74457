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

// Package zone implements the multi-zone dispatcher of spec.md §4.8: a
// static, immutable-at-runtime partitioning of [0, 2^n_bits) shard indices
// into contiguous [start,end) ranges, each routed to its own backend.
//
// The lookup structure is the teacher's own
// third_party/NonLockingReadMap, generalized from memcp's use of it for
// the database catalog (tables_catalog.go) to zone-range membership here:
// read is always nonblocking and O(log N), which matters because every
// retrieval engine Get() consults the dispatcher.
package zone

import (
	"fmt"
	"sort"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/errtax"
	"github.com/launix-de/NonLockingReadMap"
)

// zoneEntry is one [Start,End) range bound to a backend. NonLockingReadMap
// keys entries by a single orderable field, so entries are keyed by Start;
// membership (start <= idx < end) is then a manual binary search over the
// map's sorted GetAll() snapshot rather than the map's own exact-match Get.
type zoneEntry struct {
	Start uint32
	End   uint32
	Name  string
	be    backend.Backend
}

func (z zoneEntry) GetKey() uint32    { return z.Start }
func (z zoneEntry) ComputeSize() uint { return 24 + uint(len(z.Name)) }

// Dispatcher routes a shard_index to the backend owning its zone.
// Construction is the only mutation point; Locate is safe for concurrent
// use without any lock, per spec.md §4.8's "immutable at runtime" rule.
type Dispatcher struct {
	nBits uint
	m     NonLockingReadMap.NonLockingReadMap[zoneEntry, uint32]
	count int
}

// ZoneSpec is one caller-supplied zone definition before validation.
type ZoneSpec struct {
	Start uint32
	End   uint32
	Name  string
	Be    backend.Backend
}

// New validates that zones are contiguous, non-overlapping, and exactly
// cover [0, 2^nBits), then builds the dispatcher. Any violation is a
// construction-time error (spec.md never routes around a malformed zone
// table at runtime).
func New(nBits int, zones []ZoneSpec) (*Dispatcher, error) {
	if nBits < 1 {
		return nil, fmt.Errorf("zone: n_bits must be positive, got %d: %w", nBits, errtax.ErrInvalidInput)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("zone: at least one zone required: %w", errtax.ErrInvalidInput)
	}

	sorted := append([]ZoneSpec(nil), zones...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	total := uint32(1) << uint(nBits)
	expectedStart := uint32(0)
	for _, z := range sorted {
		if z.End <= z.Start {
			return nil, fmt.Errorf("zone: %s has empty or inverted range [%d,%d): %w", z.Name, z.Start, z.End, errtax.ErrInvalidInput)
		}
		if z.Start != expectedStart {
			return nil, fmt.Errorf("zone: %s starts at %d, expected %d (zones must be contiguous, no gaps or overlaps): %w", z.Name, z.Start, expectedStart, errtax.ErrInvalidInput)
		}
		if z.Be == nil {
			return nil, fmt.Errorf("zone: %s has a nil backend: %w", z.Name, errtax.ErrInvalidInput)
		}
		expectedStart = z.End
	}
	if expectedStart != total {
		return nil, fmt.Errorf("zone: zones cover up to %d, want exactly %d (2^%d): %w", expectedStart, total, nBits, errtax.ErrInvalidInput)
	}

	d := &Dispatcher{nBits: uint(nBits), m: NonLockingReadMap.New[zoneEntry, uint32]()}
	for _, z := range sorted {
		entry := &zoneEntry{Start: z.Start, End: z.End, Name: z.Name, be: z.Be}
		d.m.Set(entry)
		d.count++
	}
	return d, nil
}

// Locate returns the backend and zone name owning shardIndex.
func (d *Dispatcher) Locate(shardIndex uint32) (backend.Backend, string, error) {
	entries := d.m.GetAll()
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		e := entries[mid]
		if shardIndex < e.Start {
			hi = mid
		} else if shardIndex >= e.End {
			lo = mid + 1
		} else {
			return e.be, e.Name, nil
		}
	}
	return nil, "", fmt.Errorf("zone: shard_index %d has no owning zone: %w", shardIndex, errtax.ErrInvalidInput)
}

// ZoneCount reports how many zones the dispatcher was built with, for
// tests and the metrics surface.
func (d *Dispatcher) ZoneCount() int { return d.count }

// Zones returns the current zone table snapshot, ordered by Start, for
// introspection (e.g. an admin endpoint listing backend assignments).
func (d *Dispatcher) Zones() []ZoneSpec {
	entries := d.m.GetAll()
	out := make([]ZoneSpec, 0, len(entries))
	for _, e := range entries {
		out = append(out, ZoneSpec{Start: e.Start, End: e.End, Name: e.Name, Be: e.be})
	}
	return out
}
