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

package migration

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/planner"
)

// sliceDriver is a minimal Driver backed by an in-memory slice, standing in
// for a SQL-watermark-backed driver in tests: advancing its own cursor is
// exactly the kind of concern Pack must never touch.
type sliceDriver struct {
	entries []ManifestEntry
	pos     int
}

func (d *sliceDriver) Next(ctx context.Context) (ManifestEntry, error) {
	if d.pos >= len(d.entries) {
		return ManifestEntry{}, io.EOF
	}
	e := d.entries[d.pos]
	d.pos++
	return e, nil
}

func openerFor(content string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func TestPackDrainsDriverAndProducesRetrievableShards(t *testing.T) {
	be := backend.NewMemoryBackend()
	createdAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	driver := &sliceDriver{entries: []ManifestEntry{
		{UID: []byte("m-1"), CreatedAt: createdAt, SizeBytes: 1, Open: openerFor("a")},
		{UID: []byte("m-2"), CreatedAt: createdAt, SizeBytes: 2, Open: openerFor("bb")},
	}}

	cfg := planner.DefaultConfig()
	cfg.WriterConfig.Compression.Codec = codec.None

	result, err := Pack(context.Background(), be, cfg, driver)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(result.Files))
	}
	for _, fr := range result.Files {
		if fr.Err != nil {
			t.Fatalf("file %x failed: %v", fr.UID, fr.Err)
		}
	}
	if driver.pos != 2 {
		t.Fatalf("driver.pos = %d, want 2 (fully drained)", driver.pos)
	}
}

func TestPackPropagatesDriverError(t *testing.T) {
	be := backend.NewMemoryBackend()
	errDriver := driverFunc(func(ctx context.Context) (ManifestEntry, error) {
		return ManifestEntry{}, errExplodingDriver
	})

	cfg := planner.DefaultConfig()
	_, err := Pack(context.Background(), be, cfg, errDriver)
	if err == nil {
		t.Fatalf("expected an error from a driver that never returns io.EOF cleanly")
	}
}

type driverFunc func(ctx context.Context) (ManifestEntry, error)

func (f driverFunc) Next(ctx context.Context) (ManifestEntry, error) { return f(ctx) }

var errExplodingDriver = io.ErrUnexpectedEOF
