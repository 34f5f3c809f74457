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

package retrieval

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/errtax"
	"github.com/coldshard/des/planner"
)

func packOne(t *testing.T, be backend.Backend, uid, content string, createdAt time.Time) {
	t.Helper()
	cfg := planner.DefaultConfig()
	cfg.WriterConfig.Compression.Codec = codec.None
	file := planner.FileToPack{
		UID:       []byte(uid),
		CreatedAt: createdAt,
		SizeHint:  int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
	result, err := planner.Plan(context.Background(), be, cfg, []planner.FileToPack{file})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, fr := range result.Files {
		if fr.Err != nil {
			t.Fatalf("pack %s: %v", uid, fr.Err)
		}
	}
}

func TestGetFallsThroughToShardAndWarmsCache(t *testing.T) {
	be := backend.NewMemoryBackend()
	createdAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	packOne(t, be, "uid-1", "hello-world-payload", createdAt)

	cfg := DefaultConfig()
	e := New(be, cfg)

	be.ResetCounters()
	data, err := e.Get(context.Background(), []byte("uid-1"), createdAt)
	if err != nil {
		t.Fatalf("cold Get: %v", err)
	}
	if string(data) != "hello-world-payload" {
		t.Fatalf("data = %q", data)
	}
	if be.RangeGetCount != 3 {
		t.Fatalf("cold RangeGetCount = %d, want 3", be.RangeGetCount)
	}

	be.ResetCounters()
	data, err = e.Get(context.Background(), []byte("uid-1"), createdAt)
	if err != nil {
		t.Fatalf("warm Get: %v", err)
	}
	if string(data) != "hello-world-payload" {
		t.Fatalf("warm data = %q", data)
	}
	if be.RangeGetCount != 1 {
		t.Fatalf("warm RangeGetCount = %d, want 1", be.RangeGetCount)
	}

	stats := e.Stats()
	if stats.Hits != 2 {
		t.Fatalf("Hits = %d, want 2", stats.Hits)
	}
}

func TestGetUnknownUIDReturnsNotFound(t *testing.T) {
	be := backend.NewMemoryBackend()
	createdAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	packOne(t, be, "uid-present", "payload", createdAt)

	e := New(be, DefaultConfig())
	_, err := e.Get(context.Background(), []byte("uid-missing"), createdAt)
	if !errtax.Is(err, errtax.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetRetentionWithoutOverlayConfiguredIsInvalidInput(t *testing.T) {
	be := backend.NewMemoryBackend()
	createdAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	packOne(t, be, "uid-2", "payload", createdAt)

	e := New(be, DefaultConfig()) // OverlayPrefix left empty
	_, err := e.SetRetention(context.Background(), []byte("uid-2"), createdAt, time.Now().Add(24*time.Hour))
	if !errtax.Is(err, errtax.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSetRetentionMovesIntoOverlayThenIsProbedFirst(t *testing.T) {
	be := backend.NewMemoryBackend()
	createdAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	packOne(t, be, "uid-3", "original-payload", createdAt)

	cfg := DefaultConfig()
	cfg.OverlayPrefix = "_ext_retention"
	e := New(be, cfg)

	res, err := e.SetRetention(context.Background(), []byte("uid-3"), createdAt, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SetRetention: %v", err)
	}
	if res.Action == "" {
		t.Fatalf("expected a non-empty Action")
	}

	be.ResetCounters()
	data, err := e.Get(context.Background(), []byte("uid-3"), createdAt)
	if err != nil {
		t.Fatalf("Get after SetRetention: %v", err)
	}
	if string(data) != "original-payload" {
		t.Fatalf("data = %q", data)
	}
	// overlay probe resolves the read without ever touching the shard's
	// range-GET path.
	if be.RangeGetCount != 0 {
		t.Fatalf("RangeGetCount = %d, want 0 (overlay should short-circuit the shard reader)", be.RangeGetCount)
	}

	stats := e.Stats()
	if stats.OverlayHits != 1 {
		t.Fatalf("OverlayHits = %d, want 1", stats.OverlayHits)
	}
}
