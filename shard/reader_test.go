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
	"strings"
	"testing"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/errtax"
)

func writeShard(t *testing.T, be backend.Backend, key string, cfg WriterConfig, entries []struct {
	uid  string
	data string
}) CloseResult {
	t.Helper()
	w, err := Open(be, key, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, e := range entries {
		if err := w.Append(context.Background(), []byte(e.uid), strings.NewReader(e.data), int64(len(e.data)), nil); err != nil {
			t.Fatalf("Append(%s): %v", e.uid, err)
		}
	}
	res, err := w.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	return res
}

func TestGetColdThenWarmRangeGetCounts(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultWriterConfig()
	cfg.Compression = codec.Config{Codec: codec.None, Skip: codec.DefaultSkipConfig()}

	writeShard(t, be, "20240101/ab.des", cfg, []struct {
		uid  string
		data string
	}{
		{"file-1", "hello world"},
		{"file-2", "goodbye world"},
	})

	be.ResetCounters()
	payload, idx, rangeGets, err := Get(context.Background(), be, "20240101/ab.des", []byte("file-1"), nil, "_bigFiles")
	if err != nil {
		t.Fatalf("cold Get: %v", err)
	}
	if string(payload) != "hello world" {
		t.Fatalf("payload = %q, want %q", payload, "hello world")
	}
	if rangeGets != 3 {
		t.Fatalf("cold rangeGets = %d, want 3", rangeGets)
	}
	if idx == nil {
		t.Fatalf("expected fetchedIndex on cold path")
	}

	be.ResetCounters()
	payload2, idx2, rangeGets2, err := Get(context.Background(), be, "20240101/ab.des", []byte("file-2"), idx, "_bigFiles")
	if err != nil {
		t.Fatalf("warm Get: %v", err)
	}
	if string(payload2) != "goodbye world" {
		t.Fatalf("payload2 = %q, want %q", payload2, "goodbye world")
	}
	if rangeGets2 != 1 {
		t.Fatalf("warm rangeGets = %d, want 1", rangeGets2)
	}
	if idx2 != nil {
		t.Fatalf("expected no re-fetch on warm path")
	}
	if be.RangeGetCount != 1 {
		t.Fatalf("backend RangeGetCount = %d, want 1", be.RangeGetCount)
	}
}

func TestGetDuplicateUIDLastWins(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultWriterConfig()
	cfg.Compression = codec.Config{Codec: codec.None, Skip: codec.DefaultSkipConfig()}

	writeShard(t, be, "20240101/cd.des", cfg, []struct {
		uid  string
		data string
	}{
		{"dup", "version-one"},
		{"other", "unrelated"},
		{"dup", "version-two"},
	})

	payload, _, _, err := Get(context.Background(), be, "20240101/cd.des", []byte("dup"), nil, "_bigFiles")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(payload) != "version-two" {
		t.Fatalf("payload = %q, want %q (last occurrence should win)", payload, "version-two")
	}
}

func TestGetUnknownUIDNotFound(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultWriterConfig()
	writeShard(t, be, "20240101/ef.des", cfg, []struct {
		uid  string
		data string
	}{{"present", "x"}})

	_, _, _, err := Get(context.Background(), be, "20240101/ef.des", []byte("absent"), nil, "_bigFiles")
	if !errtax.Is(err, errtax.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetTruncatedShardIsCorrupt(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultWriterConfig()
	writeShard(t, be, "20240101/gh.des", cfg, []struct {
		uid  string
		data string
	}{{"present", "some payload bytes"}})

	full, err := be.Get(context.Background(), "20240101/gh.des")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	truncated := full[:len(full)-2]
	if err := be.Delete(context.Background(), "20240101/gh.des"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := be.Put(context.Background(), "20240101/gh.des", bytes.NewReader(truncated), int64(len(truncated))); err != nil {
		t.Fatalf("Put truncated: %v", err)
	}

	_, _, _, err = Get(context.Background(), be, "20240101/gh.des", []byte("present"), nil, "_bigFiles")
	if !errtax.Is(err, errtax.ErrCorruptShard) {
		t.Fatalf("err = %v, want ErrCorruptShard", err)
	}
}

func TestGetBigFileBoundary(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultWriterConfig()
	cfg.BigFileThresholdBytes = 16

	w, err := Open(be, "20240101/ij.des", cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	justUnder := strings.Repeat("a", 15)
	atThreshold := strings.Repeat("b", 16)
	if err := w.Append(context.Background(), []byte("under"), strings.NewReader(justUnder), int64(len(justUnder)), nil); err != nil {
		t.Fatalf("Append under: %v", err)
	}
	if err := w.Append(context.Background(), []byte("at"), strings.NewReader(atThreshold), int64(len(atThreshold)), nil); err != nil {
		t.Fatalf("Append at: %v", err)
	}
	if _, err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	under, idx, _, err := Get(context.Background(), be, "20240101/ij.des", []byte("under"), nil, "_bigFiles")
	if err != nil {
		t.Fatalf("Get under: %v", err)
	}
	if string(under) != justUnder {
		t.Fatalf("under-threshold payload mismatch")
	}
	e, ok := idx.byUID([]byte("under"))
	if !ok || e.IsBigFile {
		t.Fatalf("expected %q stored inline, got IsBigFile=%v ok=%v", "under", e.IsBigFile, ok)
	}

	at, idx2, _, err := Get(context.Background(), be, "20240101/ij.des", []byte("at"), nil, "_bigFiles")
	if err != nil {
		t.Fatalf("Get at: %v", err)
	}
	if string(at) != atThreshold {
		t.Fatalf("at-threshold payload mismatch")
	}
	e2, ok := idx2.byUID([]byte("at"))
	if !ok || !e2.IsBigFile {
		t.Fatalf("expected %q stored as bigfile, got IsBigFile=%v ok=%v", "at", e2.IsBigFile, ok)
	}
}
