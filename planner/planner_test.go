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

package planner

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/shard"
)

func fileFromString(uid, content string, createdAt time.Time) FileToPack {
	return FileToPack{
		UID:       []byte(uid),
		CreatedAt: createdAt,
		SizeHint:  int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestPlanGroupsByShardAndWritesRetrievableShards(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultConfig()
	cfg.WriterConfig.Compression = codec.Config{Codec: codec.None, Skip: codec.DefaultSkipConfig()}
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	files := []FileToPack{
		fileFromString("alpha", "alpha payload", day),
		fileFromString("beta", "beta payload", day),
		fileFromString("gamma", "gamma payload", day),
	}

	result, err := Plan(context.Background(), be, cfg, files)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Files) != 3 {
		t.Fatalf("Files = %d, want 3", len(result.Files))
	}
	for _, fr := range result.Files {
		if fr.Err != nil {
			t.Fatalf("file %s failed: %v", fr.UID, fr.Err)
		}
	}

	for i, f := range files {
		objectKey := result.Files[i].ObjectKey
		payload, _, _, err := shard.Get(context.Background(), be, objectKey, f.UID, nil, "_bigFiles")
		if err != nil {
			t.Fatalf("Get(%s): %v", f.UID, err)
		}
		rc, _ := f.Open()
		want, _ := io.ReadAll(rc)
		if string(payload) != string(want) {
			t.Fatalf("payload for %s = %q, want %q", f.UID, payload, want)
		}
	}
}

func TestPlanIsolatesPerFileOpenFailure(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultConfig()
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	boom := errors.New("disk read error")
	files := []FileToPack{
		fileFromString("good-1", "ok", day),
		{
			UID:       []byte("bad"),
			CreatedAt: day,
			Open:      func() (io.ReadCloser, error) { return nil, boom },
		},
		fileFromString("good-2", "also ok", day),
	}

	result, err := Plan(context.Background(), be, cfg, files)
	if err != nil {
		t.Fatalf("Plan should isolate per-file errors, got top-level error: %v", err)
	}

	var failed, succeeded int
	for _, fr := range result.Files {
		if fr.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	if failed != 1 || succeeded != 2 {
		t.Fatalf("failed=%d succeeded=%d, want 1 and 2", failed, succeeded)
	}
}

func TestPlanSplitsOversizedGroupAcrossShards(t *testing.T) {
	be := backend.NewMemoryBackend()
	cfg := DefaultConfig()
	cfg.WriterConfig.Compression = codec.Config{Codec: codec.None, Skip: codec.DefaultSkipConfig()}
	cfg.WriterConfig.MaxShardSizeBytes = 32
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	files := []FileToPack{
		fileFromString("split-0", strings.Repeat("a", 20), day),
		fileFromString("split-80", strings.Repeat("b", 20), day),
	}

	result, err := Plan(context.Background(), be, cfg, files)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Shards) < 2 {
		t.Fatalf("Shards = %d, want at least 2 (group should split)", len(result.Shards))
	}
	if result.Files[0].ObjectKey == result.Files[1].ObjectKey {
		t.Fatalf("expected files to land in different physical shards after split")
	}
}
