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
package codec

import (
	"io"
	"path/filepath"
	"strings"
)

// SkipConfig configures the writer's compression skip heuristic (spec.md
// §4.2). It is advisory only: correctness depends solely on the codec id
// recorded in the shard index, never on why a particular file took the
// uncompressed path.
type SkipConfig struct {
	SkipExtensions map[string]struct{} // lowercase, with leading dot, e.g. ".jpg"
	MinSizeBytes   int64
	MinRatio       float64 // compressed/original > MinRatio => store uncompressed
}

// DefaultSkipConfig mirrors the defaults in spec.md §4.2: common
// already-compressed media/archive extensions, a 512-byte floor, and a 0.90
// compression-ratio bailout.
func DefaultSkipConfig() SkipConfig {
	exts := []string{
		".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".heic",
		".mp4", ".mov", ".avi", ".mkv", ".webm",
		".zip", ".gz", ".bz2", ".xz", ".7z", ".rar", ".zst", ".lz4",
		".mp3", ".flac", ".ogg",
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return SkipConfig{
		SkipExtensions: set,
		MinSizeBytes:   512,
		MinRatio:       0.90,
	}
}

// skipByExtension reports whether name's extension is in the configured
// skip set (case-insensitive).
func (c SkipConfig) skipByExtension(name string) bool {
	if len(c.SkipExtensions) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := c.SkipExtensions[ext]
	return ok
}

// Pick applies the skip heuristic and returns the (codec_id, body bytes) a
// writer should store for one file. level is the codec's compression level
// (codec-specific meaning; ignored by None). name is used only for the
// extension check; it is never persisted on its own (the caller still
// records the uid separately).
func Pick(cfg SkipConfig, codecChoice Codec, level int, name string, payload []byte) (ID, []byte) {
	if codecChoice == nil || codecChoice.ID() == None {
		return None, payload
	}
	if cfg.skipByExtension(name) {
		return None, payload
	}
	if int64(len(payload)) < cfg.MinSizeBytes {
		return None, payload
	}

	compressed, err := codecChoice.Encode(level, payload)
	if err != nil {
		// codec bailed out (e.g. lz4 signaling an incompressible block);
		// fall back to storing the file uncompressed rather than failing
		// the whole append.
		return None, payload
	}

	ratio := float64(len(compressed)) / float64(len(payload))
	if ratio > cfg.MinRatio {
		return None, payload
	}
	return codecChoice.ID(), compressed
}

// ReadAll drains r fully, returning the bytes and their count. Shared by
// writer and reader call sites that need both in one place.
func ReadAll(r io.Reader) ([]byte, int64, error) {
	return copyReader(r)
}
