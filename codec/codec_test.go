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
	"bytes"
	"strings"
	"testing"

	"github.com/coldshard/des/errtax"
)

func TestRoundTripAllCodecs(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200))

	for _, id := range []ID{None, Zstd, LZ4} {
		id := id
		t.Run(id.String(), func(t *testing.T) {
			c, err := New(id)
			if err != nil {
				t.Fatalf("New(%v): %v", id, err)
			}
			enc, err := c.Encode(3, payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			dec, err := DecodeInto(id, enc, len(payload))
			if err != nil {
				t.Fatalf("DecodeInto: %v", err)
			}
			if !bytes.Equal(dec, payload) {
				t.Fatalf("round trip mismatch for %v", id)
			}
		})
	}
}

func TestNoneIsIdentity(t *testing.T) {
	payload := []byte("hello world")
	c, _ := New(None)
	enc, _ := c.Encode(0, payload)
	if !bytes.Equal(enc, payload) {
		t.Fatalf("none codec must be identity")
	}
}

func TestDecodeUnknownCodecIsCorrupt(t *testing.T) {
	_, err := Decode(ID(99), []byte("x"))
	if !errtax.Is(err, errtax.ErrCorruptShard) {
		t.Fatalf("err = %v, want ErrCorruptShard for unknown codec id", err)
	}
}

func TestSkipHeuristicExtension(t *testing.T) {
	cfg := DefaultSkipConfig()
	lz4c, _ := New(LZ4)
	big := bytes.Repeat([]byte("a"), 4096)
	id, body := Pick(cfg, lz4c, 3, "photo.jpg", big)
	if id != None {
		t.Fatalf("expected None for skip-listed extension, got %v", id)
	}
	if !bytes.Equal(body, big) {
		t.Fatalf("expected body unchanged for skip-listed extension")
	}
}

func TestSkipHeuristicMinSize(t *testing.T) {
	cfg := DefaultSkipConfig()
	lz4c, _ := New(LZ4)
	small := []byte("tiny")
	id, _ := Pick(cfg, lz4c, 3, "doc.txt", small)
	if id != None {
		t.Fatalf("expected None for file below min_size_bytes, got %v", id)
	}
}

func TestSkipHeuristicCompressesLargeText(t *testing.T) {
	cfg := DefaultSkipConfig()
	lz4c, _ := New(LZ4)
	payload := []byte(strings.Repeat("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 100))
	id, body := Pick(cfg, lz4c, 3, "doc.txt", payload)
	if id != LZ4 {
		t.Fatalf("expected LZ4 for compressible text, got %v", id)
	}
	if len(body) >= len(payload) {
		t.Fatalf("expected compressed body to be smaller")
	}
}
