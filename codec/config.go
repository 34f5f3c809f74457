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

import "fmt"

// New returns the concrete Codec implementation for id, or an error if id
// is not one of the three the wire format supports.
func New(id ID) (Codec, error) {
	switch id {
	case None:
		return noneCodec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	case LZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec id %d", id)
	}
}

// Config bundles the environment controls from spec.md §6 that govern
// per-file compression during packing.
type Config struct {
	Codec ID
	Level int
	Skip  SkipConfig
}

// DefaultConfig picks lz4 at a middling level with the default skip
// heuristic — a reasonable archival default favoring write throughput over
// ratio, matching the teacher's own default ("DefaultEngine": "safe",
// cautious-by-default) posture in storage/settings.go.
func DefaultConfig() Config {
	return Config{
		Codec: LZ4,
		Level: 4,
		Skip:  DefaultSkipConfig(),
	}
}

// Pick applies this Config's codec and skip heuristic to one file's bytes.
func (c Config) Pick(name string, payload []byte) (ID, []byte) {
	if c.Codec == None {
		return None, payload
	}
	codecImpl, err := New(c.Codec)
	if err != nil {
		return None, payload
	}
	return Pick(c.Skip, codecImpl, c.Level, name, payload)
}
