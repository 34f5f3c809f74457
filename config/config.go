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

// Package config is the plain in-memory settings struct of spec.md §6,
// in the same mold as the teacher's storage.SettingsT: no config-file
// parsing (explicitly out of scope), just a struct a caller populates
// directly or via FromEnv. Byte-size fields accept both raw integers and
// human strings ("10MiB", "1GiB") through github.com/docker/go-units,
// already present in the teacher's go.mod but never exercised there.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"

	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/router"
)

// Config bundles every environment control spec.md §6 names.
type Config struct {
	NBits                 int
	BigFileThresholdBytes int64
	BigFilesPrefix        string
	MaxShardSizeBytes     uint64
	OverlayPrefix         string
	IndexCacheBytes       int64
	IndexCacheTTL         time.Duration
	Codec                 codec.ID
	CodecLevel            int
}

// Default mirrors spec.md §6's stated defaults.
func Default() Config {
	return Config{
		NBits:                 8,
		BigFileThresholdBytes: 10 << 20,
		BigFilesPrefix:        "_bigFiles",
		MaxShardSizeBytes:     1 << 30,
		OverlayPrefix:         "_ext_retention",
		IndexCacheBytes:       64 << 20,
		IndexCacheTTL:         10 * time.Minute,
		Codec:                 codec.LZ4,
		CodecLevel:            4,
	}
}

// Validate checks the struct's invariants (spec.md §4.1's n_bits range,
// non-zero shard/bigfile thresholds); a malformed Config is a construction
// error, never a runtime one.
func (c Config) Validate() error {
	if c.NBits < router.MinBits || c.NBits > router.MaxBits {
		return fmt.Errorf("config: n_bits %d out of [%d,%d]", c.NBits, router.MinBits, router.MaxBits)
	}
	if c.BigFileThresholdBytes <= 0 {
		return fmt.Errorf("config: bigfile_threshold_bytes must be positive, got %d", c.BigFileThresholdBytes)
	}
	if c.MaxShardSizeBytes == 0 {
		return fmt.Errorf("config: max_shard_size_bytes must be positive")
	}
	if !c.Codec.Valid() {
		return fmt.Errorf("config: unknown codec id %d", c.Codec)
	}
	return nil
}

// envSpec is one environment variable this module reads, paired with the
// setter that applies its parsed value onto a Config.
type envSpec struct {
	name  string
	apply func(*Config, string) error
}

var envSpecs = []envSpec{
	{"DES_N_BITS", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DES_N_BITS: %w", err)
		}
		c.NBits = n
		return nil
	}},
	{"DES_BIGFILE_THRESHOLD_BYTES", func(c *Config, v string) error {
		n, err := units.RAMInBytes(v)
		if err != nil {
			return fmt.Errorf("DES_BIGFILE_THRESHOLD_BYTES: %w", err)
		}
		c.BigFileThresholdBytes = n
		return nil
	}},
	{"DES_BIGFILES_PREFIX", func(c *Config, v string) error {
		c.BigFilesPrefix = v
		return nil
	}},
	{"DES_MAX_SHARD_SIZE_BYTES", func(c *Config, v string) error {
		n, err := units.RAMInBytes(v)
		if err != nil {
			return fmt.Errorf("DES_MAX_SHARD_SIZE_BYTES: %w", err)
		}
		c.MaxShardSizeBytes = uint64(n)
		return nil
	}},
	{"DES_OVERLAY_PREFIX", func(c *Config, v string) error {
		c.OverlayPrefix = v
		return nil
	}},
	{"DES_INDEX_CACHE_BYTES", func(c *Config, v string) error {
		n, err := units.RAMInBytes(v)
		if err != nil {
			return fmt.Errorf("DES_INDEX_CACHE_BYTES: %w", err)
		}
		c.IndexCacheBytes = n
		return nil
	}},
	{"DES_INDEX_CACHE_TTL", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DES_INDEX_CACHE_TTL: %w", err)
		}
		c.IndexCacheTTL = d
		return nil
	}},
	{"DES_CODEC", func(c *Config, v string) error {
		switch v {
		case "none":
			c.Codec = codec.None
		case "lz4":
			c.Codec = codec.LZ4
		case "zstd":
			c.Codec = codec.Zstd
		default:
			return fmt.Errorf("DES_CODEC: unknown codec %q (want none, lz4, or zstd)", v)
		}
		return nil
	}},
	{"DES_CODEC_LEVEL", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DES_CODEC_LEVEL: %w", err)
		}
		c.CodecLevel = n
		return nil
	}},
}

// FromEnv starts from Default and overlays any of the DES_* environment
// variables that are set, matching the teacher's MEMCP_*-prefixed
// os.Getenv convention (scm/trace.go, php/plugin.go) rather than a config
// file or a flag-parsing library.
func FromEnv() (Config, error) {
	c := Default()
	for _, spec := range envSpecs {
		v, ok := os.LookupEnv(spec.name)
		if !ok {
			continue
		}
		if err := spec.apply(&c, v); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
