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

package config

import (
	"testing"
	"time"

	"github.com/coldshard/des/codec"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestValidateRejectsOutOfRangeNBits(t *testing.T) {
	c := Default()
	c.NBits = 100
	if err := c.Validate(); err == nil {
		t.Fatalf("expected an error for n_bits=100")
	}
}

func TestFromEnvParsesHumanByteSizes(t *testing.T) {
	t.Setenv("DES_BIGFILE_THRESHOLD_BYTES", "5MiB")
	t.Setenv("DES_MAX_SHARD_SIZE_BYTES", "2GiB")
	t.Setenv("DES_N_BITS", "10")
	t.Setenv("DES_CODEC", "zstd")
	t.Setenv("DES_INDEX_CACHE_TTL", "90s")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.BigFileThresholdBytes != 5<<20 {
		t.Fatalf("BigFileThresholdBytes = %d, want %d", c.BigFileThresholdBytes, 5<<20)
	}
	if c.MaxShardSizeBytes != 2<<30 {
		t.Fatalf("MaxShardSizeBytes = %d, want %d", c.MaxShardSizeBytes, uint64(2)<<30)
	}
	if c.NBits != 10 {
		t.Fatalf("NBits = %d, want 10", c.NBits)
	}
	if c.Codec != codec.Zstd {
		t.Fatalf("Codec = %v, want Zstd", c.Codec)
	}
	if c.IndexCacheTTL != 90*time.Second {
		t.Fatalf("IndexCacheTTL = %v, want 90s", c.IndexCacheTTL)
	}
}

func TestFromEnvRejectsUnknownCodec(t *testing.T) {
	t.Setenv("DES_CODEC", "brotli")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected an error for an unknown codec name")
	}
}

func TestFromEnvLeavesDefaultsWhenUnset(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c != Default() {
		t.Fatalf("FromEnv() with no env set = %+v, want Default() = %+v", c, Default())
	}
}
