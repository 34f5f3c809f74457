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

package cache

import (
	"testing"
	"time"

	"github.com/coldshard/des/shard"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(1<<20, 0)
	key := Key{BackendID: "local:/tmp", ObjectKey: "20240101/ab.des"}
	idx := shard.Index{Version: shard.Version2, FileSize: 1234}

	c.Put(key, idx, 100)
	got, ok := c.Get(key)
	if !ok {
		t.Fatalf("expected hit after Put")
	}
	if got.FileSize != 1234 {
		t.Fatalf("FileSize = %d, want 1234", got.FileSize)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 0 {
		t.Fatalf("Hits=%d Misses=%d, want 1,0", s.Hits, s.Misses)
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	c := New(1<<20, 0)
	_, ok := c.Get(Key{BackendID: "x", ObjectKey: "y"})
	if ok {
		t.Fatalf("expected miss")
	}
	if s := c.Stats(); s.Misses != 1 {
		t.Fatalf("Misses = %d, want 1", s.Misses)
	}
}

func TestEvictionUnderBudgetPressure(t *testing.T) {
	c := New(250, 0) // room for ~2 entries of size 100
	k1 := Key{BackendID: "b", ObjectKey: "1"}
	k2 := Key{BackendID: "b", ObjectKey: "2"}
	k3 := Key{BackendID: "b", ObjectKey: "3"}

	c.Put(k1, shard.Index{}, 100)
	c.Put(k2, shard.Index{}, 100)
	// touch k1 so it's more recently used than k2
	c.Get(k1)
	c.Put(k3, shard.Index{}, 100) // should evict k2, the least recently used

	if _, ok := c.Get(k2); ok {
		t.Fatalf("expected k2 evicted as LRU victim")
	}
	if _, ok := c.Get(k1); !ok {
		t.Fatalf("expected k1 to survive (recently touched)")
	}
	if _, ok := c.Get(k3); !ok {
		t.Fatalf("expected k3 to survive (just inserted)")
	}
	if c.Stats().Evictions < 1 {
		t.Fatalf("expected at least one eviction recorded")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(1<<20, 10*time.Millisecond)
	key := Key{BackendID: "b", ObjectKey: "k"}
	c.Put(key, shard.Index{}, 10)

	if _, ok := c.Get(key); !ok {
		t.Fatalf("expected hit immediately after Put")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected TTL-expired entry to miss")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(1<<20, 0)
	c.Put(Key{BackendID: "b", ObjectKey: "20240101/aa.des"}, shard.Index{}, 10)
	c.Put(Key{BackendID: "b", ObjectKey: "20240101/bb.des"}, shard.Index{}, 10)
	c.Put(Key{BackendID: "b", ObjectKey: "20240102/cc.des"}, shard.Index{}, 10)

	c.InvalidatePrefix("20240101/")

	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after prefix invalidation", c.Len())
	}
	if _, ok := c.Get(Key{BackendID: "b", ObjectKey: "20240102/cc.des"}); !ok {
		t.Fatalf("expected untouched key to survive")
	}
}
