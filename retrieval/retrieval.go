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

// Package retrieval is the single-zone read engine of spec.md §4.7: one
// backend handle, a shared index cache, and an optional extended-retention
// overlay, exposing Get(uid, created_at). It resolves overlay-first, then
// falls through to the shard reader, retrying a transient backend failure
// up to twice (3 attempts in all).
package retrieval

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/cache"
	"github.com/coldshard/des/errtax"
	"github.com/coldshard/des/overlay"
	"github.com/coldshard/des/router"
	"github.com/coldshard/des/shard"
)

// Stats is the plain-counter metrics surface spec.md's ambient stack calls
// for: no metrics library wired in (no component in SPEC_FULL.md's domain
// stack needs one), just atomically-updated counters a caller can poll or
// expose however it likes.
type Stats struct {
	Hits           int64
	Misses         int64
	RangeGets      int64
	CacheEvictions int64
	OverlayHits    int64
	BackendRetries int64
}

// Engine is a single-zone retrieval engine.
type Engine struct {
	be             backend.Backend
	nBits          int
	idxCache       *cache.Cache
	overlay        *overlay.Manager // nil if this zone has no extended-retention overlay configured
	bigFilesPrefix string

	stats Stats
}

// Config collects the knobs New needs.
type Config struct {
	NBits           int
	IndexCacheBytes int64
	IndexCacheTTL   time.Duration
	OverlayPrefix   string // empty disables the overlay (no SetRetention/Probe)
	BigFilesPrefix  string // empty defaults to shard.DefaultBigFilesPrefix
}

func DefaultConfig() Config {
	return Config{NBits: 8, IndexCacheBytes: 64 << 20, IndexCacheTTL: 10 * time.Minute, BigFilesPrefix: shard.DefaultBigFilesPrefix}
}

// New constructs an Engine over be. If cfg.OverlayPrefix is non-empty, an
// extended-retention overlay.Manager is wired in automatically.
func New(be backend.Backend, cfg Config) *Engine {
	bigFilesPrefix := cfg.BigFilesPrefix
	if bigFilesPrefix == "" {
		bigFilesPrefix = shard.DefaultBigFilesPrefix
	}
	e := &Engine{
		be:             be,
		nBits:          cfg.NBits,
		idxCache:       cache.New(cfg.IndexCacheBytes, cfg.IndexCacheTTL),
		bigFilesPrefix: bigFilesPrefix,
	}
	if cfg.OverlayPrefix != "" {
		e.overlay = overlay.New(be, cfg.OverlayPrefix)
	}
	return e
}

// retryPolicy is the retry-with-backoff rule for idempotent GET/HEAD on
// ErrBackend: 50ms base, doubling, capped at 2s, 3 attempts total (the
// first try plus up to two retries). ErrCorruptShard and ErrNotFound never
// retry.
const (
	retryBase   = 50 * time.Millisecond
	retryCap    = 2 * time.Second
	retryFactor = 2
	maxAttempts = 3
)

func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBase
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errtax.Is(err, errtax.ErrBackend) {
			return err
		}
		if attempt == maxAttempts-1 {
			return err
		}
		atomic.AddInt64(&e.stats.BackendRetries, 1)
		jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= retryFactor
		if delay > retryCap {
			delay = retryCap
		}
	}
	return err
}

// Get reconstructs uid's bytes. It probes the overlay first (if
// configured), then falls through to the shard reader, consulting and
// populating the index cache keyed by (backend, object key).
func (e *Engine) Get(ctx context.Context, uid []byte, createdAt time.Time) ([]byte, error) {
	if e.overlay != nil {
		var data []byte
		var ok bool
		err := e.withRetry(ctx, func() error {
			d, found, perr := e.overlay.Probe(ctx, uid, createdAt)
			if perr != nil {
				return perr
			}
			data, ok = d, found
			return nil
		})
		if err != nil {
			return nil, err
		}
		if ok {
			atomic.AddInt64(&e.stats.OverlayHits, 1)
			atomic.AddInt64(&e.stats.Hits, 1)
			return data, nil
		}
	}

	loc, err := router.Locate(uid, createdAt, e.nBits)
	if err != nil {
		return nil, fmt.Errorf("retrieval: routing %x: %w", uid, err)
	}

	cacheKey := cache.Key{BackendID: e.be.Name(), ObjectKey: loc.ObjectKey}
	cached, hit := e.idxCache.Get(cacheKey)

	var idx *shard.Index
	if hit {
		idx = &cached
	}

	var payload []byte
	var fetchedIdx *shard.Index
	var rangeGets int
	err = e.withRetry(ctx, func() error {
		p, fi, rg, gerr := shard.Get(ctx, e.be, loc.ObjectKey, uid, idx, e.bigFilesPrefix)
		payload, fetchedIdx, rangeGets = p, fi, rg
		return gerr
	})
	if err != nil {
		atomic.AddInt64(&e.stats.Misses, 1)
		return nil, err
	}

	atomic.AddInt64(&e.stats.RangeGets, int64(rangeGets))
	if fetchedIdx != nil {
		idxSize := estimateIndexBytes(*fetchedIdx)
		e.idxCache.Put(cacheKey, *fetchedIdx, idxSize)
	}
	atomic.AddInt64(&e.stats.Hits, 1)
	return payload, nil
}

// SetRetention delegates to the configured overlay manager; callers must
// configure Config.OverlayPrefix for this zone or this returns
// ErrInvalidInput.
func (e *Engine) SetRetention(ctx context.Context, uid []byte, createdAt time.Time, retainUntil time.Time) (overlay.SetRetentionResult, error) {
	if e.overlay == nil {
		return overlay.SetRetentionResult{}, fmt.Errorf("retrieval: extended retention not configured for this zone: %w", errtax.ErrInvalidInput)
	}
	loc, err := router.Locate(uid, createdAt, e.nBits)
	if err != nil {
		return overlay.SetRetentionResult{}, fmt.Errorf("retrieval: routing %x: %w", uid, err)
	}
	return e.overlay.SetRetention(ctx, uid, createdAt, overlay.PayloadFromShard(ctx, e.be, loc.ObjectKey, uid, e.bigFilesPrefix), retainUntil)
}

// InvalidateCache drops the cached index for objectKey on this engine's
// backend, so the next Get re-fetches it from the backend. This is the
// hook backend.LocalBackend.Watch's out-of-band-change callback is meant
// to call, keeping a warm cache from serving a stale index after a shard
// object is replaced outside this process.
func (e *Engine) InvalidateCache(objectKey string) {
	e.idxCache.Invalidate(cache.Key{BackendID: e.be.Name(), ObjectKey: objectKey})
}

// Stats returns a point-in-time snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:           atomic.LoadInt64(&e.stats.Hits),
		Misses:         atomic.LoadInt64(&e.stats.Misses),
		RangeGets:      atomic.LoadInt64(&e.stats.RangeGets),
		CacheEvictions: e.idxCache.Stats().Evictions,
		OverlayHits:    atomic.LoadInt64(&e.stats.OverlayHits),
		BackendRetries: atomic.LoadInt64(&e.stats.BackendRetries),
	}
}

// estimateIndexBytes is a rough per-entry size estimate for the cache's
// byte budget accounting; exactness doesn't matter; it only needs to be
// proportional to actual memory use.
func estimateIndexBytes(idx shard.Index) int64 {
	var total int64 = 64
	for _, e := range idx.Entries {
		total += int64(len(e.UID)) + int64(len(e.Meta)) + int64(len(e.HashHex)) + 48
	}
	return total
}
