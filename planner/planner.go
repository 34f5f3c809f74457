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

// Package planner groups a batch of input files into shards by
// (date_dir, shard_hex), drives a shard.Writer per group, and splits a
// group across several physical shards when it would overflow
// max_shard_size_bytes. It plays the role the teacher's
// storage.(*table).insert batching plays for column storage: deciding which
// physical container a logical record lands in, and closing containers
// once they're full.
package planner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coldshard/des/errtax"
	"github.com/coldshard/des/router"
	"github.com/coldshard/des/shard"
)

// FileToPack is one input record: a caller-owned reader plus the routing
// key and optional metadata to persist alongside it.
type FileToPack struct {
	UID       []byte
	CreatedAt time.Time
	SizeHint  int64
	Meta      []byte
	Open      func() (io.ReadCloser, error)
}

// FileResult reports the outcome of packing one FileToPack.
type FileResult struct {
	UID       []byte
	ObjectKey string
	Err       error
}

// ShardResult reports one physical shard produced by a Plan call.
type ShardResult struct {
	ObjectKey    string
	DateDir      string
	ShardHex     string
	BytesWritten uint64
	Entries      int
}

// Result is the aggregate outcome of one Plan call.
type Result struct {
	Shards []ShardResult
	Files  []FileResult
}

// Backend is the subset of backend.Backend the planner drives through
// shard.Writer, named here so Plan's signature doesn't force callers to
// import the backend package just to spell the type.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	GetRange(ctx context.Context, key string, start, end int64) ([]byte, int64, error)
	Head(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	SetObjectLock(ctx context.Context, key string, retainUntil time.Time) error
	Name() string
}

// Config bundles the routing and shard-writing knobs a Plan call needs.
type Config struct {
	NBits        int
	ShardKeyDir  string // object key prefix joined before date_dir, e.g. "" for root
	WriterConfig shard.WriterConfig
}

func DefaultConfig() Config {
	return Config{NBits: 8, WriterConfig: shard.DefaultWriterConfig()}
}

// group is one (date_dir, shard_hex) bucket of files awaiting a shard.
type group struct {
	dateDir  string
	shardHex string
	files    []FileToPack
}

// Plan packs files into shards, isolating per-file failures (a file that
// fails to open or exceeds the shard size still lets every other file in
// the batch complete — spec.md §4.3's "isolate per-file failures" edge
// case). Re-running Plan over the same files with codec=none and a stable
// iteration order reproduces byte-identical shards (spec.md §8's
// idempotent-repack property); Plan itself doesn't enforce ordering beyond
// "files are grouped and appended in the order given", callers needing
// byte-stable repacks must supply files in a stable order.
func Plan(ctx context.Context, be Backend, cfg Config, files []FileToPack) (Result, error) {
	groups := make(map[string]*group)
	var order []string

	for _, f := range files {
		loc, err := router.Locate(f.UID, f.CreatedAt, cfg.NBits)
		if err != nil {
			return Result{}, fmt.Errorf("planner: routing %x: %w", f.UID, err)
		}
		gkey := loc.DateDir + "/" + loc.ShardHex
		g, ok := groups[gkey]
		if !ok {
			g = &group{dateDir: loc.DateDir, shardHex: loc.ShardHex}
			groups[gkey] = g
			order = append(order, gkey)
		}
		g.files = append(g.files, f)
	}

	var result Result
	for _, gkey := range order {
		g := groups[gkey]
		shardResults, fileResults, err := packGroup(ctx, be, cfg, g)
		if err != nil {
			return Result{}, err
		}
		result.Shards = append(result.Shards, shardResults...)
		result.Files = append(result.Files, fileResults...)
	}
	return result, nil
}

// packGroup writes one (date_dir, shard_hex) group, opening additional
// "_NNNN"-suffixed shards whenever the running writer would exceed
// MaxShardSizeBytes.
func packGroup(ctx context.Context, be Backend, cfg Config, g *group) ([]ShardResult, []FileResult, error) {
	var shardResults []ShardResult
	var fileResults []FileResult

	suffix := 0
	objectKey := g.objectKey(cfg, suffix)
	w, err := shard.Open(be, objectKey, cfg.WriterConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("planner: opening shard %s: %w", objectKey, err)
	}

	flush := func() error {
		res, err := w.Close(ctx)
		if err != nil {
			return fmt.Errorf("planner: closing shard %s: %w", objectKey, err)
		}
		shardResults = append(shardResults, ShardResult{
			ObjectKey:    res.ObjectKey,
			DateDir:      g.dateDir,
			ShardHex:     g.shardHex,
			BytesWritten: res.BytesWritten,
			Entries:      res.Entries,
		})
		return nil
	}

	for _, f := range g.files {
		rc, openErr := f.Open()
		if openErr != nil {
			fileResults = append(fileResults, FileResult{UID: f.UID, Err: fmt.Errorf("planner: opening %x: %w", f.UID, openErr)})
			continue
		}

		appendErr := w.Append(ctx, f.UID, rc, f.SizeHint, f.Meta)
		closeErr := rc.Close()

		if appendErr != nil && errtax.Is(appendErr, errtax.ErrShardTooLarge) {
			if err := flush(); err != nil {
				return nil, nil, err
			}
			suffix++
			objectKey = g.objectKey(cfg, suffix)
			w, err = shard.Open(be, objectKey, cfg.WriterConfig)
			if err != nil {
				return nil, nil, fmt.Errorf("planner: opening shard %s: %w", objectKey, err)
			}

			retryRC, retryErr := f.Open()
			if retryErr != nil {
				appendErr = fmt.Errorf("planner: reopening %x for retry: %w", f.UID, retryErr)
			} else {
				appendErr = w.Append(ctx, f.UID, retryRC, f.SizeHint, f.Meta)
				retryRC.Close()
			}
		}

		if appendErr != nil {
			fileResults = append(fileResults, FileResult{UID: f.UID, Err: fmt.Errorf("planner: appending %x: %w", f.UID, appendErr)})
			continue
		}
		if closeErr != nil {
			fileResults = append(fileResults, FileResult{UID: f.UID, Err: fmt.Errorf("planner: closing reader for %x: %w", f.UID, closeErr)})
			continue
		}
		fileResults = append(fileResults, FileResult{UID: f.UID, ObjectKey: objectKey})
	}

	if err := flush(); err != nil {
		return nil, nil, err
	}
	return shardResults, fileResults, nil
}

func (g *group) objectKey(cfg Config, suffix int) string {
	base := g.dateDir + "/" + g.shardHex
	if suffix > 0 {
		base = fmt.Sprintf("%s_%04d", base, suffix)
	}
	base += ".des"
	if cfg.ShardKeyDir == "" {
		return base
	}
	return cfg.ShardKeyDir + "/" + base
}
