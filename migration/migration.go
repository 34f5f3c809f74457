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

// Package migration is the single-method collaborator boundary of spec.md
// §6/§9: a Driver produces a manifest from whatever source of truth it
// owns (a SQL watermark table, a message queue, a directory walk); this
// package's Pack drains it through the planner and reports one PackResult.
// The core never reads or advances the driver's own cutoff marker — that
// stays entirely on the driver's side of the boundary, the same separation
// spec.md §9 calls out under "Migration orchestrator coupling" (the
// teacher's own storage package sometimes reaches into DB code directly;
// this module refuses that coupling on principle, not just for this spec).
package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coldshard/des/planner"
)

// ManifestEntry is one record a Driver yields: everything the planner
// needs to pack one file, without any knowledge of where it came from.
type ManifestEntry struct {
	UID       []byte
	CreatedAt time.Time
	SizeBytes int64
	Meta      []byte
	Open      func() (io.ReadCloser, error)
}

// Driver is the external collaborator contract: a single method that
// yields the next ManifestEntry, or io.EOF when the manifest is exhausted.
// Implementations own their own cutoff/watermark state entirely; Pack
// never inspects or persists it.
type Driver interface {
	Next(ctx context.Context) (ManifestEntry, error)
}

// PackResult is what Pack reports back to the driver's caller once the
// whole manifest has been drained.
type PackResult struct {
	Shards []planner.ShardResult
	Files  []planner.FileResult
}

// Pack drains driver until it returns io.EOF, handing each ManifestEntry to
// the planner as one FileToPack, then closes every shard the batch touched.
// The driver is responsible for advancing its own cutoff after Pack returns
// successfully; Pack's only output is PackResult.
func Pack(ctx context.Context, be planner.Backend, cfg planner.Config, driver Driver) (PackResult, error) {
	var files []planner.FileToPack
	for {
		entry, err := driver.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return PackResult{}, fmt.Errorf("migration: reading manifest: %w", err)
		}
		files = append(files, planner.FileToPack{
			UID:       entry.UID,
			CreatedAt: entry.CreatedAt,
			SizeHint:  entry.SizeBytes,
			Meta:      entry.Meta,
			Open:      entry.Open,
		})
	}

	result, err := planner.Plan(ctx, be, cfg, files)
	if err != nil {
		return PackResult{}, err
	}
	return PackResult{Shards: result.Shards, Files: result.Files}, nil
}
