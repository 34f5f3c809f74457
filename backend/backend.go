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
// Package backend is the storage back-end abstraction of spec.md §4.5: the
// small set of operations the shard writer and reader need, implemented
// once for the local filesystem and once for S3-compatible object storage.
// This plays the same role the teacher's storage.PersistenceEngine
// interface plays for memcp's column/log storage (storage/persistence.go),
// generalized from "schema/column/log" to "put/get/range-get/head/lock".
package backend

import (
	"context"
	"io"
	"time"
)

// Backend is the capability set required by the shard writer and reader,
// and by the extended-retention overlay manager.
type Backend interface {
	// Put writes the whole object at key, atomically replacing any prior
	// content. size is the exact length of r's remaining bytes.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get reads a whole object (used for BigFile siblings and overlay
	// reads).
	Get(ctx context.Context, key string) ([]byte, error)

	// GetRange reads the inclusive byte interval [start, end] of key. A
	// negative start requests the last -start bytes (the "bytes=-N" suffix
	// form). totalSize is the object's full size, reported alongside the
	// range so callers never need a separate HEAD for it (spec.md §4.4's
	// "HEAD-free trick" via the S3 Content-Range response header).
	GetRange(ctx context.Context, key string, start, end int64) (data []byte, totalSize int64, err error)

	// Head returns the object's size.
	Head(ctx context.Context, key string) (size int64, err error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Used by the extended-retention overlay, never by
	// core shard writes.
	Delete(ctx context.Context, key string) error

	// SetObjectLock sets a WORM retain-until timestamp on key. Back-ends
	// that cannot support this (local FS) return ErrObjectLockUnsupported
	// so callers can degrade to the sidecar-metadata scheme of spec.md §9.
	SetObjectLock(ctx context.Context, key string, retainUntil time.Time) error

	// Name identifies the backend for logging and cache-key namespacing
	// (the index cache key is (backend_id, object_key)).
	Name() string
}

// ErrObjectLockUnsupported is returned by back-ends (local FS) that have no
// native WORM primitive. Callers degrade to soft retention per spec.md §9.
var ErrObjectLockUnsupported = errUnsupported{}

type errUnsupported struct{}

func (errUnsupported) Error() string { return "backend: object lock not supported" }
