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
// Package errtax is the closed error taxonomy shared by every public
// boundary in this module (router, shard writer/reader, planner, retrieval
// engine, HTTP surface). Every error an implementation produces must be one
// of these five kinds, optionally wrapped with context via fmt.Errorf("%w").
package errtax

import "errors"

// ErrInvalidInput covers a malformed UID, an out-of-range n_bits, a
// retain_until in the past, or an illegal zone map.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound covers a UID absent from its resolved shard, or a missing
// shard/overlay object. Never retried.
var ErrNotFound = errors.New("not found")

// ErrCorruptShard covers a magic mismatch, a truncated index, an unknown
// codec id, or a decoded-length mismatch. Never retried automatically.
var ErrCorruptShard = errors.New("corrupt shard")

// ErrBackend covers transport errors, timeouts, 5xx responses and
// throttling. Idempotent GET/HEAD callers retry with backoff (the retrieval
// engine makes up to 3 attempts); write paths abort without retry at this
// layer.
var ErrBackend = errors.New("backend error")

// ErrShardTooLarge is raised when an append would push a shard's
// HEADER+DATA past the configured max shard size; the planner then closes
// that shard and continues in a new split shard.
var ErrShardTooLarge = errors.New("shard too large")

// Is reports whether err (or anything it wraps) is one of the taxonomy
// sentinels in kind.
func Is(err error, kind error) bool {
	return errors.Is(err, kind)
}
