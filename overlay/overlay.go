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

// Package overlay implements the extended-retention state machine: a UID's
// payload starts out living only in its shard (S0); the first
// SetRetention call copies it out into its own overlay object and locks it
// (S1); every subsequent SetRetention on the same UID only advances the
// lock. The overlay copy, not the shard, is authoritative for reads once
// it exists (spec.md §4.7 probes the overlay before the shard).
//
// This mirrors the teacher's storage overlay-blob.go, which likewise keeps
// a content copy outside the main column store for data that has outgrown
// its original container's lifecycle (there: blobs too large for inline
// columnar storage; here: payloads whose retention has outlived their
// shard's default lock).
package overlay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/errtax"
	"github.com/coldshard/des/shard"
)

// Action reports which branch of the S0/S1 state machine a SetRetention
// call took.
type Action string

const (
	ActionMoved   Action = "moved"
	ActionUpdated Action = "updated"
)

// DefaultPrefix is spec.md §6's default overlay_prefix.
const DefaultPrefix = "_ext_retention"

// Manager owns one deployment's extended-retention overlay objects.
type Manager struct {
	be     backend.Backend
	prefix string
}

// New constructs a Manager writing overlay objects under prefix on be.
func New(be backend.Backend, prefix string) *Manager {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Manager{be: be, prefix: prefix}
}

// Key computes the overlay object key for a UID, matching spec.md §3's
// "<overlay_prefix>/<date_dir>/<uid>_<created_at_iso>.dat" layout.
func (m *Manager) Key(uid []byte, createdAt time.Time) string {
	dateDir := createdAt.UTC().Format("20060102")
	iso := createdAt.UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s/%s/%s_%s.dat", m.prefix, dateDir, uid, iso)
}

// retainRecordSuffix is appended to the overlay key to record the
// currently-set retain_until. It is written unconditionally on every
// successful move/update, regardless of whether the backend has a native
// object-lock primitive, since the monotonicity check in update needs a
// prior value to compare against on every backend — not just the ones
// that fell back to this as their only lock mechanism (spec.md §9's
// "soft" degradation is a separate concern: whether SetObjectLock itself
// is backed natively or not).
const retainRecordSuffix = ".retain"

// Probe checks whether an overlay copy already exists for uid, returning
// its bytes if so. This is the read path's overlay-first step (spec.md
// §4.7); callers fall through to the shard reader on a miss.
func (m *Manager) Probe(ctx context.Context, uid []byte, createdAt time.Time) ([]byte, bool, error) {
	key := m.Key(uid, createdAt)
	exists, err := m.be.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("overlay: probing %s: %w", key, err)
	}
	if !exists {
		return nil, false, nil
	}
	data, err := m.be.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("overlay: reading %s: %w", key, err)
	}
	return data, true, nil
}

// SetRetentionResult reports the outcome of one SetRetention call.
type SetRetentionResult struct {
	Action         Action
	OverlayKey     string
	RetainUntil    time.Time
	ObjectLockSoft bool // true if this backend has no native lock, so enforcement is advisory only
}

// SetRetention implements the S0→S1 state machine (spec.md §4.8). On first
// call for a UID it copies payload into the overlay, locks it, and returns
// ActionMoved; on every later call it only advances the lock and returns
// ActionUpdated. retainUntil must be strictly in the future (within a 5s
// clock-skew tolerance) and, once an overlay exists, must not move
// backwards relative to the previously recorded retain_until — both
// violations are ErrInvalidInput.
func (m *Manager) SetRetention(ctx context.Context, uid []byte, createdAt time.Time, payload func() (io.Reader, int64, error), retainUntil time.Time) (SetRetentionResult, error) {
	now := time.Now()
	if retainUntil.Before(now.Add(-5 * time.Second)) {
		return SetRetentionResult{}, fmt.Errorf("overlay: retain_until %s is not in the future: %w", retainUntil, errtax.ErrInvalidInput)
	}

	key := m.Key(uid, createdAt)
	exists, err := m.be.Exists(ctx, key)
	if err != nil {
		return SetRetentionResult{}, fmt.Errorf("overlay: checking %s: %w", key, err)
	}

	if exists {
		return m.update(ctx, key, retainUntil)
	}
	return m.move(ctx, key, payload, retainUntil)
}

func (m *Manager) move(ctx context.Context, key string, payload func() (io.Reader, int64, error), retainUntil time.Time) (SetRetentionResult, error) {
	r, size, err := payload()
	if err != nil {
		return SetRetentionResult{}, fmt.Errorf("overlay: reading source payload for %s: %w", key, err)
	}
	if err := m.be.Put(ctx, key, r, size); err != nil {
		return SetRetentionResult{}, fmt.Errorf("overlay: copying into %s: %w", key, err)
	}

	soft, err := m.lock(ctx, key, retainUntil)
	if err != nil {
		return SetRetentionResult{}, err
	}
	if err := m.writeRetainRecord(ctx, key, retainUntil); err != nil {
		return SetRetentionResult{}, err
	}

	return SetRetentionResult{Action: ActionMoved, OverlayKey: key, RetainUntil: retainUntil, ObjectLockSoft: soft}, nil
}

func (m *Manager) update(ctx context.Context, key string, retainUntil time.Time) (SetRetentionResult, error) {
	prior, havePrior, err := m.readRetainRecord(ctx, key)
	if err != nil {
		return SetRetentionResult{}, err
	}
	if havePrior && retainUntil.Before(prior) {
		return SetRetentionResult{}, fmt.Errorf("overlay: retain_until %s precedes existing %s on %s: %w", retainUntil, prior, key, errtax.ErrInvalidInput)
	}

	soft, err := m.lock(ctx, key, retainUntil)
	if err != nil {
		return SetRetentionResult{}, err
	}
	if err := m.writeRetainRecord(ctx, key, retainUntil); err != nil {
		return SetRetentionResult{}, err
	}

	return SetRetentionResult{Action: ActionUpdated, OverlayKey: key, RetainUntil: retainUntil, ObjectLockSoft: soft}, nil
}

// lock sets the backend's native object lock, reporting ObjectLockSoft
// when the backend has none (spec.md §9's degradation) rather than failing
// outright. This is purely the lock mechanism — the retain_until record
// used for monotonicity checks is written separately, unconditionally, by
// the caller.
func (m *Manager) lock(ctx context.Context, key string, retainUntil time.Time) (soft bool, err error) {
	if err := m.be.SetObjectLock(ctx, key, retainUntil); err != nil {
		if err == backend.ErrObjectLockUnsupported {
			return true, nil
		}
		return false, fmt.Errorf("overlay: locking %s: %w", key, err)
	}
	return false, nil
}

func (m *Manager) writeRetainRecord(ctx context.Context, key string, retainUntil time.Time) error {
	body := []byte(retainUntil.UTC().Format(time.RFC3339Nano))
	if err := m.be.Put(ctx, key+retainRecordSuffix, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("overlay: writing retain record for %s: %w", key, err)
	}
	return nil
}

func (m *Manager) readRetainRecord(ctx context.Context, key string) (time.Time, bool, error) {
	exists, err := m.be.Exists(ctx, key+retainRecordSuffix)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("overlay: checking retain record for %s: %w", key, err)
	}
	if !exists {
		return time.Time{}, false, nil
	}
	data, err := m.be.Get(ctx, key+retainRecordSuffix)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("overlay: reading retain record for %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("overlay: parsing retain record for %s: %w", key, errtax.ErrCorruptShard)
	}
	return t, true, nil
}

// PayloadFromShard is a convenience payload-source for SetRetention that
// reads the UID's current bytes straight out of its shard, the
// "read-through §4.7 steps 2-3, bypassing the overlay probe" source
// spec.md §4.8 describes for the first move.
func PayloadFromShard(ctx context.Context, be backend.Backend, objectKey string, uid []byte, bigFilesPrefix string) func() (io.Reader, int64, error) {
	return func() (io.Reader, int64, error) {
		data, _, _, err := shard.Get(ctx, be, objectKey, uid, nil, bigFilesPrefix)
		if err != nil {
			return nil, 0, err
		}
		return bytes.NewReader(data), int64(len(data)), nil
	}
}
