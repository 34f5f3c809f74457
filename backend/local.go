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
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coldshard/des/errtax"
)

// LocalBackend stores objects as files under a base directory, one file
// per key (slashes in the key become subdirectories), following the
// temp-file-then-atomic-rename pattern of the teacher's
// storage/persistence-files.go WriteSchema.
type LocalBackend struct {
	basePath string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	watching map[string]struct{}
}

// NewLocalBackend roots a backend at basePath, creating it if necessary.
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("backend: mkdir %s: %w", basePath, err)
	}
	return &LocalBackend{basePath: basePath, watching: make(map[string]struct{})}, nil
}

func (b *LocalBackend) Name() string { return "local:" + b.basePath }

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(key))
}

func (b *LocalBackend) Put(_ context.Context, key string, r io.Reader, size int64) error {
	full := b.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return fmt.Errorf("backend: mkdir for %s: %w: %w", key, err, errtax.ErrBackend)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".des-tmp-*")
	if err != nil {
		return fmt.Errorf("backend: create temp for %s: %w: %w", key, err, errtax.ErrBackend)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("backend: writing temp for %s: %w: %w", key, err, errtax.ErrBackend)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("backend: closing temp for %s: %w: %w", key, err, errtax.ErrBackend)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("backend: rename into place for %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return nil
}

func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("backend: reading %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return data, nil
}

func (b *LocalBackend) GetRange(_ context.Context, key string, start, end int64) ([]byte, int64, error) {
	f, err := os.Open(b.path(key))
	if os.IsNotExist(err) {
		return nil, 0, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("backend: opening %s: %w: %w", key, err, errtax.ErrBackend)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("backend: stat %s: %w: %w", key, err, errtax.ErrBackend)
	}
	size := info.Size()

	if start < 0 {
		// negative start means "last -start bytes", mirroring the HTTP
		// Range "bytes=-N" suffix form spec.md §4.4 prefers for the
		// footer-only first read.
		n := -start
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	}

	length := end - start + 1
	if length <= 0 {
		return nil, 0, fmt.Errorf("backend: invalid range [%d,%d] for %s: %w", start, end, key, errtax.ErrBackend)
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("backend: range read %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return buf[:n], size, nil
}

func (b *LocalBackend) Head(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(b.path(key))
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("backend: stat %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return info.Size(), nil
}

func (b *LocalBackend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backend: stat %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return true, nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend: delete %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return nil
}

// SetObjectLock always returns ErrObjectLockUnsupported: local FS has no
// WORM primitive. Callers (the overlay manager) degrade to a sidecar
// metadata record, per spec.md §9.
func (b *LocalBackend) SetObjectLock(_ context.Context, _ string, _ time.Time) error {
	return ErrObjectLockUnsupported
}

// Watch starts an fsnotify watcher on dir (relative to basePath) and
// invokes onChange with the object key whenever an entry directly inside
// it is created, written, renamed or removed out-of-band (e.g. a future
// repack process replacing a shard). The watch is not recursive: files in
// subdirectories of dir are not reported. The onChange passed to the first
// Watch call receives events for every directory watched afterwards; the
// onChange of later calls is not used. This is an optional staleness bound
// on top of the index cache's TTL (spec.md §4.7, §9) — most deployments
// never call it.
func (b *LocalBackend) Watch(dir string, onChange func(key string)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("backend: starting watcher: %w", err)
		}
		b.watcher = w
		go func() {
			for {
				select {
				case ev, ok := <-w.Events:
					if !ok {
						return
					}
					if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
						rel, err := filepath.Rel(b.basePath, ev.Name)
						if err == nil {
							onChange(filepath.ToSlash(rel))
						}
					}
				case _, ok := <-w.Errors:
					if !ok {
						return
					}
				}
			}
		}()
	}

	full := filepath.Join(b.basePath, dir)
	if _, watched := b.watching[full]; watched {
		return nil
	}
	if err := os.MkdirAll(full, 0750); err != nil {
		return fmt.Errorf("backend: mkdir %s: %w", full, err)
	}
	if err := b.watcher.Add(full); err != nil {
		return fmt.Errorf("backend: watch %s: %w", full, err)
	}
	b.watching[full] = struct{}{}
	return nil
}

// Close stops the watcher, if one was started.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return b.watcher.Close()
	}
	return nil
}
