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
	"sync"
	"time"

	"github.com/coldshard/des/errtax"
)

// MemoryBackend is an in-process fake implementing Backend, used across
// this module's test suites in place of a real S3 account — the same role
// t.TempDir() plays for LocalBackend tests, kept as a named type so tests
// can also assert on RangeGetCount (spec.md §8's "exactly three range
// GETs" property).
type MemoryBackend struct {
	mu   sync.Mutex
	objs map[string][]byte
	lock map[string]time.Time

	RangeGetCount int
	GetCount      int
	PutCount      int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objs: make(map[string][]byte), lock: make(map[string]time.Time)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("backend: memory put %s: %w: %w", key, err, errtax.ErrBackend)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = buf
	m.PutCount++
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCount++
	data, ok := m.objs[key]
	if !ok {
		return nil, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) GetRange(_ context.Context, key string, start, end int64) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RangeGetCount++
	data, ok := m.objs[key]
	if !ok {
		return nil, 0, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	size := int64(len(data))

	if start < 0 {
		n := -start
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	}
	if start < 0 || end >= size || start > end {
		return nil, 0, fmt.Errorf("backend: invalid range [%d,%d] for %s (size %d): %w", start, end, key, size, errtax.ErrBackend)
	}
	out := make([]byte, end-start+1)
	copy(out, data[start:end+1])
	return out, size, nil
}

func (m *MemoryBackend) Head(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objs[key]
	if !ok {
		return 0, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	return int64(len(data)), nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[key]
	return ok, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, key)
	delete(m.lock, key)
	return nil
}

func (m *MemoryBackend) SetObjectLock(_ context.Context, key string, retainUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objs[key]; !ok {
		return fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	m.lock[key] = retainUntil
	return nil
}

// RetainUntil reports the object-lock timestamp set on key, for test
// assertions.
func (m *MemoryBackend) RetainUntil(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lock[key]
	return t, ok
}

// ResetCounters zeroes the I/O counters without discarding stored objects,
// used by tests checking cache warm-path behavior across multiple reads.
func (m *MemoryBackend) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RangeGetCount, m.GetCount, m.PutCount = 0, 0, 0
}
