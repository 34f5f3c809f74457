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

package zone

import (
	"context"
	"fmt"
	"time"

	"github.com/coldshard/des/errtax"
	"github.com/coldshard/des/overlay"
	"github.com/coldshard/des/retrieval"
	"github.com/coldshard/des/router"
)

// MultiEngine wraps a Dispatcher with one retrieval.Engine per zone,
// giving the multi-zone deployment of spec.md §4.8 the same Get/SetRetention
// surface a single-zone retrieval.Engine exposes (so httpapi.Server can
// front either). A zone outage only fails the calls routed to it; other
// zones keep serving (spec.md §5 "failure isolation").
type MultiEngine struct {
	nBits   int
	d       *Dispatcher
	engines map[string]*retrieval.Engine // keyed by zone name
}

// NewMultiEngine builds one retrieval.Engine per zone in d, sharing the
// same per-zone cache/overlay settings (each zone gets its own index
// cache instance, since caches are keyed by backend and zones never share
// a backend).
func NewMultiEngine(nBits int, d *Dispatcher, engineCfg func(zoneName string) retrieval.Config) *MultiEngine {
	m := &MultiEngine{nBits: nBits, d: d, engines: make(map[string]*retrieval.Engine)}
	for _, z := range d.Zones() {
		cfg := engineCfg(z.Name)
		cfg.NBits = nBits
		m.engines[z.Name] = retrieval.New(z.Be, cfg)
	}
	return m
}

// Get routes uid to its owning zone's engine and fetches its bytes.
func (m *MultiEngine) Get(ctx context.Context, uid []byte, createdAt time.Time) ([]byte, error) {
	e, err := m.engineFor(uid, createdAt)
	if err != nil {
		return nil, err
	}
	return e.Get(ctx, uid, createdAt)
}

// SetRetention routes uid to its owning zone's engine and extends its
// retention there; each zone owns its own overlay prefix.
func (m *MultiEngine) SetRetention(ctx context.Context, uid []byte, createdAt time.Time, retainUntil time.Time) (overlay.SetRetentionResult, error) {
	e, err := m.engineFor(uid, createdAt)
	if err != nil {
		return overlay.SetRetentionResult{}, err
	}
	return e.SetRetention(ctx, uid, createdAt, retainUntil)
}

func (m *MultiEngine) engineFor(uid []byte, createdAt time.Time) (*retrieval.Engine, error) {
	loc, err := router.Locate(uid, createdAt, m.nBits)
	if err != nil {
		return nil, fmt.Errorf("zone: routing %x: %w", uid, err)
	}
	_, name, err := m.d.Locate(loc.ShardIndex)
	if err != nil {
		return nil, err
	}
	e, ok := m.engines[name]
	if !ok {
		return nil, fmt.Errorf("zone: no engine wired for zone %q: %w", name, errtax.ErrInvalidInput)
	}
	return e, nil
}

// InvalidateZoneCache drops objectKey from the named zone's index cache, the
// per-zone counterpart to Engine.InvalidateCache for callers (a backend's
// fsnotify watcher) that know which zone owns the backend that changed.
func (m *MultiEngine) InvalidateZoneCache(zoneName, objectKey string) {
	if e, ok := m.engines[zoneName]; ok {
		e.InvalidateCache(objectKey)
	}
}

// Stats aggregates per-zone retrieval.Stats, keyed by zone name, for a
// metrics hook to poll.
func (m *MultiEngine) Stats() map[string]retrieval.Stats {
	out := make(map[string]retrieval.Stats, len(m.engines))
	for name, e := range m.engines {
		out[name] = e.Stats()
	}
	return out
}
