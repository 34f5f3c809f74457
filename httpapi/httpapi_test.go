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

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/planner"
	"github.com/coldshard/des/retrieval"
)

func newTestServer(t *testing.T) (*Server, *backend.MemoryBackend) {
	t.Helper()
	be := backend.NewMemoryBackend()

	cfg := planner.DefaultConfig()
	cfg.WriterConfig.Compression.Codec = codec.None
	createdAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	file := planner.FileToPack{
		UID:       []byte("file-1"),
		CreatedAt: createdAt,
		SizeHint:  5,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}
	result, err := planner.Plan(context.Background(), be, cfg, []planner.FileToPack{file})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, fr := range result.Files {
		if fr.Err != nil {
			t.Fatalf("pack: %v", fr.Err)
		}
	}

	rcfg := retrieval.DefaultConfig()
	rcfg.OverlayPrefix = "_ext_retention"
	engine := retrieval.New(be, rcfg)
	return New(engine, nil), be
}

func TestGetFileReturnsBytes(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/files/file-1?created_at=2024-06-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello" {
		t.Fatalf("body = %q, want %q", w.Body.String(), "hello")
	}
}

func TestGetFileMissingCreatedAtIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/files/file-1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetFileUnknownUIDIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/files/does-not-exist?created_at=2024-06-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSetRetentionMovesFileAndReturnsAction(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(retentionRequest{
		CreatedAt: "2024-06-01T00:00:00Z",
		DueDate:   time.Now().Add(365 * 24 * time.Hour).UTC().Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPut, "/files/file-1/retention-policy", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp retentionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Action != "moved" {
		t.Fatalf("Action = %s, want moved", resp.Action)
	}
	if resp.Location != "extended_retention" {
		t.Fatalf("Location = %s, want extended_retention", resp.Location)
	}
}

func TestSetRetentionInvalidJSONIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/files/file-1/retention-policy", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
