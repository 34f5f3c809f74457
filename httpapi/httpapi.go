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

// Package httpapi is the HTTP retrieval surface of spec.md §6: GET
// /files/{uid}, PUT /files/{uid}/retention-policy, and GET /health.
//
// The teacher serves HTTP with plain net/http (scm/network.go's HTTPServe),
// wiring its own scripted callback through a single http.Server; that file
// even leaves a "TODO: implement NewServeMux.Handle(route, ...)" comment.
// This module picks up exactly that TODO: Go's http.ServeMux method+path
// patterns ("GET /files/{uid}") route each endpoint, no third-party router
// needed.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coldshard/des/errtax"
	"github.com/coldshard/des/overlay"
)

// Engine is the subset of retrieval.Engine's surface the HTTP handlers
// need. A single-zone deployment plugs in a *retrieval.Engine directly;
// a multi-zone deployment plugs in a zone.MultiEngine, which dispatches
// each call to the owning zone's own *retrieval.Engine (spec.md §4.8).
type Engine interface {
	Get(ctx context.Context, uid []byte, createdAt time.Time) ([]byte, error)
	SetRetention(ctx context.Context, uid []byte, createdAt time.Time, retainUntil time.Time) (overlay.SetRetentionResult, error)
}

// Server wires an Engine to net/http, mapping each errtax kind to the
// status code spec.md §6 specifies.
type Server struct {
	engine Engine
	logger *log.Logger
	mux    *http.ServeMux
}

// New builds a Server. logger defaults to log.Default() if nil, matching
// the teacher's fmt.Printf-to-an-injectable-writer logging convention.
func New(engine Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{engine: engine, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /files/{uid}", s.handleGetFile)
	s.mux.HandleFunc("PUT /files/{uid}/retention-policy", s.handleSetRetention)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

type requestIDKey struct{}

// requestIDFrom reads the per-request correlation id stashed by ServeHTTP,
// for handlers that want to echo it in an error-path log line.
func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	start := time.Now()
	ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
	s.mux.ServeHTTP(w, r.WithContext(ctx))
	s.logger.Printf("request_id=%s method=%s path=%s elapsed=%s", reqID, r.Method, r.URL.Path, time.Since(start))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}

	createdAtRaw := r.URL.Query().Get("created_at")
	if createdAtRaw == "" {
		writeError(w, http.StatusBadRequest, "created_at query parameter is required")
		return
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("created_at must be RFC3339: %v", err))
		return
	}

	data, err := s.engine.Get(r.Context(), []byte(uid), createdAt)
	if err != nil {
		s.logger.Printf("request_id=%s get uid=%s err=%v", requestIDFrom(r), uid, err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// retentionRequest is the JSON body PUT /files/{uid}/retention-policy
// accepts (spec.md §6).
type retentionRequest struct {
	CreatedAt string `json:"created_at"`
	DueDate   string `json:"due_date"`
}

// retentionResponse is the JSON body returned on success.
type retentionResponse struct {
	UID            string `json:"uid"`
	CreatedAt      string `json:"created_at"`
	Location       string `json:"location"`
	RetentionUntil string `json:"retention_until"`
	Action         string `json:"action"`
}

func (s *Server) handleSetRetention(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}

	var body retentionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	createdAt, err := time.Parse(time.RFC3339, body.CreatedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("created_at must be RFC3339: %v", err))
		return
	}
	dueDate, err := time.Parse(time.RFC3339, body.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("due_date must be RFC3339: %v", err))
		return
	}

	res, err := s.engine.SetRetention(r.Context(), []byte(uid), createdAt, dueDate)
	if err != nil {
		s.logger.Printf("request_id=%s set_retention uid=%s err=%v", requestIDFrom(r), uid, err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, retentionResponse{
		UID:            uid,
		CreatedAt:      body.CreatedAt,
		Location:       "extended_retention",
		RetentionUntil: res.RetainUntil.UTC().Format(time.RFC3339),
		Action:         string(res.Action),
	})
}

// statusFor maps an errtax kind to the HTTP status spec.md §6 names; the
// first matching kind wins, so more specific kinds must be checked before
// ErrBackend.
func statusFor(err error) int {
	switch {
	case errtax.Is(err, errtax.ErrInvalidInput):
		return http.StatusBadRequest
	case errtax.Is(err, errtax.ErrNotFound):
		return http.StatusNotFound
	case errtax.Is(err, errtax.ErrCorruptShard):
		return http.StatusInternalServerError
	case errtax.Is(err, errtax.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("httpapi: encoding response: %v", err)
	}
}
