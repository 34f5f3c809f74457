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

// cmd/server wires config.Config, a backend.Backend (or a zone.Dispatcher
// over several), and a retrieval.Engine into the httpapi.Server of spec.md
// §6. It reads no config file (out of scope per spec.md §1); every knob
// comes from config.FromEnv plus a handful of DES_SERVER_* variables that
// pick and parameterize the back-end(s), the same DES_*-prefixed
// os.Getenv convention config.FromEnv already uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dc0d/onexit"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/config"
	"github.com/coldshard/des/httpapi"
	"github.com/coldshard/des/retrieval"
	"github.com/coldshard/des/zone"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("server: loading config: %v", err)
	}

	engine, closers, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("server: building retrieval engine: %v", err)
	}

	// onexit registers a cleanup hook run on process exit, the same
	// pattern the teacher's storage/settings.go uses to flush its trace
	// file (onexit.Register(func(){ scm.SetTrace(false) })); here it closes
	// every backend's fsnotify watcher instead.
	onexit.Register(func() {
		for _, c := range closers {
			c()
		}
	})

	srv := httpapi.New(engine, log.Default())
	addr := os.Getenv("DES_SERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	go func() {
		log.Printf("server: listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
	for _, c := range closers {
		c()
	}
}

// buildEngine assembles either a single retrieval.Engine (DES_SERVER_ZONES
// unset) or a zone.MultiEngine fronting several backends, based on
// DES_SERVER_BACKEND=local|s3 and, for multi-zone, DES_SERVER_ZONES, a
// comma-separated "name:start:end:backend-spec" list. Each backend-spec is
// either "local:<path>" or "s3:<bucket>[:<prefix>]".
func buildEngine(cfg config.Config) (httpapi.Engine, []func(), error) {
	zonesRaw := os.Getenv("DES_SERVER_ZONES")
	if zonesRaw == "" {
		be, closer, err := openBackendSpec(os.Getenv("DES_SERVER_BACKEND"))
		if err != nil {
			return nil, nil, err
		}
		engine := retrieval.New(be, engineConfig(cfg))
		wireLocalWatch(be, engine.InvalidateCache)
		return engine, []func(){closer}, nil
	}

	var zones []zone.ZoneSpec
	var closers []func()
	for _, part := range strings.Split(zonesRaw, ",") {
		fields := strings.SplitN(part, ":", 4)
		if len(fields) < 4 {
			return nil, nil, fmt.Errorf("server: malformed zone spec %q, want name:start:end:backend-spec", part)
		}
		start, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("server: zone %q: bad start: %w", fields[0], err)
		}
		end, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("server: zone %q: bad end: %w", fields[0], err)
		}
		be, closer, err := openBackendSpec(fields[3])
		if err != nil {
			return nil, nil, fmt.Errorf("server: zone %q: %w", fields[0], err)
		}
		closers = append(closers, closer)
		zones = append(zones, zone.ZoneSpec{Start: uint32(start), End: uint32(end), Name: fields[0], Be: be})
	}

	d, err := zone.New(cfg.NBits, zones)
	if err != nil {
		return nil, nil, fmt.Errorf("server: building zone dispatcher: %w", err)
	}
	multi := zone.NewMultiEngine(cfg.NBits, d, func(string) retrieval.Config { return engineConfig(cfg) })
	for _, z := range zones {
		zoneName := z.Name
		wireLocalWatch(z.Be, func(objectKey string) { multi.InvalidateZoneCache(zoneName, objectKey) })
	}
	return multi, closers, nil
}

// wireLocalWatch starts be's fsnotify watcher, if be is a local backend,
// on the backend's base directory, routing every out-of-band change it
// reports through invalidate (spec.md §4.7, §9's staleness bound on top of
// the cache's own TTL). The watch covers only entries directly inside the
// base directory; shards under the <date>/ subdirectories are not reported,
// so a replaced shard's index stays cached until its TTL expires. S3
// backends have no such watcher and are left alone.
func wireLocalWatch(be backend.Backend, invalidate func(objectKey string)) {
	lb, ok := be.(*backend.LocalBackend)
	if !ok {
		return
	}
	if err := lb.Watch(".", invalidate); err != nil {
		log.Printf("server: could not start fsnotify watcher on %s: %v", lb.Name(), err)
	}
}

func engineConfig(cfg config.Config) retrieval.Config {
	return retrieval.Config{
		NBits:           cfg.NBits,
		IndexCacheBytes: cfg.IndexCacheBytes,
		IndexCacheTTL:   cfg.IndexCacheTTL,
		OverlayPrefix:   cfg.OverlayPrefix,
		BigFilesPrefix:  cfg.BigFilesPrefix,
	}
}

// openBackendSpec parses one "local:<path>" or "s3:<bucket>[:<prefix>]"
// spec into a backend.Backend, returning a no-op closer for backends with
// nothing to tear down.
func openBackendSpec(spec string) (backend.Backend, func(), error) {
	if spec == "" {
		spec = "local:./des-data"
	}
	parts := strings.SplitN(spec, ":", 2)
	kind := parts[0]
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}

	switch kind {
	case "local":
		lb, err := backend.NewLocalBackend(rest)
		if err != nil {
			return nil, nil, fmt.Errorf("opening local backend at %q: %w", rest, err)
		}
		return lb, func() { lb.Close() }, nil
	case "s3":
		bucketAndPrefix := strings.SplitN(rest, ":", 2)
		bucket := bucketAndPrefix[0]
		prefix := ""
		if len(bucketAndPrefix) == 2 {
			prefix = bucketAndPrefix[1]
		}
		s3be := backend.NewS3Backend(backend.S3Config{
			AccessKeyID:     os.Getenv("DES_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("DES_S3_SECRET_ACCESS_KEY"),
			Region:          os.Getenv("DES_S3_REGION"),
			Endpoint:        os.Getenv("DES_S3_ENDPOINT"),
			Bucket:          bucket,
			Prefix:          prefix,
			ForcePathStyle:  os.Getenv("DES_S3_FORCE_PATH_STYLE") == "1",
		})
		return s3be, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q (want local or s3)", kind)
	}
}
