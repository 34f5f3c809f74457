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

// cmd/pack is the minimum glue needed to exercise planner.Plan without a
// source database: it reads a JSON manifest of local files and packs them
// onto a local-FS or S3 backend. The "source-database migration
// orchestrator's SQL glue" stays out of scope (spec.md §1); this only
// reads a manifest a human or a script already produced.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/planner"
	"github.com/coldshard/des/shard"
)

// manifestEntry is one line of the input manifest: a uid, its creation
// time, the local path holding its bytes, and opaque caller metadata
// preserved verbatim in the shard index (spec.md §3's "meta is opaque
// JSON bytes... the core preserves it verbatim").
type manifestEntry struct {
	UID       string          `json:"uid"`
	CreatedAt time.Time       `json:"created_at"`
	Path      string          `json:"path"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

func main() {
	manifestPath := flag.String("manifest", "", "path to a JSON array of {uid, created_at, path, meta}")
	backendKind := flag.String("backend", "local", "local or s3")
	localPath := flag.String("local-path", "./des-data", "base directory for the local backend")
	s3Bucket := flag.String("s3-bucket", "", "bucket name for the s3 backend")
	s3Prefix := flag.String("s3-prefix", "", "key prefix for the s3 backend")
	nBits := flag.Int("n-bits", 8, "routing bits, [4,16]")
	codecName := flag.String("codec", "lz4", "none, lz4, or zstd")
	maxShardSizeMB := flag.Int64("max-shard-size-mb", 1024, "max bytes per physical shard, in MiB")
	bigfileThresholdMB := flag.Int64("bigfile-threshold-mb", 10, "BigFile externalization threshold, in MiB")
	flag.Parse()

	if *manifestPath == "" {
		log.Fatal("pack: -manifest is required")
	}

	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		log.Fatalf("pack: reading manifest: %v", err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Fatalf("pack: parsing manifest: %v", err)
	}

	var be planner.Backend
	switch *backendKind {
	case "local":
		lb, err := backend.NewLocalBackend(*localPath)
		if err != nil {
			log.Fatalf("pack: opening local backend: %v", err)
		}
		be = lb
	case "s3":
		if *s3Bucket == "" {
			log.Fatal("pack: -s3-bucket is required for -backend=s3")
		}
		be = backend.NewS3Backend(backend.S3Config{
			AccessKeyID:     os.Getenv("DES_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("DES_S3_SECRET_ACCESS_KEY"),
			Region:          os.Getenv("DES_S3_REGION"),
			Endpoint:        os.Getenv("DES_S3_ENDPOINT"),
			Bucket:          *s3Bucket,
			Prefix:          *s3Prefix,
		})
	default:
		log.Fatalf("pack: unknown backend %q", *backendKind)
	}

	var cid codec.ID
	switch *codecName {
	case "none":
		cid = codec.None
	case "lz4":
		cid = codec.LZ4
	case "zstd":
		cid = codec.Zstd
	default:
		log.Fatalf("pack: unknown codec %q", *codecName)
	}

	cfg := planner.Config{
		NBits: *nBits,
		WriterConfig: shard.WriterConfig{
			Compression:           codec.Config{Codec: cid, Level: 4, Skip: codec.DefaultSkipConfig()},
			BigFileThresholdBytes: *bigfileThresholdMB << 20,
			BigFilesPrefix:        "_bigFiles",
			MaxShardSizeBytes:     uint64(*maxShardSizeMB) << 20,
		},
	}

	files := make([]planner.FileToPack, 0, len(entries))
	for _, e := range entries {
		e := e
		info, err := os.Stat(e.Path)
		if err != nil {
			log.Fatalf("pack: stat %s: %v", e.Path, err)
		}
		files = append(files, planner.FileToPack{
			UID:       []byte(e.UID),
			CreatedAt: e.CreatedAt,
			SizeHint:  info.Size(),
			Meta:      e.Meta,
			Open: func() (io.ReadCloser, error) {
				return os.Open(e.Path)
			},
		})
	}

	result, err := planner.Plan(context.Background(), be, cfg, files)
	if err != nil {
		log.Fatalf("pack: %v", err)
	}

	failed := 0
	for _, f := range result.Files {
		if f.Err != nil {
			failed++
			log.Printf("pack: file %s failed: %v", f.UID, f.Err)
		}
	}
	fmt.Printf("pack: wrote %d shards, %d files packed, %d failed\n", len(result.Shards), len(result.Files)-failed, failed)
	for _, s := range result.Shards {
		fmt.Printf("  %s: %d entries, %d bytes\n", s.ObjectKey, s.Entries, s.BytesWritten)
	}
}
