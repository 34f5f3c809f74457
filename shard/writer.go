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
package shard

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/codec"
	"github.com/coldshard/des/errtax"
)

// writerState implements the three-state machine of spec.md §9: OPEN
// (appending allowed), CLOSING (finalizing, no append), CLOSED (terminal).
// Invalid transitions are programmer errors (panic), mirroring the
// teacher's treatment of its own storageShard invariants.
type writerState int

const (
	stateOpen writerState = iota
	stateClosing
	stateClosed
)

// WriterConfig collects the environment controls that shape one shard
// write (spec.md §6): the compression selection, the BigFile threshold,
// the BigFile sibling prefix, and the max shard size the planner enforces
// per logical group.
type WriterConfig struct {
	Compression         codec.Config
	BigFileThresholdBytes int64
	BigFilesPrefix        string
	MaxShardSizeBytes     uint64
}

// DefaultWriterConfig mirrors spec.md §6's defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Compression:           codec.DefaultConfig(),
		BigFileThresholdBytes: 10 << 20, // 10 MiB
		BigFilesPrefix:        "_bigFiles",
		MaxShardSizeBytes:     1 << 30, // 1 GiB
	}
}

// CloseResult is what close() returns (spec.md §4.3).
type CloseResult struct {
	ObjectKey    string
	BytesWritten uint64
	Entries      int
}

// Writer materializes one shard from an ordered sequence of append calls.
// A Writer is single-threaded externally (spec.md §5): callers wanting
// parallel packing run multiple Writers over disjoint (date_dir, shard_hex)
// groups, never share one Writer across goroutines.
type Writer struct {
	be  backend.Backend
	cfg WriterConfig
	key string

	mu    sync.Mutex
	state writerState
	body  bytes.Buffer // HEADER+DATA, growing
	index []Entry
}

// Open begins a new shard at objectKey. One call to Open is one physical
// shard (spec.md §4.3) — size-limited splitting into "<hex>_0001.des"
// siblings is the planner's job, not the writer's.
func Open(be backend.Backend, objectKey string, cfg WriterConfig) (*Writer, error) {
	w := &Writer{be: be, cfg: cfg, key: objectKey, state: stateOpen}
	if _, err := EncodeHeader(&w.body, Version2); err != nil {
		return nil, fmt.Errorf("shard: writing header: %w", err)
	}
	return w, nil
}

// Append adds one (uid, payload) pair to the shard, choosing the inline or
// BigFile path per spec.md §4.3 step 1. Duplicate uids within one shard are
// permitted; they are appended in arrival order and the reader resolves the
// last occurrence.
func (w *Writer) Append(ctx context.Context, uid []byte, payload io.Reader, sizeHint int64, meta []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateOpen {
		panic("shard.Writer: Append called after Close")
	}

	if sizeHint >= w.cfg.BigFileThresholdBytes {
		return w.appendBigFile(ctx, uid, payload, meta)
	}
	return w.appendInline(uid, payload, meta)
}

func (w *Writer) appendInline(uid []byte, payload io.Reader, meta []byte) error {
	raw, n, err := codec.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("shard: reading payload for %x: %w", uid, err)
	}

	name := string(uid)
	codecID, body := w.cfg.Compression.Pick(name, raw)

	projected := uint64(w.body.Len()) + uint64(len(body))
	if projected > w.cfg.MaxShardSizeBytes {
		return fmt.Errorf("shard: append of %d bytes would exceed max shard size %d: %w", len(body), w.cfg.MaxShardSizeBytes, errtax.ErrShardTooLarge)
	}

	offset := uint64(w.body.Len())
	if _, err := w.body.Write(body); err != nil {
		return fmt.Errorf("shard: writing data: %w", err)
	}

	w.index = append(w.index, Entry{
		UID:              append([]byte(nil), uid...),
		Offset:           offset,
		Length:           uint64(len(body)),
		CodecID:          codecID,
		CompressedSize:   uint64(len(body)),
		UncompressedSize: uint64(n),
		Meta:             append([]byte(nil), meta...),
	})
	return nil
}

func (w *Writer) appendBigFile(ctx context.Context, uid []byte, payload io.Reader, meta []byte) error {
	h := sha256.New()
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.TeeReader(payload, h))
	if err != nil {
		return fmt.Errorf("shard: streaming bigfile payload for %x: %w", uid, err)
	}
	hashHex := fmt.Sprintf("%x", h.Sum(nil))
	key := w.cfg.BigFilesPrefix + "/" + hashHex

	exists, err := w.be.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("shard: checking bigfile sibling %s: %w", key, err)
	}
	if !exists {
		if err := w.be.Put(ctx, key, bytes.NewReader(buf.Bytes()), n); err != nil {
			return fmt.Errorf("shard: writing bigfile sibling %s: %w", key, err)
		}
	}

	w.index = append(w.index, Entry{
		UID:         append([]byte(nil), uid...),
		IsBigFile:   true,
		HashHex:     hashHex,
		BigFileSize: uint64(n),
		Meta:        append([]byte(nil), meta...),
	})
	return nil
}

// Close finalizes the shard: serializes INDEX then FOOTER, and publishes
// the whole object with one backend Put. No partial shard is ever visible:
// if the Put fails, nothing is published (spec.md §4.3, §5).
func (w *Writer) Close(ctx context.Context) (CloseResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateClosed {
		panic("shard.Writer: Close called twice")
	}
	w.state = stateClosing

	var indexBuf bytes.Buffer
	for _, e := range w.index {
		if err := EncodeEntryV2(&indexBuf, e); err != nil {
			w.state = stateClosed
			return CloseResult{}, fmt.Errorf("shard: encoding index: %w", err)
		}
	}

	final := make([]byte, 0, w.body.Len()+indexBuf.Len()+FooterSize)
	final = append(final, w.body.Bytes()...)
	final = append(final, indexBuf.Bytes()...)

	var footerBuf bytes.Buffer
	if _, err := EncodeFooter(&footerBuf, uint64(indexBuf.Len())); err != nil {
		w.state = stateClosed
		return CloseResult{}, fmt.Errorf("shard: encoding footer: %w", err)
	}
	final = append(final, footerBuf.Bytes()...)

	if err := w.be.Put(ctx, w.key, bytes.NewReader(final), int64(len(final))); err != nil {
		w.state = stateClosed
		return CloseResult{}, fmt.Errorf("shard: publishing %s: %w", w.key, err)
	}

	w.state = stateClosed
	return CloseResult{
		ObjectKey:    w.key,
		BytesWritten: uint64(len(final)),
		Entries:      len(w.index),
	}, nil
}

// EstimatedSize returns the writer's current HEADER+DATA length, the
// quantity Append compares against the configured max shard size.
func (w *Writer) EstimatedSize() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uint64(w.body.Len())
}
