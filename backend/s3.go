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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/coldshard/des/errtax"
)

// S3Config mirrors the teacher's storage.S3Factory (storage/persistence-s3.go),
// generalized from "one factory per logical database" to "one backend per
// zone" (spec.md §4.8 gives each zone its own back-end handle).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores (MinIO, etc.)
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Backend implements Backend against an S3-compatible bucket.
type S3Backend struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3Backend constructs a backend; the AWS client is created lazily on
// first use (ensureOpen), exactly as the teacher's S3Storage.ensureOpen
// does, so constructing a zone map at boot never touches the network.
func NewS3Backend(cfg S3Config) *S3Backend {
	return &S3Backend{cfg: cfg}
}

func (b *S3Backend) Name() string { return "s3:" + b.cfg.Bucket + "/" + b.cfg.Prefix }

func (b *S3Backend) ensureOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return nil
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKeyID != "" && b.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKeyID, b.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("backend: load aws config: %w: %w", err, errtax.ErrBackend)
	}

	var s3Opts []func(*s3.Options)
	if b.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(b.cfg.Endpoint) })
	}
	if b.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	b.client = s3.NewFromConfig(awsCfg, s3Opts...)
	b.opened = true
	return nil
}

func (b *S3Backend) key(k string) string {
	if b.cfg.Prefix == "" {
		return k
	}
	return strings.TrimSuffix(b.cfg.Prefix, "/") + "/" + k
}

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(b.key(key)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("backend: s3 put %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(key)),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("backend: s3 get %s: %w: %w", key, err, errtax.ErrBackend)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: s3 read body %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return data, nil
}

// GetRange performs a ranged GetObject. A negative start requests the
// "bytes=-N" suffix form (last N bytes), the HEAD-free trick spec.md §4.4
// prefers for the footer read, reporting the true object size via the
// response's ContentRange.
func (b *S3Backend) GetRange(ctx context.Context, key string, start, end int64) ([]byte, int64, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, 0, err
	}
	var rangeHeader string
	if start < 0 {
		rangeHeader = fmt.Sprintf("bytes=%d", start)
	} else {
		rangeHeader = fmt.Sprintf("bytes=%d-%d", start, end)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(key)),
		Range:  aws.String(rangeHeader),
	})
	if isNotFound(err) {
		return nil, 0, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("backend: s3 range get %s: %w: %w", key, err, errtax.ErrBackend)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: s3 read range body %s: %w: %w", key, err, errtax.ErrBackend)
	}

	totalSize := int64(len(data))
	if out.ContentRange != nil {
		if sz, ok := ContentRangeSize(*out.ContentRange); ok {
			totalSize = sz
		}
	} else if out.ContentLength != nil {
		totalSize = *out.ContentLength
	}
	return data, totalSize, nil
}

// ContentRangeSize parses the total object size out of an S3 Content-Range
// response header ("bytes 100-111/1024" -> 1024), the mechanism
// GetRange(-12,0) relies on to learn file_size without a HEAD round trip.
func ContentRangeSize(contentRange string) (int64, bool) {
	idx := strings.LastIndexByte(contentRange, '/')
	if idx < 0 || idx+1 >= len(contentRange) {
		return 0, false
	}
	n, err := strconv.ParseInt(contentRange[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (b *S3Backend) Head(ctx context.Context, key string) (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(key)),
	})
	if isNotFound(err) {
		return 0, fmt.Errorf("backend: %s: %w", key, errtax.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("backend: s3 head %s: %w: %w", key, err, errtax.ErrBackend)
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("backend: s3 head %s: missing content-length: %w", key, errtax.ErrBackend)
	}
	return *out.ContentLength, nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.Head(ctx, key)
	if errtax.Is(err, errtax.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		return fmt.Errorf("backend: s3 delete %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return nil
}

// SetObjectLock sets a GOVERNANCE-mode retention timestamp via S3 Object
// Lock. The bucket must have Object Lock enabled; S3-compatible stores that
// don't support it return ErrBackend, which the overlay manager surfaces
// to its caller (spec.md §9 degradation is for local FS, not S3).
func (b *S3Backend) SetObjectLock(ctx context.Context, key string, retainUntil time.Time) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	_, err := b.client.PutObjectRetention(ctx, &s3.PutObjectRetentionInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(key)),
		Retention: &types.ObjectLockRetention{
			Mode:            types.ObjectLockRetentionModeGovernance,
			RetainUntilDate: aws.Time(retainUntil),
		},
	})
	if err != nil {
		return fmt.Errorf("backend: s3 object lock %s: %w: %w", key, err, errtax.ErrBackend)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NotFound
	if errors.As(err, &nsk) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}
