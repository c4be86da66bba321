package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"contestjudge/internal/common/storage"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultSourcePrefix = "submissions"
	archiveContentType  = "application/zstd"
	maxArchiveBytes     = 16 << 20
)

// SourceArchive stores zstd-compressed submission sources in object storage.
type SourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSourceArchive creates an archive writing under bucket/prefix.
func NewSourceArchive(objects storage.ObjectStorage, bucket, prefix string) (*SourceArchive, error) {
	if objects == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if prefix == "" {
		prefix = defaultSourcePrefix
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SourceArchive{storage: objects, bucket: bucket, prefix: prefix, encoder: encoder, decoder: decoder}, nil
}

// Key returns the object key of a submission's source.
func (a *SourceArchive) Key(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.zst", a.prefix, submissionID)
}

// Put compresses and uploads source, returning its object key.
func (a *SourceArchive) Put(ctx context.Context, submissionID, source string) (string, error) {
	compressed := a.encoder.EncodeAll([]byte(source), make([]byte, 0, len(source)/2+64))
	key := a.Key(submissionID)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), archiveContentType); err != nil {
		return "", err
	}
	return key, nil
}

// Get downloads and decompresses a source.
func (a *SourceArchive) Get(ctx context.Context, key string) (string, error) {
	reader, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	compressed, err := io.ReadAll(io.LimitReader(reader, maxArchiveBytes))
	if err != nil {
		return "", fmt.Errorf("read archived source failed: %w", err)
	}
	source, err := a.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("decompress archived source failed: %w", err)
	}
	return string(source), nil
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
