package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when the object key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object operations used by the source archive.
type ObjectStorage interface {
	// PutObject uploads sizeBytes from reader under objectKey.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
