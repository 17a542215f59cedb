// Package objstore wraps the S3-compatible clients the downloader reads from.
//
// Two backends are available: the AWS SDK (default) and minio-go. Both are
// addressed path-style, so any S3-compatible endpoint works.
package objstore

import (
	"context"
	"io"
)

// ObjectInfo is a listing entry.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Object is an open object body. Size is -1 when the store did not declare
// a length. Callers must close Body.
type Object struct {
	Key  string
	Size int64
	Body io.ReadCloser
}

type Store interface {
	// Bucket returns the bucket every call is bound to.
	Bucket() string

	// GetObject opens a streaming read of a single key.
	GetObject(ctx context.Context, key string) (*Object, error)

	// ListObjects returns every key under prefix, consuming all pages.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// RangedDownloader is implemented by stores that can fetch an object in
// ranged parts written at their offsets.
type RangedDownloader interface {
	DownloadTo(ctx context.Context, key string, w io.WriterAt) (int64, error)
}
