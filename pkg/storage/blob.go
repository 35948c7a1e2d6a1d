package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrBlobExists is returned when a write targets a name that is already stored.
	ErrBlobExists = errors.New("blob already exists")
	// ErrBlobNotFound is returned when no blob is stored under the requested name.
	ErrBlobNotFound = errors.New("blob not found")
)

// Blob is an open handle on a stored object. Callers must close Reader.
type Blob struct {
	Name   string
	Size   int64
	Reader io.ReadCloser
}

// BlobStore is write-once named storage partitioned into buckets.
type BlobStore interface {
	Put(ctx context.Context, bucket, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, bucket, name string) (*Blob, error)
}

// SanitizeName reduces an arbitrary filename to a safe single path segment.
func SanitizeName(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndexAny(raw, `/\`); idx >= 0 {
		raw = raw[idx+1:]
	}
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "file"
	}
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}
