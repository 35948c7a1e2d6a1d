package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore keeps blobs in MongoDB GridFS, one bucket per logical bucket name.
type GridFSStore struct {
	db *mongo.Database
}

// NewGridFSStore wraps a Mongo database handle.
func NewGridFSStore(db *mongo.Database) *GridFSStore {
	return &GridFSStore{db: db}
}

// Put uploads the stream under name. Names are unique per bucket.
func (s *GridFSStore) Put(ctx context.Context, bucket, name string, r io.Reader) (int64, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return 0, err
	}
	exists, err := s.exists(ctx, b, name)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrBlobExists
	}

	stream, err := b.OpenUploadStream(name)
	if err != nil {
		return 0, fmt.Errorf("open gridfs upload: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(deadline)
	}
	written, err := io.Copy(stream, r)
	if err != nil {
		_ = stream.Abort()
		return 0, fmt.Errorf("write gridfs blob: %w", err)
	}
	if err := stream.Close(); err != nil {
		return 0, fmt.Errorf("finalise gridfs blob: %w", err)
	}
	return written, nil
}

// Open streams a stored blob by name.
func (s *GridFSStore) Open(ctx context.Context, bucket, name string) (*Blob, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = b.SetReadDeadline(deadline)
	}
	stream, err := b.OpenDownloadStreamByName(name)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("open gridfs download: %w", err)
	}
	return &Blob{Name: name, Size: stream.GetFile().Length, Reader: stream}, nil
}

func (s *GridFSStore) exists(ctx context.Context, b *gridfs.Bucket, name string) (bool, error) {
	cursor, err := b.Find(bson.M{"filename": name}, options.GridFSFind().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup gridfs blob: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck
	return cursor.Next(ctx), cursor.Err()
}

// bucket handles carry per-operation deadlines, so one is built per call.
func (s *GridFSStore) bucket(name string) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(SanitizeName(name)+"_files"))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return b, nil
}
