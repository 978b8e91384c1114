// Package gcs stores submission archives in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the bucket and optional key prefix for archives.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "submissions/".
	Prefix string
	// ChunkSize overrides the resumable upload chunk size; zero keeps the client default.
	ChunkSize int
}

// BlobStore uploads archives as downloadable attachments.
type BlobStore struct {
	client    *storage.Client
	bucket    string
	prefix    string
	chunkSize int
}

// New creates a GCS-backed archive store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		chunkSize: cfg.ChunkSize,
	}, nil
}

// ObjectKey maps an archive name to its key in the bucket.
func (s *BlobStore) ObjectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// PutObject streams the archive to the bucket and returns its gs:// location.
// If the source fails mid-copy the upload is aborted and nothing is committed.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	key := s.ObjectKey(name)

	uploadCtx, abort := context.WithCancel(ctx)
	defer abort()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(uploadCtx)
	w.ContentType = contentType
	w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", path.Base(name))
	if s.chunkSize > 0 {
		w.ChunkSize = s.chunkSize
	}

	if _, err := io.Copy(w, r); err != nil {
		abort()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}
