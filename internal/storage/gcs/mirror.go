// Package gcs mirrors schedule files to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Config captures the parameters required to mirror into GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// Mirror writes schedule files to a configured GCS bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName maps a slash-separated relative path onto the bucket namespace.
func (m *Mirror) ObjectName(rel string) string {
	rel = strings.TrimLeft(rel, "/")
	if m.prefix == "" {
		return rel
	}
	return path.Join(m.prefix, rel)
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (m *Mirror) PutObject(ctx context.Context, rel string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	name := m.ObjectName(rel)
	writer := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, name), nil
}

// DeletePrefix removes every object under the relative prefix and returns how
// many were deleted.
func (m *Mirror) DeletePrefix(ctx context.Context, rel string) (int, error) {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return 0, fmt.Errorf("prefix is required")
	}
	bucket := m.client.Bucket(m.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: m.ObjectName(rel) + "/"})

	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("iterate objects: %w", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return deleted, fmt.Errorf("delete %s: %w", attrs.Name, err)
		}
		deleted++
	}
	return deleted, nil
}
