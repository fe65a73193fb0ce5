package docstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalDriver stores version blobs on the local filesystem. Keys are slash
// separated (documentID/version-file), so blobs of one document share a
// directory. The content type is kept in a sidecar next to the blob.
type LocalDriver struct {
	baseDir   string
	publicURL string
}

// NewLocalDriver creates a LocalDriver rooted at baseDir. publicURL, when
// set, prefixes generated download URLs.
func NewLocalDriver(baseDir, publicURL string) (*LocalDriver, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document store directory: %w", err)
	}
	return &LocalDriver{baseDir: baseDir, publicURL: publicURL}, nil
}

func (d *LocalDriver) blobPath(key string) string {
	return filepath.Join(d.baseDir, filepath.FromSlash(key))
}

func (d *LocalDriver) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	path := d.blobPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	// Versions are immutable: refuse to overwrite an existing blob.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create blob %s: %w", key, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}

	if err := os.WriteFile(path+".mime", []byte(contentType), 0644); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write blob metadata: %w", err)
	}
	return nil
}

func (d *LocalDriver) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path := d.blobPath(key)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open blob %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if mime, err := os.ReadFile(path + ".mime"); err == nil {
		contentType = string(mime)
	}
	return f, contentType, nil
}

func (d *LocalDriver) Remove(ctx context.Context, key string) error {
	path := d.blobPath(key)
	os.Remove(path + ".mime")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *LocalDriver) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if d.publicURL == "" {
		return key, nil
	}
	return fmt.Sprintf("%s/%s", d.publicURL, key), nil
}
