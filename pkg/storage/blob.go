package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Blob describes a stored object.
type Blob struct {
	PublicID string
	URL      string
	Size     int64
}

// UploadOptions controls placement of a stored object.
type UploadOptions struct {
	Folder      string
	Filename    string
	ContentType string
}

// BlobStore persists uploaded files on local disk under a base directory.
// Public IDs are folder-qualified relative paths, mirroring the contract of
// a remote object store.
type BlobStore struct {
	baseDir string
}

// NewBlobStore ensures the base directory exists and returns a handle.
func NewBlobStore(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// Upload writes data under a generated public ID and returns the blob metadata.
func (s *BlobStore) Upload(data []byte, opts UploadOptions) (*Blob, error) {
	publicID := s.newPublicID(opts)
	path := s.resolve(publicID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	return &Blob{PublicID: publicID, URL: "/files/" + publicID, Size: int64(len(data))}, nil
}

// Open returns a read-only handle for a stored blob.
func (s *BlobStore) Open(publicID string) (*os.File, error) {
	file, err := os.Open(s.resolve(publicID))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", publicID, err)
	}
	return file, nil
}

// Delete removes a stored blob. Missing blobs are not an error, so cascade
// deletes stay idempotent.
func (s *BlobStore) Delete(publicID string) error {
	if err := os.Remove(s.resolve(publicID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", publicID, err)
	}
	return nil
}

// CleanupOlderThan removes blobs older than the provided TTL and returns the
// public IDs it deleted.
func (s *BlobStore) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup blobs: %w", err)
	}
	return deleted, nil
}

func (s *BlobStore) newPublicID(opts UploadOptions) string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		buf = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	}
	name := hex.EncodeToString(buf)
	if ext := filepath.Ext(opts.Filename); ext != "" {
		name += strings.ToLower(ext)
	}
	folder := strings.Trim(opts.Folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func (s *BlobStore) resolve(publicID string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(publicID))
}
