// Package local keeps analyzer snapshots on the local filesystem, laid out
// the same way the GCS store lays out objects.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Config configures the snapshot directory.
type Config struct {
	BaseDir string `mapstructure:"base_dir"`
	// Prefix is prepended to every object path, like the GCS object prefix.
	Prefix string `mapstructure:"prefix"`
}

// BlobStore writes snapshots below BaseDir.
type BlobStore struct {
	root   string
	prefix string
}

// New prepares cfg.BaseDir, creating it when missing, and checks that it is
// a writable directory.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	root, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	probe, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}
	return &BlobStore{root: root, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// PutObject writes data under objectPath and returns its file:// URI. When
// objectPath has no extension one is derived from contentType. The file
// appears atomically, so readers never see a partial snapshot.
func (s *BlobStore) PutObject(_ context.Context, objectPath string, contentType string, data io.Reader) (string, error) {
	rel, err := s.objectName(objectPath, contentType)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("move snapshot into place: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(), nil
}

func (s *BlobStore) objectName(objectPath, contentType string) (string, error) {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return "", errors.New("path is required")
	}
	rel := path.Clean(path.Join(s.prefix, strings.TrimPrefix(objectPath, "/")))
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("path %q escapes the snapshot directory", objectPath)
	}
	if path.Ext(rel) == "" {
		rel += extensionFor(contentType)
	}
	return rel, nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if mediaType == "text/html" {
		return ".html"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
