// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gocloud.dev/blob"
	"gopkg.in/yaml.v3"
)

// ManifestPath is where discovery saves the manifest for pageURL.
func ManifestPath(outputDir, pageURL string) string {
	return filepath.Join(outputDir, RepoName(pageURL)+".json")
}

// ManifestStore saves and loads manifests on a filesystem.
type ManifestStore struct {
	fs afero.Fs
}

// NewManifestStore returns a store backed by fs, or by the OS filesystem
// when fs is nil.
func NewManifestStore(fs afero.Fs) *ManifestStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ManifestStore{fs: fs}
}

// Save writes m to p, creating parent directories. The file is written to a
// temporary name first and renamed into place.
func (s *ManifestStore) Save(p string, m Manifest) error {
	data, err := encodeManifest(p, m)
	if err != nil {
		return &ManifestError{Op: "save", Path: p, Err: err}
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &ManifestError{Op: "save", Path: p, Err: err}
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return &ManifestError{Op: "save", Path: p, Err: err}
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return &ManifestError{Op: "save", Path: p, Err: err}
	}
	return nil
}

// Load reads the manifest at p. A missing, unreadable or malformed file is
// reported as a *ManifestError.
func (s *ManifestStore) Load(p string) (Manifest, error) {
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, &ManifestError{Op: "load", Path: p, Err: err}
	}
	m, err := decodeManifest(p, data)
	if err != nil {
		return nil, &ManifestError{Op: "load", Path: p, Err: err}
	}
	return m, nil
}

// SaveManifest writes m to p on the OS filesystem.
func SaveManifest(p string, m Manifest) error {
	return NewManifestStore(nil).Save(p, m)
}

// LoadManifest reads a manifest from the OS filesystem.
func LoadManifest(p string) (Manifest, error) {
	return NewManifestStore(nil).Load(p)
}

// OpenManifest loads a manifest from a local path or, when location carries a
// URL scheme (file://, s3://, gs://), from a blob bucket. The bucket
// drivers must be linked in by the caller.
func OpenManifest(ctx context.Context, location string) (Manifest, error) {
	if !IsBucketURL(location) {
		return LoadManifest(location)
	}
	bucketURL, key, err := splitBucketURL(location)
	if err != nil {
		return nil, &ManifestError{Op: "load", Path: location, Err: err}
	}
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, &ManifestError{Op: "load", Path: location, Err: err}
	}
	defer b.Close()
	return LoadBucketManifest(ctx, b, key)
}

// LoadBucketManifest reads the manifest stored under key in b.
func LoadBucketManifest(ctx context.Context, b *blob.Bucket, key string) (Manifest, error) {
	data, err := b.ReadAll(ctx, key)
	if err != nil {
		return nil, &ManifestError{Op: "load", Path: key, Err: err}
	}
	m, err := decodeManifest(key, data)
	if err != nil {
		return nil, &ManifestError{Op: "load", Path: key, Err: err}
	}
	return m, nil
}

// SaveBucketManifest writes m under key in b.
func SaveBucketManifest(ctx context.Context, b *blob.Bucket, key string, m Manifest) error {
	data, err := encodeManifest(key, m)
	if err != nil {
		return &ManifestError{Op: "save", Path: key, Err: err}
	}
	opts := &blob.WriterOptions{ContentType: contentType(key)}
	if err := b.WriteAll(ctx, key, data, opts); err != nil {
		return &ManifestError{Op: "save", Path: key, Err: err}
	}
	return nil
}

// IsBucketURL reports whether location names a blob bucket object rather
// than a local path.
func IsBucketURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	// Single-letter schemes are Windows drive letters.
	return len(u.Scheme) > 1 && strings.Contains(location, "://")
}

// splitBucketURL separates "s3://bucket/dir/m.json?region=x" into the bucket
// URL "s3://bucket?region=x" and the key "dir/m.json". For file:// the
// directory becomes the bucket.
func splitBucketURL(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "file" {
		dir, key := path.Split(u.Path)
		if key == "" {
			return "", "", errors.New("missing object name")
		}
		u.Path = dir
		return u.String(), key, nil
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", errors.New("missing object key")
	}
	u.Path = ""
	u.RawPath = ""
	return u.String(), key, nil
}

func isYAML(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func contentType(p string) string {
	if isYAML(p) {
		return "application/yaml"
	}
	return "application/json; charset=utf-8"
}

func encodeManifest(p string, m Manifest) ([]byte, error) {
	if m == nil {
		m = Manifest{}
	}
	if isYAML(p) {
		return yaml.Marshal(m)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeManifest(p string, data []byte) (Manifest, error) {
	var m Manifest
	if isYAML(p) {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid YAML manifest: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid JSON manifest: %w", err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that every entry has a name and a URL, that names stay
// inside the output directory and that no name appears twice.
func (m Manifest) Validate() error {
	seen := make(map[string]int, len(m))
	for i, e := range m {
		switch {
		case e.Name == "":
			return fmt.Errorf("entry %d: missing name", i)
		case e.URL == "":
			return fmt.Errorf("entry %d (%s): missing url", i, e.Name)
		case !filepath.IsLocal(e.Name):
			return fmt.Errorf("entry %d: unsafe name %q", i, e.Name)
		}
		key := filepath.Clean(e.Name)
		if first, dup := seen[key]; dup {
			return fmt.Errorf("entry %d: name %q already used by entry %d", i, e.Name, first)
		}
		seen[key] = i
	}
	return nil
}
