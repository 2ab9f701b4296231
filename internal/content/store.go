// Package content handles user uploads and form submissions.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// StoredFile describes a file written to the upload directory.
type StoredFile struct {
	Name   string
	Path   string
	Size   int64
	SHA256 string
}

// Store writes uploads to a single flat directory. Names are sanitized so a
// client-supplied filename can never escape the directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save streams the upload to disk while computing its SHA-256 digest in the
// same pass.
func (s *Store) Save(name string, r io.Reader) (*StoredFile, error) {
	safe := SanitizeFilename(name)
	if safe == "" {
		return nil, fmt.Errorf("empty filename after sanitizing %q", name)
	}

	path := filepath.Join(s.dir, safe)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	return &StoredFile{
		Name:   safe,
		Path:   path,
		Size:   size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// SanitizeFilename strips any directory components and characters outside a
// conservative allowlist. Returns "" when nothing safe remains.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	return out
}
