package file

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

// File describes a stored object.
type File struct {
	Path     string
	Size     int64
	MIMEType string
	URL      string
}

// Entry is one item of a directory listing.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// Storage is a flat object store addressed by slash-separated paths.
type Storage interface {
	// Put writes body to path, replacing any existing object. size may be -1
	// when unknown.
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (*File, error)
	// List returns the direct children of dir. A missing dir yields an empty list.
	List(ctx context.Context, dir string) ([]Entry, error)
	// Remove deletes the given objects. Missing objects are not an error.
	Remove(ctx context.Context, paths ...string) error
	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) bool
	// URL returns the public URL for path.
	URL(path string) string
}

// CleanPath normalizes an object path and rejects traversal attempts.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
		}
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	return p, nil
}

// cleanDir is CleanPath for prefixes: the result is empty or ends with "/".
func cleanDir(dir string) (string, error) {
	dir, err := CleanPath(dir)
	if err != nil {
		return "", err
	}
	if dir != "" {
		dir += "/"
	}
	return dir, nil
}

// SanitizeFilename strips path components and NUL bytes from a filename.
// Returns "unnamed" when nothing usable remains.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(filename)
	filename = strings.ReplaceAll(filename, "\x00", "")

	if filename == "." || filename == ".." || filename == "" || filename == "/" {
		return "unnamed"
	}
	return filename
}

// DetectMIMEType sniffs the content type from the first bytes of data.
func DetectMIMEType(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// Extension returns the extension of filename without the dot, lowercased.
func Extension(filename string) string {
	ext := path.Ext(SanitizeFilename(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
