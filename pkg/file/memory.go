package file

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

// MemoryStorage keeps objects in memory. Used by tests and local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &MemoryStorage{objects: make(map[string]memoryObject), baseURL: baseURL}
}

func (s *MemoryStorage) Put(ctx context.Context, p string, body io.Reader, _ int64, contentType string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidPath)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	s.mu.Unlock()

	return &File{Path: key, Size: int64(len(data)), MIMEType: contentType, URL: s.URL(key)}, nil
}

func (s *MemoryStorage) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seenDirs := make(map[string]bool)
	var entries []Entry
	for key, obj := range s.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" {
			continue
		}
		if name, _, nested := strings.Cut(rest, "/"); nested {
			if !seenDirs[name] {
				seenDirs[name] = true
				entries = append(entries, Entry{Name: name, Path: prefix + name + "/", IsDir: true})
			}
			continue
		}
		entries = append(entries, Entry{Name: rest, Path: key, Size: int64(len(obj.data))})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return entries, nil
}

func (s *MemoryStorage) Remove(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key, err := CleanPath(p)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *MemoryStorage) Exists(_ context.Context, p string) bool {
	key, err := CleanPath(p)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

func (s *MemoryStorage) URL(p string) string {
	return s.baseURL + strings.TrimPrefix(p, "/")
}

// Get returns a copy of the stored object data.
func (s *MemoryStorage) Get(p string) ([]byte, string, bool) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(obj.data), obj.contentType, true
}

// Keys returns every stored path in sorted order.
func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
