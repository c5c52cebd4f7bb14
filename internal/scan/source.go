package scan

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// DefaultCacheSize bounds the number of file bodies kept in memory.
const DefaultCacheSize = 1024

// Source reads file contents through a bounded LRU cache so the classifier
// and prioritizer share one read per file.
type Source struct {
	fs    afero.Fs
	cache *lru.Cache[string, []byte]
}

// NewSource returns a Source over fs. size <= 0 uses DefaultCacheSize.
func NewSource(fs afero.Fs, size int) (*Source, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("scan: create content cache: %w", err)
	}
	return &Source{fs: fs, cache: cache}, nil
}

// Fs returns the underlying filesystem.
func (s *Source) Fs() afero.Fs { return s.fs }

// Read returns the contents of path, from cache when possible.
func (s *Source) Read(path string) ([]byte, error) {
	if data, ok := s.cache.Get(path); ok {
		return data, nil
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(path, data)
	return data, nil
}

// Invalidate drops path from the cache. Call after the file changes on disk.
func (s *Source) Invalidate(path string) {
	s.cache.Remove(path)
}
