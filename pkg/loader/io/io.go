package io

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"proteinshake/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// IOFileLoader loads files directly from the local filesystem. When caching
// is enabled, repeated reads of the same path are served from memory.
type IOFileLoader struct {
	useCache bool
	cache    map[string][]byte
	cacheMu  sync.RWMutex
	group    singleflight.Group
}

type NewIOFileLoaderParams struct {
	// Cache keeps every file read in memory. Meant for side tables that
	// several annotators read, not for raw structure files.
	Cache bool
}

// NewIOFileLoader creates a new filesystem-based file loader.
func NewIOFileLoader(params NewIOFileLoaderParams) *IOFileLoader {
	return &IOFileLoader{
		useCache: params.Cache,
		cache:    make(map[string][]byte),
	}
}

// ReadFile reads the file content from the filesystem.
func (l *IOFileLoader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.useCache {
		return readFile(path)
	}

	key := loader.CacheKey(path)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		result, err := readFile(path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// List returns the files in dir matching pattern. Subdirectories are not
// descended into.
func (l *IOFileLoader) List(ctx context.Context, dir string, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", loader.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *IOFileLoader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", loader.ErrNotFound, path)
	}
	return data, err
}
