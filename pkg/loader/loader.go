package loader

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by loaders when the requested file does not exist.
var ErrNotFound = errors.New("file not found")

// FileLoader defines how raw structure files and side tables are read.
// Implementations may load files from disk, cloud storage, or other sources.
type FileLoader interface {
	// ReadFile returns the raw bytes stored at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// List returns the paths below dir whose base name matches pattern
	// (path.Match syntax), sorted lexically.
	List(ctx context.Context, dir string, pattern string) ([]string, error)
	// Exists reports whether path can be read.
	Exists(ctx context.Context, path string) (bool, error)
}

// File pairs a path with the loader that can read it.
type File struct {
	ID     string
	Path   string
	Loader FileLoader
}

// Read returns the content of the file, transparently decompressing gzip.
func (f File) Read(ctx context.Context) ([]byte, error) {
	data, err := f.Loader.ReadFile(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	return Decompress(data)
}

// Decompress returns data unchanged unless it starts with the gzip magic
// bytes, in which case the decompressed content is returned.
func Decompress(data []byte) ([]byte, error) {
	if !IsGzip(data) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// BaseID strips directories and every extension from p, so that
// "raw/1ABC.pdb.gz" becomes "1ABC".
func BaseID(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// CacheKey returns the key loaders use to memoize reads of p.
func CacheKey(p string) string {
	return path.Clean(p)
}
