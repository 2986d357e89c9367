// Package blob resolves the data directory holding the CSV files. The data
// directory is either a local path or an object-store prefix (s3://bucket/prefix),
// and files may be compressed (.gz, .zst, .lz4).
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a data file does not exist.
var ErrNotFound = os.ErrNotExist

// Store opens data files for reading and creates them for writing.
type Store interface {
	// Open returns a decompressed stream of the named file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create returns a compressing writer for the named file. The file is
	// complete only after Close returns nil.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// Location renders name for logs.
	Location(name string) string
}

// Dir is a local data directory.
type Dir string

// Open opens a file under the directory.
func (d Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(string(d), name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Location(name), err)
	}
	return Decompress(name, f)
}

// Create creates (or truncates) a file under the directory, creating the
// directory when missing.
func (d Dir) Create(_ context.Context, name string) (io.WriteCloser, error) {
	if err := os.MkdirAll(string(d), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", string(d), err)
	}
	f, err := os.Create(filepath.Join(string(d), name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", d.Location(name), err)
	}
	return Compress(name, f)
}

func (d Dir) Location(name string) string {
	return filepath.Join(string(d), name)
}

// ObjectStoreConfig holds the credentials for an S3 compatible data directory.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Open resolves a data directory string. "s3://bucket/prefix" selects the
// object store, anything else is a local path.
func Open(dataDir string, cfg ObjectStoreConfig) (Store, error) {
	rest, ok := strings.CutPrefix(dataDir, "s3://")
	if !ok {
		return Dir(dataDir), nil
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("data dir %q: bucket name is required", dataDir)
	}
	return NewObjectStore(cfg, bucket, prefix)
}
