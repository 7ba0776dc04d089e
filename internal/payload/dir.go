package payload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirGetter serves payload blobs from a local directory laid out as
// <root>/<bucket>/<key>. It backs local development without an object store.
type DirGetter struct {
	root string
}

// NewDirGetter serves objects below root.
func NewDirGetter(root string) *DirGetter {
	return &DirGetter{root: root}
}

// GetObject implements ObjectGetter.
func (g *DirGetter) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := g.path(bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (g *DirGetter) path(bucket, key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(g.root, bucket, clean), nil
}
