// Package assets resolves logical asset names to URIs and fetches their bytes.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrFetch is returned when an asset cannot be retrieved.
var ErrFetch = errors.New("asset fetch failed")

// Resolver maps asset names to URIs and retrieves their contents.
type Resolver interface {
	ResolvePath(name string) string
	FetchBytes(ctx context.Context, uri string) ([]byte, error)
}

// DirResolver serves assets from a local directory.
type DirResolver struct {
	root string
}

// NewDirResolver creates a resolver rooted at dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{root: dir}
}

// ResolvePath joins name onto the root directory.
func (r *DirResolver) ResolvePath(name string) string {
	return filepath.Join(r.root, filepath.FromSlash(name))
}

// FetchBytes reads the file at uri.
func (r *DirResolver) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}
