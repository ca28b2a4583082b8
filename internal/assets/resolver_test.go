package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "opencv"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "opencv", "face.xml"), []byte("<xml/>"), 0644))

	r := NewDirResolver(dir)

	uri := r.ResolvePath("opencv/face.xml")
	require.Equal(t, filepath.Join(dir, "opencv", "face.xml"), uri)

	data, err := r.FetchBytes(context.Background(), uri)
	require.NoError(t, err)
	require.Equal(t, "<xml/>", string(data))
}

func TestDirResolver_Missing(t *testing.T) {
	r := NewDirResolver(t.TempDir())

	_, err := r.FetchBytes(context.Background(), r.ResolvePath("missing.xml"))
	require.ErrorIs(t, err, ErrFetch)
}

func TestDirResolver_Cancelled(t *testing.T) {
	r := NewDirResolver(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.FetchBytes(ctx, r.ResolvePath("any.xml"))
	require.ErrorIs(t, err, ErrFetch)
}
