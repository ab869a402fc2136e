package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{BaseDir: "   "})
	require.Error(t, err)
}

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "pages")
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestNewRejectsFileAsBaseDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := New(Config{BaseDir: file})
	require.Error(t, err)
}

func TestPutAndGetPageRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	url := "https://www.yelp.com/user_details_reviews_self?userid=u1&rec_pagestart=10"
	uri, err := store.PutPage(ctx, url, []byte("<html>page</html>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))
	// The query-escaped key keeps the file directly under the base dir.
	require.NotContains(t, strings.TrimPrefix(uri, "file://"+store.baseDir+"/"), "/")

	body, err := store.GetPage(ctx, url)
	require.NoError(t, err)
	require.Equal(t, []byte("<html>page</html>"), body)
}

func TestGetPageMissing(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetPage(context.Background(), "https://www.yelp.com/user_details?userid=nobody")
	require.Error(t, err)
}
