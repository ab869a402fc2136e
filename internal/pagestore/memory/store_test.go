package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndGetPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	url := "https://www.yelp.com/user_details?userid=u1"
	uri, err := store.PutPage(ctx, url, []byte("<html>hi</html>"))
	require.NoError(t, err)
	require.Contains(t, uri, "memory://")

	body, err := store.GetPage(ctx, url)
	require.NoError(t, err)
	require.Equal(t, []byte("<html>hi</html>"), body)
	require.Equal(t, 1, store.Len())
}

func TestPutPageOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	url := "https://www.yelp.com/user_details?userid=u1"
	_, err := store.PutPage(ctx, url, []byte("v1"))
	require.NoError(t, err)
	_, err = store.PutPage(ctx, url, []byte("v2"))
	require.NoError(t, err)

	body, err := store.GetPage(ctx, url)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), body)
	require.Equal(t, 1, store.Len())
}

func TestGetPageMissing(t *testing.T) {
	t.Parallel()
	store := New()
	_, err := store.GetPage(context.Background(), "https://www.yelp.com/user_details?userid=nobody")
	require.Error(t, err)
}

func TestGetPageReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	url := "https://www.yelp.com/user_details?userid=u1"
	_, err := store.PutPage(ctx, url, []byte("abc"))
	require.NoError(t, err)

	body, err := store.GetPage(ctx, url)
	require.NoError(t, err)
	body[0] = 'x'

	again, err := store.GetPage(ctx, url)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}
