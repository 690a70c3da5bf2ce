package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s ObjectStorage, prefix string) {
	ctx := context.Background()

	require.NoError(t, s.PutObject(ctx, prefix+"/a.json.gz", []byte("one"), "application/gzip"))
	require.NoError(t, s.PutObject(ctx, prefix+"/b.json.gz", []byte("three"), "application/gzip"))

	data, err := s.GetObject(ctx, prefix+"/a.json.gz")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	require.NoError(t, s.PutObject(ctx, prefix+"/b.json.gz", []byte("two"), "application/gzip"))
	data, err = s.GetObject(ctx, prefix+"/b.json.gz")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data, "put replaces an existing object")

	require.NoError(t, s.DeleteObject(ctx, prefix+"/a.json.gz"))
	_, err = s.GetObject(ctx, prefix+"/a.json.gz")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, s.DeleteObject(ctx, prefix+"/b.json.gz"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage(), "analyses/u1")
}

func TestMemoryStorageCopiesData(t *testing.T) {
	s := NewMemoryStorage()
	buf := []byte("abc")
	require.NoError(t, s.PutObject(context.Background(), "k", buf, ""))
	buf[0] = 'x'

	data, err := s.GetObject(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestNewMinioClientValidation(t *testing.T) {
	_, err := NewMinioClient(MinioConfig{})
	assert.Error(t, err)

	_, err = NewMinioClient(MinioConfig{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)

	c, err := NewMinioClient(MinioConfig{
		Endpoint:  "https://s3.example.com/",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "docs",
		Prefix:    "/stockcast/",
	})
	require.NoError(t, err)
	assert.Equal(t, "stockcast/x", c.objectName("x"))
}

// Runs against a real server when STORAGE_TEST_ENDPOINT is set.
func TestMinioClientIntegration(t *testing.T) {
	endpoint := os.Getenv("STORAGE_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("STORAGE_TEST_ENDPOINT not set")
	}
	c, err := NewMinioClient(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("STORAGE_TEST_ACCESS_KEY"),
		SecretKey: os.Getenv("STORAGE_TEST_SECRET_KEY"),
		Bucket:    "stockcast-test",
	})
	require.NoError(t, err)
	require.NoError(t, c.EnsureBucket(context.Background()))

	exerciseStorage(t, c, "it-"+uuid.NewString())
}
