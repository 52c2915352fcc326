package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/foomo/annotationserver/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func backends(t *testing.T) map[string]func(t *testing.T) storage.Storage {
	t.Helper()
	return map[string]func(t *testing.T) storage.Storage{
		"filesystem": func(t *testing.T) storage.Storage {
			t.Helper()
			s, err := storage.NewFilesystemStorage(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"blob": func(t *testing.T) storage.Storage {
			t.Helper()
			bucket, err := blob.OpenBucket(context.Background(), "mem://")
			require.NoError(t, err)
			return storage.NewBlobStorageFromBucket(bucket, "")
		},
		"blob-prefix": func(t *testing.T) storage.Storage {
			t.Helper()
			bucket, err := blob.OpenBucket(context.Background(), "mem://")
			require.NoError(t, err)
			return storage.NewBlobStorageFromBucket(bucket, "my-prefix")
		},
		"sqlite": func(t *testing.T) storage.Storage {
			t.Helper()
			s, err := storage.NewSQLiteStorage(context.Background(), filepath.Join(t.TempDir(), "db", "annotations.sqlite"))
			require.NoError(t, err)
			return s
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s storage.Storage)) {
	t.Helper()
	for name, newStorage := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStorage(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestStorage_Write(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "test-key", []byte("test-data")))

		data, err := s.Read(ctx, "test-key")
		require.NoError(t, err)
		assert.Equal(t, []byte("test-data"), data)
	})
}

func TestStorage_Write_Overwrite(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "test-key", []byte("original")))
		require.NoError(t, s.Write(ctx, "test-key", []byte("updated")))

		data, err := s.Read(ctx, "test-key")
		require.NoError(t, err)
		assert.Equal(t, []byte("updated"), data)
	})
}

func TestStorage_Read_NotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		_, err := s.Read(context.Background(), "nonexistent-key")
		require.Error(t, err)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestStorage_List(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		for _, key := range []string{"prefix-a", "prefix-b", "prefix-c", "other-key"} {
			require.NoError(t, s.Write(ctx, key, []byte(key)))
		}

		keys, err := s.List(ctx, "prefix-")
		require.NoError(t, err)
		assert.Equal(t, []string{"prefix-c", "prefix-b", "prefix-a"}, keys)
	})
}

func TestStorage_List_Empty(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		keys, err := s.List(context.Background(), "nonexistent-")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestStorage_ConcurrentOperations(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Write(ctx, "concurrent-key", []byte("data"))
				_, _ = s.Read(ctx, "concurrent-key")
				_, _ = s.List(ctx, "concurrent-")
			}()
		}
		wg.Wait()

		data, err := s.Read(ctx, "concurrent-key")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), data)
	})
}

func TestStorage_LargeValue(t *testing.T) {
	eachBackend(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		large := make([]byte, 1024*1024)
		for i := range large {
			large[i] = byte(i % 256)
		}
		require.NoError(t, s.Write(ctx, "large-key", large))

		data, err := s.Read(ctx, "large-key")
		require.NoError(t, err)
		assert.Equal(t, large, data)
	})
}

func TestFilesystemStorage_NoTempFilesListed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFilesystemStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "explanation_cash", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"explanation_cash"}, keys)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "annotations.sqlite")

	s, err := storage.NewSQLiteStorage(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "explanation_cash", []byte(`{"text":"x","image":""}`)))
	require.NoError(t, s.Close())

	s, err = storage.NewSQLiteStorage(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	data, err := s.Read(ctx, "explanation_cash")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"x","image":""}`, string(data))
}

func TestBlobStorage_Prefix(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bucket.Close() })

	require.NoError(t, bucket.WriteAll(ctx, "outside", []byte(`{}`), nil))
	require.NoError(t, bucket.WriteAll(ctx, "notes/nested/deep", []byte(`{}`), nil))

	s := storage.NewBlobStorageFromBucket(bucket, "/notes/")
	require.NoError(t, s.Write(ctx, "explanation_cash", []byte(`{"text":"cash"}`)))

	data, err := bucket.ReadAll(ctx, "notes/explanation_cash")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"cash"}`, string(data))

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"explanation_cash"}, keys)

	_, err = s.Read(ctx, "outside")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
