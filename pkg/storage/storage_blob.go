package storage

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// drivers for the supported bucket url schemes
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobStorage keeps one object per key in a gocloud bucket, optionally below a prefix
type BlobStorage struct {
	bucket *blob.Bucket
	prefix string
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewBlobStorage opens bucketURL, e.g. "gs://annotations", "s3://annotations" or "azblob://annotations"
func NewBlobStorage(ctx context.Context, bucketURL, prefix string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bucket %q", bucketURL)
	}
	return NewBlobStorageFromBucket(bucket, prefix), nil
}

func NewBlobStorageFromBucket(bucket *blob.Bucket, prefix string) *BlobStorage {
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		prefix += "/"
	}
	return &BlobStorage{
		bucket: bucket,
		prefix: prefix,
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (b *BlobStorage) Write(ctx context.Context, key string, data []byte) error {
	err := b.bucket.WriteAll(ctx, b.prefix+key, data, &blob.WriterOptions{
		ContentType: "application/json",
	})
	return errors.Wrapf(err, "failed to write object %q", key)
}

func (b *BlobStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, b.prefix+key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, os.ErrNotExist
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read object %q", key)
	}
	return data, nil
}

// List returns the keys below prefix, nested objects are skipped
func (b *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	iter := b.bucket.List(&blob.ListOptions{
		Prefix:    b.prefix + prefix,
		Delimiter: "/",
	})

	var keys []string
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to list objects %q", prefix)
		}
		if key, ok := strings.CutPrefix(obj.Key, b.prefix); ok && !obj.IsDir {
			keys = append(keys, key)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func (b *BlobStorage) Close() error {
	return b.bucket.Close()
}
