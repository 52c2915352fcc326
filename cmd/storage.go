package cmd

import (
	"context"
	"sort"
	"strings"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/storage"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	storageTypeFilesystem = "filesystem"
	storageTypeBlob       = "blob"
	storageTypeSQLite     = "sqlite"
)

// blobProviders maps the supported bucket url schemes to their provider name
var blobProviders = map[string]string{
	"gs":     "Google Cloud Storage",
	"s3":     "AWS S3",
	"azblob": "Azure Blob Storage",
}

// newStore creates the configured storage and the record store on top of it
func newStore(ctx context.Context, v *viper.Viper, l *zap.Logger) (*annotation.Store, storage.Storage, error) {
	s, err := createStorage(ctx, v, l)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create storage")
	}
	return annotation.NewStore(l, s, annotation.WithImageMaxBytes(imageMaxBytesFlag(v))), s, nil
}

func createStorage(ctx context.Context, v *viper.Viper, l *zap.Logger) (storage.Storage, error) {
	storageType := storageTypeFlag(v)
	if storageType == "" {
		storageType = storageTypeFilesystem
	}
	l = l.With(zap.String("storage", storageType))

	if bucket := storageBlobBucketFlag(v); storageType != storageTypeBlob && bucket != "" {
		l.Warn("ignoring blob bucket for non blob storage", zap.String("bucket", bucket))
	}

	switch storageType {
	case storageTypeFilesystem:
		dir := storageDirFlag(v)
		l.Info("opening storage", zap.String("dir", dir))
		return storage.NewFilesystemStorage(dir)
	case storageTypeSQLite:
		path := storageSQLitePathFlag(v)
		l.Info("opening storage", zap.String("path", path))
		return storage.NewSQLiteStorage(ctx, path)
	case storageTypeBlob:
		bucket, prefix := storageBlobBucketFlag(v), storageBlobPrefixFlag(v)
		provider, err := blobProvider(bucket)
		if err != nil {
			return nil, err
		}
		l.Info("opening storage",
			zap.String("bucket", bucket),
			zap.String("prefix", prefix),
			zap.String("provider", provider),
		)
		return storage.NewBlobStorage(ctx, bucket, prefix)
	default:
		return nil, errors.Errorf("unknown storage type %q, use one of %s, %s, %s",
			storageType, storageTypeFilesystem, storageTypeBlob, storageTypeSQLite)
	}
}

// blobProvider returns the provider name for a supported bucket url
func blobProvider(bucketURL string) (string, error) {
	if bucketURL == "" {
		return "", errors.Errorf("missing blob bucket url, use one of %s", blobSchemes())
	}
	scheme, _, ok := strings.Cut(bucketURL, "://")
	if provider, known := blobProviders[scheme]; ok && known {
		return provider, nil
	}
	return "", errors.Errorf("unsupported blob bucket url %q, use one of %s", bucketURL, blobSchemes())
}

func blobSchemes() string {
	schemes := make([]string, 0, len(blobProviders))
	for scheme := range blobProviders {
		schemes = append(schemes, scheme+"://")
	}
	sort.Strings(schemes)
	return strings.Join(schemes, ", ")
}
