package annotation

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/foomo/annotationserver/pkg/metrics"
	"github.com/foomo/annotationserver/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type (
	// Store reads and writes annotation records in a storage backend
	Store struct {
		l             *zap.Logger
		storage       storage.Storage
		imageMaxBytes int
		concurrency   int
	}
	Option func(*Store)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// WithImageMaxBytes rejects uploads larger than v bytes, 0 disables the limit
func WithImageMaxBytes(v int) Option {
	return func(o *Store) {
		o.imageMaxBytes = v
	}
}

// WithConcurrency limits the number of parallel reads during an export
func WithConcurrency(v int) Option {
	return func(o *Store) {
		o.concurrency = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewStore(l *zap.Logger, s storage.Storage, opts ...Option) *Store {
	inst := &Store{
		l:           l.Named("store"),
		storage:     s,
		concurrency: 8,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Load never fails the caller: whatever goes wrong, the result carries a usable record.
func (s *Store) Load(ctx context.Context, key string) Result {
	res := s.load(ctx, key)
	metrics.LoadCounter.WithLabelValues(string(res.Status)).Inc()
	return res
}

// Save writes text and image for key as one unit, replacing the stored record.
// A new upload wins over the previously displayed image, which wins over no image.
func (s *Store) Save(ctx context.Context, key, text string, upload *Upload, previousImage string) (Record, error) {
	if err := ValidateKey(key); err != nil {
		return Record{}, err
	}

	record := Record{
		Text:  text,
		Image: previousImage,
	}
	if upload != nil {
		if s.imageMaxBytes > 0 && len(upload.Data) > s.imageMaxBytes {
			return Record{}, errors.Wrapf(ErrImageTooLarge, "%d bytes, limit is %d", len(upload.Data), s.imageMaxBytes)
		}
		record.Image = EncodeDataURL(upload)
	}

	data, err := encodeRecord(record)
	if err != nil {
		return Record{}, errors.Wrap(err, "failed to encode record")
	}

	if err := s.storage.Write(ctx, StorageKey(key), data); err != nil {
		return Record{}, errors.Wrapf(err, "failed to write record %q", key)
	}

	s.l.Debug("saved record",
		zap.String("key", key),
		zap.Int("text_length", len(record.Text)),
		zap.Int("image_length", len(record.Image)),
		zap.Bool("new_image", upload != nil),
	)
	if record.HasImage() {
		metrics.SavedImageBytes.WithLabelValues().Observe(float64(len(record.Image)))
	}
	return record, nil
}

// Keys returns the item keys that have a saved record, sorted ascending
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	storageKeys, err := s.storage.List(ctx, KeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	keys := make([]string, 0, len(storageKeys))
	for _, storageKey := range storageKeys {
		keys = append(keys, strings.TrimPrefix(storageKey, KeyPrefix))
	}
	sort.Strings(keys)
	return keys, nil
}

// Export loads every saved record and passes them to fn in key order
func (s *Store) Export(ctx context.Context, fn func(key string, res Result) error) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	results := make([]Result, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = s.Load(gctx, key)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, key := range keys {
		if err := fn(key, results[i]); err != nil {
			return err
		}
	}
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *Store) load(ctx context.Context, key string) Result {
	l := s.l.With(zap.String("key", key))

	if err := ValidateKey(key); err != nil {
		l.Warn("refusing to load record", zap.Error(err))
		return Result{Status: StatusFailed, Err: err}
	}

	data, err := s.storage.Read(ctx, StorageKey(key))
	if errors.Is(err, os.ErrNotExist) {
		return Result{Status: StatusMissing}
	} else if err != nil {
		l.Error("failed to read record", zap.Error(err))
		return Result{Status: StatusFailed, Err: err}
	}

	record, err := decodeRecord(data)
	if err != nil {
		l.Warn("failed to parse stored record", zap.Error(err), zap.Int("length", len(data)))
		return Result{Status: StatusCorrupt, Raw: data, Err: err}
	}
	return Result{Record: record, Status: StatusFound}
}
