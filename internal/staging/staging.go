// Package staging writes raw price records into object storage and finds the
// formatter's output for the warehouse load.
package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"StockFlow/internal/model"
	"StockFlow/internal/objectstore"
)

var (
	// ErrMalformedRecord is returned when a record has no meta.symbol.
	ErrMalformedRecord = errors.New("malformed price record")
	// ErrStorage wraps object storage failures.
	ErrStorage = errors.New("storage error")
)

const (
	jsonContentType = "application/json"
	csvSuffix       = ".csv"
)

// RawStore persists raw price records, one object per symbol.
type RawStore struct {
	Objects objectstore.Store
	Bucket  string
	Log     zerolog.Logger
}

// NewRawStore creates a RawStore writing into bucket.
func NewRawStore(store objectstore.Store, bucket string, log zerolog.Logger) *RawStore {
	return &RawStore{Objects: store, Bucket: bucket, Log: log}
}

// Store writes record verbatim to <symbol>/prices.json and returns the symbol's locator.
// Re-storing the same symbol overwrites the same key.
func (s *RawStore) Store(ctx context.Context, record model.RawPriceRecord) (model.StorageLocator, error) {
	symbol, err := record.Symbol()
	if err != nil {
		return model.StorageLocator{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if err := s.Objects.EnsureBucket(ctx, s.Bucket); err != nil {
		return model.StorageLocator{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	loc := model.StorageLocator{Bucket: s.Bucket, Symbol: symbol}
	if err := s.Objects.Put(ctx, s.Bucket, loc.RawKey(), bytes.NewReader(record), int64(len(record)), jsonContentType); err != nil {
		return model.StorageLocator{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.Log.Info().Str("symbol", string(symbol)).Str("key", loc.RawKey()).Int("bytes", len(record)).Msg("stored raw prices")
	return loc, nil
}

// Locator finds formatted CSV output for a symbol.
type Locator struct {
	Objects objectstore.Store
	Log     zerolog.Logger
}

// NewLocator creates a Locator.
func NewLocator(store objectstore.Store, log zerolog.Logger) *Locator {
	return &Locator{Objects: store, Log: log}
}

// Locate lists <symbol>/formatted_prices/ and returns the newest CSV, ties going to the
// smallest key. found is false when the formatter has produced nothing yet.
func (l *Locator) Locate(ctx context.Context, loc model.StorageLocator) (file model.FormattedFile, found bool, err error) {
	objs, err := l.Objects.List(ctx, loc.Bucket, loc.FormattedPrefix())
	if errors.Is(err, objectstore.ErrBucketNotFound) {
		l.Log.Warn().Str("bucket", loc.Bucket).Msg("bucket does not exist yet")
		return model.FormattedFile{}, false, nil
	}
	if err != nil {
		return model.FormattedFile{}, false, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	var csvs []objectstore.ObjectInfo
	for _, o := range objs {
		if strings.HasSuffix(o.Key, csvSuffix) {
			csvs = append(csvs, o)
		}
	}
	if len(csvs) == 0 {
		l.Log.Warn().Str("symbol", string(loc.Symbol)).Str("prefix", loc.FormattedPrefix()).Msg("no formatted csv found")
		return model.FormattedFile{}, false, nil
	}

	sort.SliceStable(csvs, func(i, j int) bool {
		if !csvs[i].LastModified.Equal(csvs[j].LastModified) {
			return csvs[i].LastModified.After(csvs[j].LastModified)
		}
		return csvs[i].Key < csvs[j].Key
	})
	if len(csvs) > 1 {
		l.Log.Warn().Str("symbol", string(loc.Symbol)).Int("candidates", len(csvs)).
			Str("selected", csvs[0].Key).Msg("multiple formatted csv files, using newest")
	}
	return model.FormattedFile{Bucket: loc.Bucket, Key: csvs[0].Key}, true, nil
}
