package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.ErrorIs(t, m.Put(ctx, "b", "k", strings.NewReader("x"), 1, "text/plain"), ErrBucketNotFound)
	_, err := m.List(ctx, "b", "")
	require.ErrorIs(t, err, ErrBucketNotFound)
	_, err = m.Get(ctx, "b", "k")
	require.ErrorIs(t, err, ErrBucketNotFound)
	require.NoError(t, m.EnsureBucket(ctx, "b"))
	require.NoError(t, m.EnsureBucket(ctx, "b"))

	require.NoError(t, m.Put(ctx, "b", "AAPL/formatted_prices/b.csv", strings.NewReader("2"), 1, "text/csv"))
	require.NoError(t, m.Put(ctx, "b", "AAPL/formatted_prices/a.csv", strings.NewReader("1"), 1, "text/csv"))
	require.NoError(t, m.Put(ctx, "b", "MSFT/prices.json", strings.NewReader("{}"), 2, "application/json"))

	objs, err := m.List(ctx, "b", "AAPL/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "AAPL/formatted_prices/a.csv", objs[0].Key)

	rc, err := m.Get(ctx, "b", "MSFT/prices.json")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
	assert.Equal(t, "application/json", m.ContentType("b", "MSFT/prices.json"))

	_, err = m.Get(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_OverwriteUpdatesModified(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryStore().WithClock(func() time.Time { return now })
	require.NoError(t, m.EnsureBucket(ctx, "b"))

	require.NoError(t, m.Put(ctx, "b", "k", strings.NewReader("old"), 3, ""))
	now = now.Add(time.Hour)
	require.NoError(t, m.Put(ctx, "b", "k", strings.NewReader("new"), 3, ""))

	objs, err := m.List(ctx, "b", "")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, now, objs[0].LastModified)
	assert.Equal(t, 1, m.Keys("b"))
}
