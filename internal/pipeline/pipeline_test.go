package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockFlow/internal/collector"
	"StockFlow/internal/config"
	"StockFlow/internal/formatter"
	"StockFlow/internal/lock"
	"StockFlow/internal/model"
	"StockFlow/internal/objectstore"
	"StockFlow/internal/staging"
	"StockFlow/internal/warehouse"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"AAPL"},
"timestamp":[1704205800,1704292200],
"indicators":{"quote":[{"open":[187.15,184.22],"high":[188.44,185.88],"low":[183.89,183.43],
"close":[185.64,184.25],"volume":[82488700,58414500]}]}}],"error":null}}`

// countingLoader counts data lines of the formatted file instead of talking to a database.
type countingLoader struct {
	store objectstore.Store
	file  model.FormattedFile
	err   error
}

func (c *countingLoader) Load(ctx context.Context, file model.FormattedFile) (int64, error) {
	if c.err != nil {
		return 0, fmt.Errorf("%w: %w", warehouse.ErrLoad, c.err)
	}
	c.file = file
	rc, err := c.store.Get(ctx, file.Bucket, file.Key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	var n int64
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		n++
	}
	return n - 1, sc.Err()
}

type noopFormatter struct{ calls int32 }

func (f *noopFormatter) Name() string { return "noop" }

func (f *noopFormatter) Format(context.Context, model.StorageLocator) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func newAPI(t *testing.T, status string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/chart") {
			w.Write([]byte(status))
			return
		}
		w.Write([]byte(chartBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPipeline(t *testing.T, status string) (*Pipeline, *objectstore.MemoryStore, *countingLoader) {
	t.Helper()
	srv := newAPI(t, status)
	mem := objectstore.NewMemoryStore()
	client := collector.NewClient(config.APIConfig{Timeout: 5 * time.Second}, zerolog.Nop())
	loader := &countingLoader{store: mem}
	return &Pipeline{
		Name:      "stock_market",
		Gate:      collector.NewGate(client, srv.URL+"/v8/finance/chart", 10*time.Millisecond, 100*time.Millisecond),
		Fetcher:   collector.NewFetcher(client),
		Raw:       staging.NewRawStore(mem, "stock-market", zerolog.Nop()),
		Formatter: formatter.NewLocalRunner(mem, zerolog.Nop()),
		Locator:   staging.NewLocator(mem, zerolog.Nop()),
		Loader:    loader,
		Locker:    lock.NewLocalLocker(),
		Log:       zerolog.Nop(),
	}, mem, loader
}

func TestRun_EndToEnd(t *testing.T) {
	p, mem, loader := newPipeline(t, `{"finance":{"result":null}}`)

	res := p.Run(context.Background(), "AAPL")
	require.NoError(t, res.Err)
	assert.Equal(t, model.StatusSucceeded, res.Status())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(2), res.RowsLoaded)
	assert.Equal(t, "AAPL/formatted_prices/part-00000.csv", loader.file.Key)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 184.25, res.Summary.LastClose)
	assert.Equal(t, 188.44, res.Summary.High52w)

	require.Len(t, res.Stages, len(Stages))
	for i, s := range res.Stages {
		assert.Equal(t, string(Stages[i]), s.Stage)
		assert.Equal(t, model.StatusSucceeded, s.Status)
	}
	assert.Equal(t, "stock-market/AAPL", res.Stages[2].Detail)

	rc, err := mem.Get(context.Background(), "stock-market", "AAPL/prices.json")
	require.NoError(t, err)
	rc.Close()
}

func TestRun_StagesHandOffTypedValues(t *testing.T) {
	p, _, _ := newPipeline(t, `{"finance":{"result":null}}`)
	ctx := context.Background()

	url, err := p.CheckAvailability(ctx)
	require.NoError(t, err)
	rec, err := p.FetchPrices(ctx, url, "AAPL")
	require.NoError(t, err)
	sym, err := rec.Symbol()
	require.NoError(t, err)
	assert.Equal(t, model.Symbol("AAPL"), sym)

	loc, err := p.StorePrices(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "stock-market/AAPL", loc.String())

	_, err = p.LocateFormatted(ctx, loc)
	assert.Equal(t, KindLookupMiss, KindOf(err), "formatter has not run yet")

	require.NoError(t, p.FormatPrices(ctx, loc))
	file, err := p.LocateFormatted(ctx, loc)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Key, ".csv"))
}

func TestRun_AvailabilityTimeout(t *testing.T) {
	p, mem, _ := newPipeline(t, `{"finance":{"result":{}}}`)

	res := p.Run(context.Background(), "AAPL")
	require.Error(t, res.Err)
	assert.Equal(t, KindAvailabilityTimeout, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, collector.ErrAvailabilityTimeout)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, model.StatusFailed, res.Stages[0].Status)
	assert.Zero(t, mem.Keys("stock-market"))
}

func TestRun_LookupMiss(t *testing.T) {
	p, _, loader := newPipeline(t, `{"finance":{"result":null}}`)
	p.Formatter = &noopFormatter{}

	res := p.Run(context.Background(), "AAPL")
	assert.Equal(t, KindLookupMiss, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, ErrNoFormattedFile)
	assert.Empty(t, loader.file.Key, "loader must not run")
	assert.Len(t, res.Stages, 5)
}

func TestRun_LoadErrorSurfaces(t *testing.T) {
	p, _, loader := newPipeline(t, `{"finance":{"result":null}}`)
	loader.err = errors.New("copy failed")

	res := p.Run(context.Background(), "AAPL")
	assert.Equal(t, KindLoad, KindOf(res.Err))
	var se *StageError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, StageLoad, se.Stage)
}

type flakyFormatter struct {
	fails int32
	calls int32
}

func (f *flakyFormatter) Name() string { return "flaky" }

func (f *flakyFormatter) Format(context.Context, model.StorageLocator) error {
	if atomic.AddInt32(&f.calls, 1) <= f.fails {
		return fmt.Errorf("%w: exit code 1", formatter.ErrFormatJob)
	}
	return nil
}

func TestRun_RetriesWholeStage(t *testing.T) {
	p, _, _ := newPipeline(t, `{"finance":{"result":null}}`)
	flaky := &flakyFormatter{fails: 2}
	p.Formatter = flaky
	p.Retry = RetryPolicy{Attempts: 3, Delay: time.Millisecond}

	res := p.Run(context.Background(), "AAPL")
	// The flaky formatter writes nothing, so the run proceeds to a lookup-miss.
	assert.Equal(t, KindLookupMiss, KindOf(res.Err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.calls))
	assert.Equal(t, 3, res.Stages[3].Attempts)
	assert.Equal(t, model.StatusSucceeded, res.Stages[3].Status)
}

func TestRun_SkipsRetryForMalformedResponse(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/chart") {
			w.Write([]byte(`{"finance":{"result":null}}`))
			return
		}
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(`{"chart":{"result":[]}}`))
	}))
	defer srv.Close()

	p, _, _ := newPipeline(t, "")
	client := collector.NewClient(config.APIConfig{Timeout: time.Second}, zerolog.Nop())
	p.Gate = collector.NewGate(client, srv.URL+"/v8/finance/chart", 10*time.Millisecond, time.Second)
	p.Fetcher = collector.NewFetcher(client)
	p.Retry = RetryPolicy{Attempts: 3}

	res := p.Run(context.Background(), "AAPL")
	assert.Equal(t, KindFetch, KindOf(res.Err))
	assert.ErrorIs(t, res.Err, collector.ErrMalformedResponse)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestRun_RejectsConcurrentRunForSameSymbol(t *testing.T) {
	p, _, _ := newPipeline(t, `{"finance":{"result":null}}`)
	release, err := p.Locker.TryAcquire(context.Background(), "AAPL", "other-run")
	require.NoError(t, err)
	defer release()

	res := p.Run(context.Background(), "AAPL")
	assert.ErrorIs(t, res.Err, ErrRunInProgress)
	assert.Equal(t, KindInProgress, KindOf(res.Err))
	assert.Empty(t, res.Stages)
	assert.False(t, Retryable(res.Err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stage Stage
		err   error
		want  Kind
	}{
		{StageFetch, fmt.Errorf("%w: boom", collector.ErrFetch), KindFetch},
		{StageStore, fmt.Errorf("%w: x", staging.ErrMalformedRecord), KindFetch},
		{StageStore, fmt.Errorf("%w: x", staging.ErrStorage), KindStorage},
		{StageLocate, fmt.Errorf("%w: x", staging.ErrStorage), KindStorage},
		{StageFormat, errors.New("docker down"), KindFormat},
		{StageLoad, context.Canceled, KindCanceled},
		{StageLoad, errors.New("pq: relation"), KindLoad},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.stage, tt.err), "%s: %v", tt.stage, tt.err)
	}
	assert.Equal(t, "lookup_miss", KindLookupMiss.String())
}
