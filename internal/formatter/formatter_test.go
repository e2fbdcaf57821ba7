package formatter

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockFlow/internal/model"
	"StockFlow/internal/objectstore"
)

const record = `{"meta":{"symbol":"AAPL"},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{
 "open":[187.15,null,182.15],
 "high":[188.44,null,183.09],
 "low":[183.89,null,180.88],
 "close":[185.64,null,181.91],
 "volume":[82488700,null,null]}]}}`

var aapl = model.StorageLocator{Bucket: "stock-market", Symbol: "AAPL"}

func TestLocalRunner_Format(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	require.NoError(t, mem.EnsureBucket(ctx, aapl.Bucket))
	require.NoError(t, mem.Put(ctx, aapl.Bucket, aapl.RawKey(), strings.NewReader(record), int64(len(record)), "application/json"))

	r := NewLocalRunner(mem, zerolog.Nop())
	require.NoError(t, r.Format(ctx, aapl))
	require.NoError(t, r.Format(ctx, aapl), "re-running replaces the output")

	objs, err := mem.List(ctx, aapl.Bucket, aapl.FormattedPrefix())
	require.NoError(t, err)
	require.Len(t, objs, 1)

	rc, err := mem.Get(ctx, aapl.Bucket, objs[0].Key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	assert.Equal(t,
		"timestamp,close,high,low,open,volume,date\n"+
			"1704205800,185.64,188.44,183.89,187.15,82488700,2024-01-02\n"+
			"1704378600,181.91,183.09,180.88,182.15,,2024-01-04\n",
		string(body))
}

func TestLocalRunner_MissingRaw(t *testing.T) {
	mem := objectstore.NewMemoryStore()
	require.NoError(t, mem.EnsureBucket(context.Background(), aapl.Bucket))
	err := NewLocalRunner(mem, zerolog.Nop()).Format(context.Background(), aapl)
	assert.ErrorIs(t, err, ErrFormatJob)
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

type fakeDocker struct {
	cfg      *container.Config
	host     *container.HostConfig
	exitCode int64
	waitErr  error
	started  bool
	removed  bool
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.cfg, f.host = cfg, host
	return container.CreateResponse{ID: "c1"}, nil
}

func (f *fakeDocker) ContainerStart(context.Context, string, container.StartOptions) error {
	f.started = true
	return nil
}

func (f *fakeDocker) ContainerWait(context.Context, string, container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.waitErr != nil {
		errCh <- f.waitErr
	} else {
		statusCh <- container.WaitResponse{StatusCode: f.exitCode}
	}
	return statusCh, errCh
}

func (f *fakeDocker) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("py4j error\n")), nil
}

func (f *fakeDocker) ContainerRemove(context.Context, string, container.RemoveOptions) error {
	f.removed = true
	return nil
}

func TestDockerRunner_Format(t *testing.T) {
	fake := &fakeDocker{}
	r := &DockerRunner{API: fake, Image: "spark-app", NetworkMode: "container:spark-master", Log: zerolog.Nop()}

	require.NoError(t, r.Format(context.Background(), aapl))
	assert.Equal(t, "spark-app", fake.cfg.Image)
	assert.Contains(t, fake.cfg.Env, "SPARK_APPLICATION_ARGS=stock-market/AAPL")
	assert.Equal(t, container.NetworkMode("container:spark-master"), fake.host.NetworkMode)
	assert.True(t, fake.started)
	assert.True(t, fake.removed)
}

func TestDockerRunner_Failures(t *testing.T) {
	fake := &fakeDocker{exitCode: 1}
	r := &DockerRunner{API: fake, Image: "spark-app", Log: zerolog.Nop()}
	err := r.Format(context.Background(), aapl)
	assert.ErrorIs(t, err, ErrFormatJob)
	assert.ErrorContains(t, err, "py4j error")
	assert.True(t, fake.removed)

	fake = &fakeDocker{waitErr: errors.New("daemon gone")}
	r.API = fake
	err = r.Format(context.Background(), aapl)
	assert.ErrorIs(t, err, ErrFormatJob)
	assert.True(t, fake.removed)
}
