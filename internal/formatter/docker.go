package formatter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"StockFlow/internal/config"
	"StockFlow/internal/model"
)

// ArgsEnv carries the locator into the formatter container.
const ArgsEnv = "SPARK_APPLICATION_ARGS"

// containerAPI is the part of the Docker Engine client the runner drives.
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerRunner launches the formatter image once per run and waits for it to exit.
type DockerRunner struct {
	API         containerAPI
	Image       string
	NetworkMode string
	Timeout     time.Duration
	Log         zerolog.Logger
}

// NewDockerRunner connects to the Docker Engine at cfg.DockerURL (or the environment's DOCKER_HOST).
func NewDockerRunner(cfg config.FormatterConfig, log zerolog.Logger) (*DockerRunner, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerURL != "" {
		opts = append(opts, client.WithHost(cfg.DockerURL))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerRunner{
		API:         cli,
		Image:       cfg.Image,
		NetworkMode: cfg.NetworkMode,
		Timeout:     cfg.Timeout,
		Log:         log,
	}, nil
}

func (r *DockerRunner) Name() string { return "docker:" + r.Image }

func (r *DockerRunner) Format(ctx context.Context, loc model.StorageLocator) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	name := fmt.Sprintf("format_prices_%s_%s", strings.ToLower(string(loc.Symbol)), uuid.NewString()[:8])
	created, err := r.API.ContainerCreate(ctx,
		&container.Config{
			Image: r.Image,
			Env:   []string{ArgsEnv + "=" + loc.String()},
			Tty:   true,
		},
		&container.HostConfig{NetworkMode: container.NetworkMode(r.NetworkMode)},
		nil, nil, name)
	if err != nil {
		return fmt.Errorf("%w: create container: %w", ErrFormatJob, err)
	}
	log := r.Log.With().Str("symbol", string(loc.Symbol)).Str("container", name).Logger()
	defer func() {
		// Removal must outlive a canceled run context.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.API.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warn().Err(err).Msg("remove formatter container")
		}
	}()

	if err := r.API.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start container: %w", ErrFormatJob, err)
	}
	log.Info().Str("image", r.Image).Msg("formatter started")

	statusCh, errCh := r.API.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("%w: wait container: %w", ErrFormatJob, err)
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrFormatJob, st.Error.Message)
		}
		if st.StatusCode != 0 {
			return fmt.Errorf("%w: exit code %d: %s", ErrFormatJob, st.StatusCode, r.tail(created.ID))
		}
	}
	log.Info().Msg("formatter finished")
	return nil
}

// tail returns the last lines of container output for error reports.
func (r *DockerRunner) tail(id string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rc, err := r.API.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: "20"})
	if err != nil {
		return "(no logs)"
	}
	defer rc.Close()
	b, _ := io.ReadAll(io.LimitReader(rc, 4096))
	return strings.TrimSpace(string(b))
}
