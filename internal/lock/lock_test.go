package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.TryAcquire(ctx, "AAPL", "run-1")
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "AAPL", "run-2")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.TryAcquire(ctx, "MSFT", "run-3")
	require.NoError(t, err, "different symbols do not contend")
	other()

	release()
	release()

	again, err := l.TryAcquire(ctx, "AAPL", "run-4")
	require.NoError(t, err)
	again()
}
