// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// fastConfig keeps test runs quick.
func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, fastConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return cgerrors.New(cgerrors.CodeConnection, "store down")
		}
		return nil
	}, fastConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoPropagatesFatalImmediately(t *testing.T) {
	calls := 0
	fatal := cgerrors.New(cgerrors.CodeValidation, "bad label")
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	}, fastConfig())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))
}

func TestDoExhaustsRetriesAndReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cgerrors.Newf(cgerrors.CodeTimeout, "attempt %d", calls)
	}, fastConfig())
	require.Error(t, err)
	// Initial attempt + MaxRetries.
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "attempt 4")
}

func TestDoCustomPredicate(t *testing.T) {
	sentinel := errors.New("try me")
	calls := 0
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour // Force a wait so cancel wins.
	cfg.MaxDelay = time.Hour
	cfg.Jitter = false

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, func(ctx context.Context) error {
			calls++
			return cgerrors.New(cgerrors.CodeConnection, "down")
		}, cfg)
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, cgerrors.New(cgerrors.CodeConnection, "down")
		}
		return 42, nil
	}, fastConfig())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestBackoffGrowthAndCap(t *testing.T) {
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     400 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	assert.Equal(t, 100*time.Millisecond, Backoff(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, Backoff(cfg, 1))
	assert.Equal(t, 400*time.Millisecond, Backoff(cfg, 2))
	// Capped from here on.
	assert.Equal(t, 400*time.Millisecond, Backoff(cfg, 3))
	assert.Equal(t, 400*time.Millisecond, Backoff(cfg, 10))
}

func TestBackoffJitterBounds(t *testing.T) {
	cfg := Config{
		MaxRetries:   1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	for i := 0; i < 200; i++ {
		d := Backoff(cfg, 0)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
