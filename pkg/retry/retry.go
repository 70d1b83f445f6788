// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package retry wraps operations against flaky backends with classified
// exponential backoff.
//
// The harness retries only errors its predicate accepts; everything else
// (validation failures, not-found, auth) propagates immediately. Backoff
// grows geometrically, is capped, and optionally carries ±25% jitter so
// that concurrent workers don't stampede a recovering store.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Config controls retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// Multiplier is the geometric growth factor per attempt.
	Multiplier float64

	// Jitter applies ±25% randomization to each delay.
	Jitter bool

	// ShouldRetry classifies errors. Nil defaults to the transient
	// classification shared across the stores (connection resets, DNS
	// failures, timeouts, gateway 5xx, tagged transient server errors).
	ShouldRetry func(error) bool
}

// DefaultConfig matches the backoff used for store writes: three
// retries, 200ms initial delay doubling up to 2s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// normalize fills zero values so a partially specified config cannot
// busy-loop.
func (c Config) normalize() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.Multiplier <= 1.0 {
		c.Multiplier = 2.0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = cgerrors.IsTransient
	}
	return c
}

// Do executes op, retrying per config. The last error is returned when
// retries are exhausted; non-retryable errors return on first sight.
// Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, op func(ctx context.Context) error, cfg Config) error {
	cfg = cfg.normalize()

	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !cfg.ShouldRetry(err) || attempt >= cfg.MaxRetries {
			return err
		}

		sleep := Backoff(cfg, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg Config) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)
	return result, err
}

// Backoff computes the delay before retry number attempt (0-based):
// min(initial * multiplier^attempt, max), with optional ±25% jitter.
func Backoff(cfg Config, attempt int) time.Duration {
	cfg = cfg.normalize()

	d := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= cfg.Multiplier
		if d >= float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
			break
		}
	}
	delay := time.Duration(d)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if cfg.Jitter && delay > 0 {
		// ±25%: scale into [0.75, 1.25].
		factor := 0.75 + 0.5*randFloat()
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randFloat() float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return randSrc.Float64()
}
