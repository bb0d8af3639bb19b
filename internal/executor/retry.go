// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trac-platform/trac/pkg/metadata"
)

// Bounded exponential backoff parameters for the executor's network
// path: base 1s, cap 30s, at most 5 retries per call.
const (
	retryBaseInterval = time.Second
	retryMaxInterval  = 30 * time.Second
	retryMaxAttempts  = 5
	retryJitterFactor = 0.5
)

// RetryPolicy builds a fresh bounded exponential backoff with jitter,
// per call (backoff.BackOff instances are stateful and single-use).
func RetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseInterval
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = retryJitterFactor
	return backoff.WithMaxRetries(b, retryMaxAttempts)
}

// RetryingDriver wraps another Driver, retrying calls under RetryPolicy
// when they fail with metadata.KindExecutorTransient. Any other error
// kind (notably KindExecutorFatal) propagates on the first attempt.
type RetryingDriver struct {
	next      Driver
	newPolicy func() backoff.BackOff
}

// NewRetryingDriver wraps next with the default RetryPolicy.
func NewRetryingDriver(next Driver) *RetryingDriver {
	return &RetryingDriver{next: next, newPolicy: RetryPolicy}
}

// SetPolicyForTest overrides the backoff policy factory. Tests use this to
// swap in a zero-delay policy so retry exhaustion doesn't sleep for real.
func (d *RetryingDriver) SetPolicyForTest(newPolicy func() backoff.BackOff) {
	d.newPolicy = newPolicy
}

func (d *RetryingDriver) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(d.newPolicy(), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if metadata.KindOf(err) != metadata.KindExecutorTransient {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// Submit implements Driver.
func (d *RetryingDriver) Submit(ctx context.Context, jobKey string, spec JobSpec, sandbox SandboxConfig) (State, error) {
	var state State
	err := d.retry(ctx, func() error {
		var err error
		state, err = d.next.Submit(ctx, jobKey, spec, sandbox)
		return err
	})
	return state, err
}

// Poll implements Driver.
func (d *RetryingDriver) Poll(ctx context.Context, state State) (PollResult, error) {
	var result PollResult
	err := d.retry(ctx, func() error {
		var err error
		result, err = d.next.Poll(ctx, state)
		return err
	})
	return result, err
}

// Cancel implements Driver.
func (d *RetryingDriver) Cancel(ctx context.Context, state State) error {
	return d.retry(ctx, func() error {
		return d.next.Cancel(ctx, state)
	})
}

// FetchResult implements Driver.
func (d *RetryingDriver) FetchResult(ctx context.Context, state State) (Result, error) {
	var result Result
	err := d.retry(ctx, func() error {
		var err error
		result, err = d.next.FetchResult(ctx, state)
		return err
	})
	return result, err
}

// FetchLogs implements Driver.
func (d *RetryingDriver) FetchLogs(ctx context.Context, state State, fromSeq int64) ([]LogChunk, error) {
	var chunks []LogChunk
	err := d.retry(ctx, func() error {
		var err error
		chunks, err = d.next.FetchLogs(ctx, state, fromSeq)
		return err
	})
	return chunks, err
}
