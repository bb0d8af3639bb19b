// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package localdriver is an in-process executor.Driver: it runs each
// submitted job as a tracked goroutine rather than dispatching to an
// external batch scheduler, standing in for whatever pluggable batch
// runtime the Driver interface otherwise abstracts over. Intended for
// single-node deployments and tests; a production deployment plugs in
// a different Driver entirely.
//
// Grounded on storj-storj's private/lifecycle.Group, which runs a named
// set of goroutines and tracks each one's completion the same way this
// package tracks one goroutine per submitted job.
package localdriver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/executor"
	"github.com/trac-platform/trac/pkg/metadata"
)

// RunFunc executes one job's spec to completion (or until ctx is
// cancelled) and returns its result.
type RunFunc func(ctx context.Context, jobKey string, spec executor.JobSpec) (executor.Result, error)

type jobState struct {
	status    executor.Status
	result    executor.Result
	logs      []executor.LogChunk
	cancel    context.CancelFunc
	startedAt time.Time
}

// Driver is an in-process executor.Driver built around a RunFunc.
type Driver struct {
	log *zap.Logger
	run RunFunc

	mu   sync.Mutex
	jobs map[string]*jobState
}

// New builds a Driver that executes submitted jobs by calling run in a
// goroutine per job.
func New(log *zap.Logger, run RunFunc) *Driver {
	return &Driver{log: log, run: run, jobs: make(map[string]*jobState)}
}

// Submit implements executor.Driver.
func (d *Driver) Submit(_ context.Context, jobKey string, spec executor.JobSpec, _ executor.SandboxConfig) (executor.State, error) {
	d.mu.Lock()
	if _, exists := d.jobs[jobKey]; exists {
		d.mu.Unlock()
		return executor.State{}, metadata.NewKindedError(metadata.KindAlreadyExists, "job %q already submitted", jobKey)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	st := &jobState{status: executor.StatusQueued, cancel: cancel, startedAt: time.Now()}
	d.jobs[jobKey] = st
	d.mu.Unlock()

	go d.execute(runCtx, jobKey, spec, st)

	return executor.State{JobKey: jobKey, Handle: jobKey}, nil
}

func (d *Driver) execute(ctx context.Context, jobKey string, spec executor.JobSpec, st *jobState) {
	d.mu.Lock()
	st.status = executor.StatusRunning
	d.mu.Unlock()

	result, err := d.run(ctx, jobKey, spec)

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		st.status = executor.StatusCancelled
	case err != nil:
		st.status = executor.StatusFailed
		d.log.Warn("local job failed", zap.String("jobKey", jobKey), zap.Error(err))
	default:
		st.status = executor.StatusSucceeded
		st.result = result
	}
}

func (d *Driver) lookup(state executor.State) (*jobState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.jobs[state.JobKey]
	if !ok {
		return nil, metadata.NewKindedError(metadata.KindExecutorFatal, "unknown job handle %q", state.JobKey)
	}
	return st, nil
}

// Poll implements executor.Driver.
func (d *Driver) Poll(_ context.Context, state executor.State) (executor.PollResult, error) {
	st, err := d.lookup(state)
	if err != nil {
		return executor.PollResult{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return executor.PollResult{Status: st.status, LastLogSeq: int64(len(st.logs))}, nil
}

// Cancel implements executor.Driver.
func (d *Driver) Cancel(_ context.Context, state executor.State) error {
	st, err := d.lookup(state)
	if err != nil {
		return err
	}
	st.cancel()
	return nil
}

// FetchResult implements executor.Driver.
func (d *Driver) FetchResult(_ context.Context, state executor.State) (executor.Result, error) {
	st, err := d.lookup(state)
	if err != nil {
		return executor.Result{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if st.status != executor.StatusSucceeded {
		return executor.Result{}, metadata.NewKindedError(metadata.KindInvalidInput, "fetchResult called before job %q succeeded", state.JobKey)
	}
	return st.result, nil
}

// FetchLogs implements executor.Driver. The local driver never produces
// logs on its own; a RunFunc that wants log support must record chunks
// elsewhere and surface them through a wrapping Driver.
func (d *Driver) FetchLogs(_ context.Context, state executor.State, fromSeq int64) ([]executor.LogChunk, error) {
	st, err := d.lookup(state)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []executor.LogChunk
	for _, chunk := range st.logs {
		if chunk.Seq >= fromSeq {
			out = append(out, chunk)
		}
	}
	return out, nil
}
