// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package executor defines the Job Executor Driver: the interface the
// Job Manager uses to submit, poll, cancel, and collect results from a
// pluggable batch runtime, plus the bounded retry policy its network
// path requires.
package executor

import (
	"context"
	"time"
)

// Status is one of the states poll observes a submitted job in.
type Status int

// Job statuses making up the poll result enumeration.
const (
	StatusQueued Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusLost
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "QUEUED"
	case StatusRunning:
		return "RUNNING"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	case StatusLost:
		return "LOST"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// JobSpec describes the work to run: an executable invocation plus the
// environment it needs. Opaque to the driver interface itself; concrete
// drivers interpret it however their batch runtime requires.
type JobSpec struct {
	Command []string
	Env     map[string]string
	WorkDir string
}

// SandboxConfig bounds the resources a submitted job may consume.
type SandboxConfig struct {
	MaxMemoryMB   int
	MaxCPUSeconds int
}

// State is the serializable handle Submit returns and every other Driver
// method takes back, so a crashed Job Manager can reattach to an
// in-flight job after restart without re-submitting it.
type State struct {
	JobKey string
	Handle string
}

// PollResult is the outcome of one poll call.
type PollResult struct {
	Status     Status
	Progress   float64
	LastLogSeq int64
}

// Result is only valid to fetch once poll reports StatusSucceeded.
type Result struct {
	ResultMetadata map[string]string
	Outputs        []string
}

// LogChunk is one slice of a job's log stream, starting at Seq.
type LogChunk struct {
	Seq  int64
	Data []byte
}

// Driver is the Job Executor Driver interface: submit/poll/cancel
// against a pluggable batch runtime, plus result and (optionally) log
// retrieval once a job finishes.
type Driver interface {
	// Submit launches jobKey asynchronously and returns a serializable
	// state handle immediately; it does not block for completion.
	Submit(ctx context.Context, jobKey string, spec JobSpec, sandbox SandboxConfig) (State, error)
	// Poll reports the job's current status.
	Poll(ctx context.Context, state State) (PollResult, error)
	// Cancel requests early termination of a running job.
	Cancel(ctx context.Context, state State) error
	// FetchResult returns the job's output; only valid after poll
	// reports StatusSucceeded.
	FetchResult(ctx context.Context, state State) (Result, error)
	// FetchLogs returns log chunks from fromSeq onward. Optional: a
	// driver with no log support may return an empty slice.
	FetchLogs(ctx context.Context, state State, fromSeq int64) ([]LogChunk, error)
}

// defaultPollInterval is the Job Manager's default scheduling cadence;
// it lives here because it's the natural unit driving how often
// Driver.Poll is called.
const defaultPollInterval = 2 * time.Second

// DefaultPollInterval returns the default polling cadence.
func DefaultPollInterval() time.Duration { return defaultPollInterval }
