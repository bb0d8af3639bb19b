// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package jobmanager implements the Job Manager and Job Processor: a
// single cooperative loop per process that scans internal/jobcache for
// jobs in a non-terminal state and advances each by exactly one
// state-machine step, under a ticket held for the duration of the step.
package jobmanager

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/executor"
	"github.com/trac-platform/trac/internal/jobcache"
	"github.com/trac-platform/trac/pkg/metadata"
)

// Job status values making up the job state machine. These are the
// strings stored as a jobcache.Entry's Status field.
const (
	StatusCreated   = "CREATED"
	StatusValidated = "VALIDATED"
	StatusQueued    = "QUEUED"
	StatusSubmitted = "SUBMITTED"
	StatusRunning   = "RUNNING"
	StatusFinishing = "FINISHING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// nonTerminalStatuses are the statuses the scan loop picks up. COMPLETED,
// FAILED and CANCELLED are never stored in the cache: a FINISHING job's
// entry is removed (removeEntry) once its outcome is written back.
var nonTerminalStatuses = []string{
	StatusCreated, StatusValidated, StatusQueued, StatusSubmitted, StatusRunning, StatusFinishing,
}

// JobState is the JSON value stored in the job cache entry for one job:
// everything the processor needs to resume a step after a crash.
type JobState struct {
	Tenant          string               `json:"tenant"`
	ObjectId        string               `json:"objectId"`
	Spec            executor.JobSpec     `json:"spec"`
	Sandbox         executor.SandboxConfig `json:"sandbox"`
	ExecutorState   executor.State       `json:"executorState"`
	CancelRequested bool                 `json:"cancelRequested"`
	FinalStatus     executor.Status      `json:"finalStatus,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// Config holds the Job Manager's tunable defaults.
type Config struct {
	// PollInterval is the cadence of scan passes over the job cache.
	PollInterval time.Duration
	// TicketLifetime bounds how long a step may hold its ticket.
	TicketLifetime time.Duration
	// WatchdogThreshold is how stale a non-terminal entry's LastActivity
	// may get before the manager force-fails it as LOST.
	WatchdogThreshold time.Duration
}

// DefaultConfig returns the documented defaults: 2s poll, 30s ticket,
// 15min watchdog.
func DefaultConfig() Config {
	return Config{
		PollInterval:      executor.DefaultPollInterval(),
		TicketLifetime:    jobcache.DefaultTicketLifetime,
		WatchdogThreshold: 15 * time.Minute,
	}
}

// Manager runs the job-cache scan loop.
type Manager struct {
	log       *zap.Logger
	cache     *jobcache.Cache
	processor *Processor
	cfg       Config
	clock     func() time.Time
}

// New builds a Manager over cache, driving job steps through processor.
func New(log *zap.Logger, cache *jobcache.Cache, processor *Processor, cfg Config) *Manager {
	return &Manager{log: log, cache: cache, processor: processor, cfg: cfg, clock: time.Now}
}

// Run scans the job cache every cfg.PollInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.scanOnce(ctx)
		}
	}
}

// scanOnce advances every job the scan observes in a non-terminal state
// by at most one step each. Jobs are processed sequentially: the Job
// Manager is explicitly a single cooperative loop per process, and
// multiple processes coordinate safely through tickets rather than
// through any in-process concurrency here.
func (m *Manager) scanOnce(ctx context.Context) {
	entries, err := m.cache.QueryStatus(ctx, nonTerminalStatuses, false)
	if err != nil {
		m.log.Error("job cache scan failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return
		}
		m.stepEntry(ctx, entry)
	}
}

func (m *Manager) stepEntry(ctx context.Context, entry jobcache.Entry) {
	ticket, err := m.cache.OpenTicket(ctx, entry.Key, entry.Revision, m.cfg.TicketLifetime)
	if err != nil {
		m.log.Error("open ticket failed", zap.String("jobKey", entry.Key), zap.Error(err))
		return
	}
	if !ticket.Valid() {
		// Another manager pass (this process or another) already owns
		// this revision, or the entry vanished between scan and ticket.
		return
	}
	defer func() {
		if err := m.cache.CloseTicket(ctx, ticket); err != nil {
			m.log.Error("close ticket failed", zap.String("jobKey", entry.Key), zap.Error(err))
		}
	}()

	result, err := m.processor.Step(ctx, entry, m.cfg, m.clock())
	if err != nil {
		m.log.Error("job step failed", zap.String("jobKey", entry.Key), zap.String("status", entry.Status), zap.Error(err))
		return
	}
	if result.noop {
		return
	}

	if result.terminal {
		if err := m.cache.RemoveEntry(ctx, ticket); err != nil {
			m.log.Error("remove finished job entry failed", zap.String("jobKey", entry.Key), zap.Error(err))
		}
		return
	}
	if _, err := m.cache.UpdateEntry(ctx, ticket, result.status, result.value); err != nil {
		m.log.Error("update job entry failed", zap.String("jobKey", entry.Key), zap.Error(err))
	}
}

// CreateJob opens a fresh CREATED entry for jobKey in cache. The caller
// is responsible for having already created the corresponding JOB
// metadata object; jobKey is expected to be that object's id in string
// form.
func CreateJob(ctx context.Context, cache *jobcache.Cache, cfg Config, jobKey string, st JobState) error {
	ticket, err := cache.OpenNewTicket(ctx, jobKey, cfg.TicketLifetime)
	if err != nil {
		return err
	}
	if !ticket.Valid() {
		return jobcache.ErrEntryExists
	}
	value, err := marshalState(st)
	if err != nil {
		return err
	}
	_, err = cache.AddEntry(ctx, ticket, StatusCreated, value)
	return err
}

// requestCancelAttempts bounds the compare-and-retry loop in
// RequestCancel against a concurrently advancing manager pass.
const requestCancelAttempts = 5

// RequestCancel marks jobKey for cancellation; the next scan pass that
// observes it will call Driver.Cancel (if submitted) and finalize it as
// CANCELLED.
func RequestCancel(ctx context.Context, cache *jobcache.Cache, cfg Config, jobKey string) error {
	var lastErr error
	for i := 0; i < requestCancelAttempts; i++ {
		entry, err := cache.GetEntry(ctx, jobKey, jobcache.Latest())
		if err != nil {
			return err
		}
		ticket, err := cache.OpenTicket(ctx, jobKey, entry.Revision, cfg.TicketLifetime)
		if err != nil {
			return err
		}
		if !ticket.Valid() {
			lastErr = metadata.NewKindedError(metadata.KindCacheTicket, "job %q is being advanced concurrently", jobKey)
			continue
		}
		st, err := unmarshalState(entry.Value)
		if err != nil {
			_ = cache.CloseTicket(ctx, ticket)
			return err
		}
		st.CancelRequested = true
		value, err := marshalState(st)
		if err != nil {
			_ = cache.CloseTicket(ctx, ticket)
			return err
		}
		_, err = cache.UpdateEntry(ctx, ticket, entry.Status, value)
		return err
	}
	return lastErr
}
