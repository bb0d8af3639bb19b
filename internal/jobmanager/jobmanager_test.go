// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package jobmanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trac-platform/trac/internal/executor"
	"github.com/trac-platform/trac/internal/jobcache"
	"github.com/trac-platform/trac/internal/jobcache/membackend"
	"github.com/trac-platform/trac/internal/jobmanager"
	"github.com/trac-platform/trac/pkg/metadata"
)

// runFor drives mgr.Run in the background for at least enough scan
// passes to settle, then stops it.
func runFor(mgr *jobmanager.Manager, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_ = mgr.Run(ctx)
}

func TestCreateJobThenManagerAdvancesToSubmitted(t *testing.T) {
	cache := jobcache.New(membackend.New())
	cfg := jobmanager.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	objectId := metadata.NewObjectId().String()

	err := jobmanager.CreateJob(context.Background(), cache, cfg, objectId, jobmanager.JobState{Tenant: "acme", ObjectId: objectId})
	require.NoError(t, err)

	driver := &fakeDriver{}
	proc := jobmanager.NewProcessor(driver, &fakeMetadataWriter{}, nil, nil)
	mgr := jobmanager.New(zaptest.NewLogger(t), cache, proc, cfg)

	// CREATED -> VALIDATED -> QUEUED -> SUBMITTED, one scan per step.
	runFor(mgr, 50*time.Millisecond)

	entry, err := cache.GetEntry(context.Background(), objectId, jobcache.Latest())
	require.NoError(t, err)
	require.Equal(t, jobmanager.StatusSubmitted, entry.Status)
}

func TestManagerRemovesEntryOnCompletion(t *testing.T) {
	cache := jobcache.New(membackend.New())
	cfg := jobmanager.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	objectId := metadata.NewObjectId().String()

	require.NoError(t, jobmanager.CreateJob(context.Background(), cache, cfg, objectId, jobmanager.JobState{Tenant: "acme", ObjectId: objectId}))

	driver := &fakeDriver{pollStatus: executor.StatusSucceeded}
	proc := jobmanager.NewProcessor(driver, &fakeMetadataWriter{}, nil, nil)
	mgr := jobmanager.New(zaptest.NewLogger(t), cache, proc, cfg)

	// CREATED -> VALIDATED -> QUEUED -> SUBMITTED -> (poll succeeded) FINISHING -> removed.
	runFor(mgr, 50*time.Millisecond)

	_, err := cache.GetEntry(context.Background(), objectId, jobcache.Latest())
	require.ErrorIs(t, err, jobcache.ErrEntryNotFound)
}

func TestRequestCancelMarksStateThenManagerFinalizes(t *testing.T) {
	cache := jobcache.New(membackend.New())
	cfg := jobmanager.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	objectId := metadata.NewObjectId().String()

	require.NoError(t, jobmanager.CreateJob(context.Background(), cache, cfg, objectId, jobmanager.JobState{Tenant: "acme", ObjectId: objectId}))

	driver := &fakeDriver{}
	proc := jobmanager.NewProcessor(driver, &fakeMetadataWriter{}, nil, nil)
	mgr := jobmanager.New(zaptest.NewLogger(t), cache, proc, cfg)

	require.NoError(t, jobmanager.RequestCancel(context.Background(), cache, cfg, objectId))

	runFor(mgr, 50*time.Millisecond)

	_, err := cache.GetEntry(context.Background(), objectId, jobcache.Latest())
	require.ErrorIs(t, err, jobcache.ErrEntryNotFound)
}

func TestManagerRunStopsOnContextCancel(t *testing.T) {
	cache := jobcache.New(membackend.New())
	cfg := jobmanager.DefaultConfig()
	cfg.PollInterval = time.Millisecond

	proc := jobmanager.NewProcessor(&fakeDriver{}, &fakeMetadataWriter{}, nil, nil)
	mgr := jobmanager.New(zaptest.NewLogger(t), cache, proc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
