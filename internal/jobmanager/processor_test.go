// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package jobmanager_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/executor"
	"github.com/trac-platform/trac/internal/jobcache"
	"github.com/trac-platform/trac/internal/jobcache/membackend"
	"github.com/trac-platform/trac/internal/jobmanager"
	"github.com/trac-platform/trac/internal/metaservices"
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

type fakeDriver struct {
	pollStatus executor.Status
	pollErr    error
	result     executor.Result
	cancelled  bool
}

func (f *fakeDriver) Submit(context.Context, string, executor.JobSpec, executor.SandboxConfig) (executor.State, error) {
	return executor.State{JobKey: "job-1", Handle: "handle-1"}, nil
}

func (f *fakeDriver) Poll(context.Context, executor.State) (executor.PollResult, error) {
	if f.pollErr != nil {
		return executor.PollResult{}, f.pollErr
	}
	return executor.PollResult{Status: f.pollStatus}, nil
}

func (f *fakeDriver) Cancel(context.Context, executor.State) error {
	f.cancelled = true
	return nil
}

func (f *fakeDriver) FetchResult(context.Context, executor.State) (executor.Result, error) {
	return f.result, nil
}

func (f *fakeDriver) FetchLogs(context.Context, executor.State, int64) ([]executor.LogChunk, error) {
	return nil, nil
}

type fakeMetadataWriter struct {
	created []metadata.ObjectType
	tagged  []map[string]types.Value
}

func (f *fakeMetadataWriter) CreateObject(_ context.Context, _ string, _ metaservices.Tier, _ metaservices.Identity, objType metadata.ObjectType, _ metadata.ObjectDefinition, _ map[string]types.Value) (metadata.Tag, error) {
	f.created = append(f.created, objType)
	return metadata.Tag{}, nil
}

func (f *fakeMetadataWriter) UpdateTag(_ context.Context, _ string, _ metaservices.Tier, _ metaservices.Identity, _ metadata.TagSelector, attrs map[string]types.Value) (metadata.Tag, error) {
	f.tagged = append(f.tagged, attrs)
	return metadata.Tag{}, nil
}

func newTestCache(t *testing.T) *jobcache.Cache {
	t.Helper()
	return jobcache.New(membackend.New())
}

func newJobEntry(t *testing.T, cache *jobcache.Cache, cfg jobmanager.Config, objectId string, status string, st jobmanager.JobState) jobcache.Entry {
	t.Helper()
	ticket, err := cache.OpenNewTicket(context.Background(), objectId, cfg.TicketLifetime)
	require.NoError(t, err)
	require.True(t, ticket.Valid())

	data, err := json.Marshal(st)
	require.NoError(t, err)
	_, err = cache.AddEntry(context.Background(), ticket, status, data)
	require.NoError(t, err)

	entry, err := cache.GetEntry(context.Background(), objectId, jobcache.Latest())
	require.NoError(t, err)
	return entry
}

func TestCreatedAdvancesToValidated(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	objectId := metadata.NewObjectId().String()
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusCreated, jobmanager.JobState{Tenant: "acme", ObjectId: objectId})

	proc := jobmanager.NewProcessor(&fakeDriver{}, &fakeMetadataWriter{}, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.False(t, result.Terminal())
	require.Equal(t, jobmanager.StatusValidated, result.Status())
}

func TestQueuedSubmitsAndAdvancesToSubmitted(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	objectId := metadata.NewObjectId().String()
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusQueued, jobmanager.JobState{Tenant: "acme", ObjectId: objectId})

	proc := jobmanager.NewProcessor(&fakeDriver{}, &fakeMetadataWriter{}, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, jobmanager.StatusSubmitted, result.Status())
}

func TestRunningStaysPutUntilTerminalPollStatus(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	objectId := metadata.NewObjectId().String()
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusRunning, jobmanager.JobState{Tenant: "acme", ObjectId: objectId})

	driver := &fakeDriver{pollStatus: executor.StatusRunning}
	proc := jobmanager.NewProcessor(driver, &fakeMetadataWriter{}, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.True(t, result.Noop())
}

func TestRunningToFinishingOnSuccess(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	objectId := metadata.NewObjectId().String()
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusRunning, jobmanager.JobState{Tenant: "acme", ObjectId: objectId})

	driver := &fakeDriver{pollStatus: executor.StatusSucceeded}
	proc := jobmanager.NewProcessor(driver, &fakeMetadataWriter{}, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, jobmanager.StatusFinishing, result.Status())
}

func TestFinishingCompletedWritesResultAndTag(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	objectId := metadata.NewObjectId().String()
	st := jobmanager.JobState{Tenant: "acme", ObjectId: objectId, FinalStatus: executor.StatusSucceeded}
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusFinishing, st)

	driver := &fakeDriver{result: executor.Result{ResultMetadata: map[string]string{"k": "v"}}}
	metaWriter := &fakeMetadataWriter{}
	proc := jobmanager.NewProcessor(driver, metaWriter, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.True(t, result.Terminal())
	require.Contains(t, metaWriter.created, metadata.RESULT)
	require.Len(t, metaWriter.tagged, 1)
}

func TestWatchdogMarksStaleJobLost(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	cfg.WatchdogThreshold = time.Millisecond
	objectId := metadata.NewObjectId().String()
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusSubmitted, jobmanager.JobState{Tenant: "acme", ObjectId: objectId})
	entry.LastActivity = time.Now().Add(-time.Hour)

	proc := jobmanager.NewProcessor(&fakeDriver{}, &fakeMetadataWriter{}, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, jobmanager.StatusFinishing, result.Status())
}

func TestCancelRequestedCancelsDriverAndFinishes(t *testing.T) {
	cache := newTestCache(t)
	cfg := jobmanager.DefaultConfig()
	objectId := metadata.NewObjectId().String()
	st := jobmanager.JobState{Tenant: "acme", ObjectId: objectId, CancelRequested: true, ExecutorState: executor.State{JobKey: objectId}}
	entry := newJobEntry(t, cache, cfg, objectId, jobmanager.StatusRunning, st)

	driver := &fakeDriver{}
	proc := jobmanager.NewProcessor(driver, &fakeMetadataWriter{}, nil, nil)
	result, err := proc.Step(context.Background(), entry, cfg, time.Now())
	require.NoError(t, err)
	require.True(t, driver.cancelled)
	require.Equal(t, jobmanager.StatusFinishing, result.Status())
}
