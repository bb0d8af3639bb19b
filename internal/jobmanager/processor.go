// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package jobmanager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trac-platform/trac/internal/executor"
	"github.com/trac-platform/trac/internal/jobcache"
	"github.com/trac-platform/trac/internal/metaservices"
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

// Validator performs the CREATED→VALIDATED semantic check against the
// job's target model/data metadata.
type Validator interface {
	Validate(ctx context.Context, tenant string, spec executor.JobSpec) error
}

// NopValidator accepts every job unconditionally.
type NopValidator struct{}

// Validate implements Validator.
func (NopValidator) Validate(context.Context, string, executor.JobSpec) error { return nil }

// InputResolver performs the VALIDATED→QUEUED step: resolving a job's
// inputs to concrete object versions.
type InputResolver interface {
	Resolve(ctx context.Context, tenant string, spec executor.JobSpec) (executor.JobSpec, error)
}

// PassthroughResolver leaves the job spec unchanged; inputs are already
// concrete versions.
type PassthroughResolver struct{}

// Resolve implements InputResolver.
func (PassthroughResolver) Resolve(_ context.Context, _ string, spec executor.JobSpec) (executor.JobSpec, error) {
	return spec, nil
}

// MetadataWriter is the subset of the Trusted Metadata API the processor
// needs to persist a job's final result as written-back metadata.
// *metaservices.Service satisfies it
// directly for an in-process deployment; a gRPC client stub over
// internal/metaapi's TrustedServiceDesc satisfies it for a standalone
// orchestrator process.
type MetadataWriter interface {
	CreateObject(ctx context.Context, tenant string, tier metaservices.Tier, identity metaservices.Identity, objType metadata.ObjectType, def metadata.ObjectDefinition, attrs map[string]types.Value) (metadata.Tag, error)
	UpdateTag(ctx context.Context, tenant string, tier metaservices.Tier, identity metaservices.Identity, selector metadata.TagSelector, attrs map[string]types.Value) (metadata.Tag, error)
}

// systemIdentity stamps writes the Job Manager itself makes, as opposed
// to writes made on behalf of an external caller.
var systemIdentity = metaservices.Identity{UserID: "trac-job-manager", UserName: "TRAC Job Manager"}

// Processor runs exactly one state-transition step per call: all
// outside calls (executor submits/polls, metadata writes) happen
// inside Step, never inside Manager.
type Processor struct {
	driver    executor.Driver
	metadata  MetadataWriter
	validator Validator
	resolver  InputResolver
}

// NewProcessor builds a Processor. validator and resolver may be nil, in
// which case NopValidator/PassthroughResolver are used.
func NewProcessor(driver executor.Driver, metadataWriter MetadataWriter, validator Validator, resolver InputResolver) *Processor {
	if validator == nil {
		validator = NopValidator{}
	}
	if resolver == nil {
		resolver = PassthroughResolver{}
	}
	return &Processor{driver: driver, metadata: metadataWriter, validator: validator, resolver: resolver}
}

// stepResult tells the Manager how to write the step's outcome back to
// the job cache: noop (no write needed), an updateEntry with a new
// status/value, or a terminal removeEntry.
type stepResult struct {
	noop     bool
	terminal bool
	status   string
	value    []byte
}

// Noop reports whether the step made no change worth writing back.
func (r stepResult) Noop() bool { return r.noop }

// Terminal reports whether the job is finished and ready for removeEntry.
func (r stepResult) Terminal() bool { return r.terminal }

// Status is the job's new status after this step, when not terminal.
func (r stepResult) Status() string { return r.status }

// Step advances entry by one state-machine transition.
func (p *Processor) Step(ctx context.Context, entry jobcache.Entry, cfg Config, now time.Time) (stepResult, error) {
	st, err := unmarshalState(entry.Value)
	if err != nil {
		return stepResult{}, err
	}

	if stale := now.Sub(entry.LastActivity) > cfg.WatchdogThreshold; stale && entry.Status != StatusFinishing {
		st.FinalStatus = executor.StatusLost
		st.Error = "watchdog: no progress observed within threshold"
		return p.advanceTo(st, StatusFinishing)
	}

	if st.CancelRequested && entry.Status != StatusFinishing {
		if entry.Status == StatusSubmitted || entry.Status == StatusRunning {
			if err := p.driver.Cancel(ctx, st.ExecutorState); err != nil {
				return stepResult{}, err
			}
		}
		st.FinalStatus = executor.StatusCancelled
		return p.advanceTo(st, StatusFinishing)
	}

	switch entry.Status {
	case StatusCreated:
		if err := p.validator.Validate(ctx, st.Tenant, st.Spec); err != nil {
			st.Error = err.Error()
			st.FinalStatus = executor.StatusFailed
			return p.advanceTo(st, StatusFinishing)
		}
		return p.advanceTo(st, StatusValidated)

	case StatusValidated:
		resolved, err := p.resolver.Resolve(ctx, st.Tenant, st.Spec)
		if err != nil {
			st.Error = err.Error()
			st.FinalStatus = executor.StatusFailed
			return p.advanceTo(st, StatusFinishing)
		}
		st.Spec = resolved
		return p.advanceTo(st, StatusQueued)

	case StatusQueued:
		state, err := p.driver.Submit(ctx, st.ObjectId, st.Spec, st.Sandbox)
		if err != nil {
			st.Error = err.Error()
			st.FinalStatus = executor.StatusFailed
			return p.advanceTo(st, StatusFinishing)
		}
		st.ExecutorState = state
		return p.advanceTo(st, StatusSubmitted)

	case StatusSubmitted, StatusRunning:
		poll, err := p.driver.Poll(ctx, st.ExecutorState)
		if err != nil {
			st.Error = err.Error()
			st.FinalStatus = executor.StatusFailed
			return p.advanceTo(st, StatusFinishing)
		}
		switch poll.Status {
		case executor.StatusQueued:
			return stepResult{noop: true}, nil
		case executor.StatusRunning:
			if entry.Status == StatusRunning {
				return stepResult{noop: true}, nil
			}
			return p.advanceTo(st, StatusRunning)
		case executor.StatusSucceeded, executor.StatusFailed, executor.StatusLost, executor.StatusCancelled:
			st.FinalStatus = poll.Status
			return p.advanceTo(st, StatusFinishing)
		default:
			return stepResult{noop: true}, nil
		}

	case StatusFinishing:
		return p.finish(ctx, st)

	default:
		return stepResult{}, metadata.NewKindedError(metadata.KindInternal, "job in unrecognized status %q", entry.Status)
	}
}

// finish persists the job's terminal outcome through the Trusted
// Metadata API and reports the entry as ready for removeEntry.
func (p *Processor) finish(ctx context.Context, st JobState) (stepResult, error) {
	objectId, err := metadata.ParseObjectId(st.ObjectId)
	if err != nil {
		return stepResult{}, metadata.NewKindedError(metadata.KindInternal, "job object id %q is not a valid object id", st.ObjectId)
	}

	finalStatus := StatusFailed
	switch st.FinalStatus {
	case executor.StatusSucceeded:
		finalStatus = StatusCompleted
	case executor.StatusCancelled:
		finalStatus = StatusCancelled
	}

	// job_status/job_error/job_id are ordinary attributes, not the
	// controlled trac_* ones metaservices.Service stamps itself — those
	// are reserved for create/update provenance, not a caller's own job
	// bookkeeping fields.
	attrs := map[string]types.Value{
		"job_status": types.NewString(finalStatus),
	}
	if st.Error != "" {
		attrs["job_error"] = types.NewString(st.Error)
	}

	if finalStatus == StatusCompleted {
		result, err := p.driver.FetchResult(ctx, st.ExecutorState)
		if err != nil {
			return stepResult{}, err
		}
		resultDef, err := json.Marshal(result)
		if err != nil {
			return stepResult{}, metadata.Error.Wrap(err)
		}
		if _, err := p.metadata.CreateObject(ctx, st.Tenant, metaservices.TierTrusted, systemIdentity, metadata.RESULT,
			metadata.ObjectDefinition{Type: metadata.RESULT, MetaFormat: "application/json", MetaVersion: 1, Definition: resultDef},
			map[string]types.Value{"job_id": types.NewString(st.ObjectId)},
		); err != nil {
			return stepResult{}, err
		}
	}

	jobSelector := metadata.TagSelector{
		ObjectType:    metadata.JOB,
		ObjectId:      objectId,
		ObjectVersion: metadata.LatestVersion(),
		TagVersion:    metadata.LatestVersion(),
	}
	if _, err := p.metadata.UpdateTag(ctx, st.Tenant, metaservices.TierTrusted, systemIdentity, jobSelector, attrs); err != nil {
		return stepResult{}, err
	}

	return stepResult{terminal: true}, nil
}

func (p *Processor) advanceTo(st JobState, status string) (stepResult, error) {
	value, err := marshalState(st)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{status: status, value: value}, nil
}

func marshalState(st JobState) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, metadata.Error.Wrap(err)
	}
	return data, nil
}

func unmarshalState(data []byte) (JobState, error) {
	var st JobState
	if err := json.Unmarshal(data, &st); err != nil {
		return JobState{}, metadata.Error.Wrap(err)
	}
	return st, nil
}
