package taskproc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stevedore/internal/apperrors"
	"stevedore/internal/dockeradapter"
	"stevedore/internal/dockerjobs"
	"stevedore/internal/profile"
	"stevedore/internal/store"
)

type fakeRunner struct {
	spec     *profile.Spec
	specErr  error
	result   *dockerjobs.JobResult
	execErr  error
	executed []dockerjobs.ExecuteParams
}

func (f *fakeRunner) GetProfileSpec(ctx context.Context, appIdentifier, profileName string) (*profile.Spec, error) {
	return f.spec, f.specErr
}

func (f *fakeRunner) ExecuteDockerJob(ctx context.Context, params dockerjobs.ExecuteParams) (*dockerjobs.JobResult, error) {
	f.executed = append(f.executed, params)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.result, nil
}

func testSpec() *profile.Spec {
	return &profile.Spec{
		Image: "acme/renderer:1",
		Workers: []profile.Worker{
			{Kind: profile.WorkerKindExec, JobName: "thumbnail", Command: "run-thumbnail"},
		},
	}
}

func seedTasks(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	m.Tasks().Put(ctx, &store.Task{
		ID: "wrapper",
		Data: map[string]any{
			"innerTaskId":   "inner",
			"appIdentifier": "acme",
			"profileName":   "render",
			"jobName":       "thumbnail",
		},
	})
	m.Tasks().Put(ctx, &store.Task{
		ID:   "inner",
		Data: map[string]any{"width": 128},
		StorageAccess: []store.StorageAccessRule{
			{FolderID: "f1", Methods: []string{"PUT"}, Prefix: "out/"},
		},
	})
	return m
}

func newProcessor(m *store.Memory, runner JobRunner) *Processor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProcessor(m, runner, logger)
}

func TestProcessSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := seedTasks(t)
	runner := &fakeRunner{
		spec:   testSpec(),
		result: &dockerjobs.JobResult{JobID: "job-1", Success: true},
	}
	p := newProcessor(m, runner)

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	inner, _ := m.Tasks().Get(ctx, "inner")
	if inner.StartedAt == nil {
		t.Error("inner task must be started")
	}
	if inner.CompletedAt != nil {
		t.Error("inner task completion belongs to the worker callback")
	}
	if inner.StartContext["profileKey"] != "acme:render" ||
		inner.StartContext["jobIdentifier"] != "thumbnail" ||
		inner.StartContext["profileHash"] != profile.Hash(testSpec()) {
		t.Errorf("fingerprint = %v", inner.StartContext)
	}

	wrapper, _ := m.Tasks().Get(ctx, "wrapper")
	if wrapper.CompletedAt == nil || wrapper.Success == nil || !*wrapper.Success {
		t.Errorf("wrapper = %+v, want completed success", wrapper)
	}

	if len(runner.executed) != 1 {
		t.Fatal("expected one dispatch")
	}
	params := runner.executed[0]
	if params.TaskID != "inner" || len(params.StorageAccess) != 1 {
		t.Errorf("params = %+v", params)
	}
}

func TestProcessFailureCompletesBothAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := seedTasks(t)
	runner := &fakeRunner{
		spec: testSpec(),
		execErr: apperrors.WithCode("IMAGE_NOT_FOUND", "image not found",
			map[string]any{"image": "acme/renderer:1"}, nil),
	}
	p := newProcessor(m, runner)

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	inner, _ := m.Tasks().Get(ctx, "inner")
	wrapper, _ := m.Tasks().Get(ctx, "wrapper")
	if inner.CompletedAt == nil || wrapper.CompletedAt == nil {
		t.Fatal("both tasks must be completed after a failed dispatch")
	}
	if inner.Success == nil || *inner.Success {
		t.Error("inner task must record failure")
	}
	if inner.ErrorCode != "IMAGE_NOT_FOUND" {
		t.Errorf("inner error code = %q", inner.ErrorCode)
	}
	// A classifiable error means the runner itself did its job.
	if wrapper.Success == nil || !*wrapper.Success {
		t.Error("wrapper must record success for a classifiable failure")
	}
}

func TestProcessUnclassifiableFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := seedTasks(t)
	runner := &fakeRunner{spec: testSpec(), execErr: errors.New("connection reset by peer")}
	p := newProcessor(m, runner)

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatal(err)
	}

	inner, _ := m.Tasks().Get(ctx, "inner")
	wrapper, _ := m.Tasks().Get(ctx, "wrapper")
	if inner.ErrorCode != "UNKNOWN_ERROR" {
		t.Errorf("inner error code = %q", inner.ErrorCode)
	}
	if wrapper.Success == nil || *wrapper.Success {
		t.Error("wrapper must record failure for an unclassifiable error")
	}
	if wrapper.ErrorCode != "UNKNOWN_ERROR" {
		t.Errorf("wrapper error code = %q", wrapper.ErrorCode)
	}
}

func TestProcessNonZeroExitCompletesBoth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := seedTasks(t)
	runner := &fakeRunner{
		spec: testSpec(),
		result: &dockerjobs.JobResult{
			JobID:   "job-1",
			Success: false,
			Err: apperrors.WithCode(dockeradapter.CodeArgumentListTooLong,
				"command failed: argument list too long", nil, nil),
		},
	}
	p := newProcessor(m, runner)

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatal(err)
	}

	inner, _ := m.Tasks().Get(ctx, "inner")
	if inner.CompletedAt == nil || inner.ErrorCode != dockeradapter.CodeArgumentListTooLong {
		t.Errorf("inner = %+v", inner)
	}
}

func TestProcessRequeueDelayPropagates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := seedTasks(t)
	appErr := apperrors.AsError(apperrors.WithCode("HOST_CONNECTION_TIMEOUT", "timeout", nil, nil))
	appErr.RequeueDelay = 45 * time.Second
	runner := &fakeRunner{spec: testSpec(), execErr: appErr}
	p := newProcessor(m, runner)

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatal(err)
	}

	inner, _ := m.Tasks().Get(ctx, "inner")
	if inner.RequeueDelay != 45*time.Second {
		t.Errorf("RequeueDelay = %v, want 45s", inner.RequeueDelay)
	}
}

func TestProcessMissingInnerTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory()
	m.Tasks().Put(ctx, &store.Task{
		ID: "wrapper",
		Data: map[string]any{
			"innerTaskId":   "ghost",
			"appIdentifier": "acme",
			"profileName":   "render",
			"jobName":       "thumbnail",
		},
	})
	p := newProcessor(m, &fakeRunner{spec: testSpec()})

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatal(err)
	}

	wrapper, _ := m.Tasks().Get(ctx, "wrapper")
	if wrapper.CompletedAt == nil || wrapper.ErrorCode != "NOT_FOUND" {
		t.Errorf("wrapper = %+v", wrapper)
	}
}

func TestProcessMissingDispatchFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory()
	m.Tasks().Put(ctx, &store.Task{ID: "wrapper", Data: map[string]any{"innerTaskId": "x"}})
	p := newProcessor(m, &fakeRunner{})

	if err := p.Process(ctx, "wrapper"); err != nil {
		t.Fatal(err)
	}
	wrapper, _ := m.Tasks().Get(ctx, "wrapper")
	if wrapper.CompletedAt == nil || wrapper.ErrorCode != "VALIDATION_ERROR" {
		t.Errorf("wrapper = %+v", wrapper)
	}
}
