// Package kernel assembles the event store, task queue, context manager,
// verifier, auditor, and governor into the single-threaded cooperative main
// loop described by the run: select a task, execute it, verify its output,
// audit the outcome, checkpoint periodically, and stop when the governor
// says so. Kernel is the one package allowed to depend on every other
// kernel package, since assembling live manager state into a core.Snapshot
// is exactly the cross-cutting concern core.Snapshot exists to avoid
// forcing onto the leaf packages themselves.
package kernel

import (
	"context"
	"sync"

	"github.com/goadesign/agent-kernel/internal/auditor"
	"github.com/goadesign/agent-kernel/internal/contextmgr"
	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/executor"
	"github.com/goadesign/agent-kernel/internal/governor"
	"github.com/goadesign/agent-kernel/internal/kernelerrors"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
	"github.com/goadesign/agent-kernel/internal/telemetry"
	"github.com/goadesign/agent-kernel/internal/verifier"
)

// selectionBudget is the token budget passed to ContextManager.SelectContext
// when assembling a task's execution context.
const selectionBudget = 4000

// Observer is notified whenever the kernel captures a checkpoint snapshot.
type Observer func(core.Snapshot)

// Kernel owns every component for a single run and drives its main loop.
type Kernel struct {
	mu sync.Mutex

	config  core.RunConfig
	store   *eventstore.Store
	queue   *taskqueue.Queue
	context *contextmgr.Manager
	verify  *verifier.Verifier
	audit   *auditor.Auditor
	gov     *governor.Governor
	exec    executor.TaskExecutor

	artifacts map[string]*core.Artifact

	running             bool
	actionsInCheckpoint int
	checkpointInterval  int
	observer            Observer

	logger telemetry.Logger
}

// New constructs a Kernel for config. exec may be nil, in which case the
// built-in SimulatedExecutor is used.
func New(config core.RunConfig, exec executor.TaskExecutor, logger telemetry.Logger) *Kernel {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if exec == nil {
		exec = executor.SimulatedExecutor{}
	}
	if config.RunID == "" {
		config.RunID = core.NewID()
	}
	interval := config.CheckpointInterval
	if interval <= 0 {
		interval = 10
	}

	store := eventstore.New(config.RunID, logger)
	k := &Kernel{
		config:             config,
		store:              store,
		queue:              taskqueue.New(store, logger),
		context:            contextmgr.New(store, logger),
		verify:             verifier.New(store, logger),
		audit:              auditor.New(store, logger),
		gov:                governor.New(store, logger, config.Budgets, config.RiskPolicy),
		exec:               exec,
		artifacts:          make(map[string]*core.Artifact),
		checkpointInterval: interval,
		logger:             logger,
	}
	if config.Mode != "" {
		k.gov.SetMode(context.Background(), config.Mode)
	}
	return k
}

// Store exposes the underlying event store for subscription and querying.
func (k *Kernel) Store() *eventstore.Store { return k.store }

// Queue exposes the task queue, e.g. for seeding an initial task set.
func (k *Kernel) Queue() *taskqueue.Queue { return k.queue }

// Context exposes the context manager, e.g. for seeding pinned constraints.
func (k *Kernel) Context() *contextmgr.Manager { return k.context }

// Governor exposes the autonomy governor, e.g. for external approval
// resolution.
func (k *Kernel) Governor() *governor.Governor { return k.gov }

// Auditor exposes the auditor's recorded entries.
func (k *Kernel) Auditor() *auditor.Auditor { return k.audit }

// SetObserver registers a callback fired whenever a checkpoint snapshot is
// captured.
func (k *Kernel) SetObserver(obs Observer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.observer = obs
}

// Start emits RUN_STARTED and runs the main loop to completion or stop.
func (k *Kernel) Start(ctx context.Context) error {
	k.store.Append(ctx, core.EventRunStarted, map[string]any{
		"mode":   string(k.gov.Mode()),
		"run_id": k.config.RunID,
	})
	k.mu.Lock()
	k.running = true
	k.mu.Unlock()
	return k.runLoop(ctx)
}

func (k *Kernel) isRunning() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}

func (k *Kernel) setRunning(v bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = v
}

func (k *Kernel) storeArtifact(a *core.Artifact) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.artifacts[a.ID] = a
}

func (k *Kernel) artifactsFor(taskID string) []*core.Artifact {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []*core.Artifact
	for _, a := range k.artifacts {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out
}

func (k *Kernel) allArtifacts() []*core.Artifact {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*core.Artifact, 0, len(k.artifacts))
	for _, a := range k.artifacts {
		out = append(out, a)
	}
	return out
}

func (k *Kernel) restoreArtifacts(artifacts []*core.Artifact) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.artifacts = make(map[string]*core.Artifact, len(artifacts))
	for _, a := range artifacts {
		k.artifacts[a.ID] = a.Clone()
	}
}

// raiseError emits ERROR_RAISED for a kernel-level failure (e.g. a
// recovered panic from task execution).
func (k *Kernel) raiseError(ctx context.Context, kind kernelerrors.Kind, format string, args ...any) {
	kerr := kernelerrors.Newf(kind, format, args...)
	k.store.Append(ctx, core.EventErrorRaised, kerr.Payload())
}
