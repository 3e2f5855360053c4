package kernel

import (
	"context"
	"time"

	"github.com/goadesign/agent-kernel/internal/auditor"
	"github.com/goadesign/agent-kernel/internal/contextmgr"
	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/executor"
	"github.com/goadesign/agent-kernel/internal/governor"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
	"github.com/goadesign/agent-kernel/internal/telemetry"
	"github.com/goadesign/agent-kernel/internal/verifier"
)

// RunBundle is the full exportable state of a run: its configuration, its
// event log and snapshots, and the final queue/context/artifact state it
// reconstructs from. A kernel restored from a RunBundle continues the event
// store's hash chain from the bundle's last event; events appended after the
// restore carry fresh ids and timestamps, so they are not byte-identical to
// events of the original run.
type RunBundle struct {
	Config        core.RunConfig  `json:"config" yaml:"config"`
	RunID         string          `json:"run_id" yaml:"run_id"`
	Events        []core.Event    `json:"events" yaml:"events"`
	Snapshots     []core.Snapshot `json:"snapshots" yaml:"snapshots"`
	Artifacts     []*core.Artifact `json:"artifacts" yaml:"artifacts"`
	FinalSnapshot core.Snapshot   `json:"final_snapshot" yaml:"final_snapshot"`
	ExportedAt    time.Time       `json:"exported_at" yaml:"exported_at"`
}

// ExportBundle captures a final snapshot and returns the full run state as a
// RunBundle, suitable for JSON or YAML serialisation.
func (k *Kernel) ExportBundle(ctx context.Context) *RunBundle {
	final := k.createCheckpoint(ctx, core.TriggerManual)
	esBundle := k.store.ExportBundle()
	return &RunBundle{
		Config:        k.config,
		RunID:         esBundle.RunID,
		Events:        esBundle.Events,
		Snapshots:     esBundle.Snapshots,
		Artifacts:     k.allArtifacts(),
		FinalSnapshot: final,
		ExportedAt:    esBundle.ExportedAt,
	}
}

// FromBundle reconstructs a Kernel from a previously exported RunBundle: the
// event store's hash chain, the task queue, the context tiers, the governor
// budgets, and known artifacts are all restored from the bundle's final
// snapshot, so a resumed run continues exactly where the export left off.
func FromBundle(bundle *RunBundle, exec executor.TaskExecutor, logger telemetry.Logger) *Kernel {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if exec == nil {
		exec = executor.SimulatedExecutor{}
	}

	config := bundle.Config
	config.RunID = bundle.RunID
	interval := config.CheckpointInterval
	if interval <= 0 {
		interval = 10
	}

	store := eventstore.FromBundle(&eventstore.Bundle{
		RunID:      bundle.RunID,
		Events:     bundle.Events,
		Snapshots:  bundle.Snapshots,
		ExportedAt: bundle.ExportedAt,
	}, logger)

	k := &Kernel{
		config:             config,
		store:              store,
		queue:              taskqueue.New(store, logger),
		context:            contextmgr.New(store, logger),
		verify:             verifier.New(store, logger),
		audit:              auditor.New(store, logger),
		gov:                governor.New(store, logger, bundle.FinalSnapshot.Budgets, config.RiskPolicy),
		exec:               exec,
		artifacts:          make(map[string]*core.Artifact),
		checkpointInterval: interval,
		logger:             logger,
	}
	if config.Mode != "" {
		k.gov.SetMode(context.Background(), config.Mode)
	}

	k.queue.Restore(bundle.FinalSnapshot.Queue)
	k.context.Restore(bundle.FinalSnapshot.Context)
	k.restoreArtifacts(bundle.Artifacts)
	k.actionsInCheckpoint = 0

	return k
}

// VerifyFinalSnapshot re-derives a snapshot from the kernel's current queue,
// DAG, context, budget, and artifact state and reports whether its content
// matches recorded's checksum. It reuses recorded's ID, timestamp, sequence
// number, and trigger, since those describe when the snapshot was taken
// rather than what it contains; only content determines the checksum. It
// returns the match result alongside the recomputed checksum for diagnostics.
func (k *Kernel) VerifyFinalSnapshot(recorded core.Snapshot) (bool, string) {
	candidate := k.store.BuildSnapshot(recorded.Trigger,
		k.queue.All(),
		k.queue.GetDAGState(),
		k.context.State(),
		k.gov.Budgets(),
		k.allArtifacts(),
	)
	candidate.ID = recorded.ID
	candidate.Timestamp = recorded.Timestamp
	candidate.SequenceNumber = recorded.SequenceNumber
	candidate.Checksum = eventstore.Checksum(candidate)
	return candidate.Checksum == recorded.Checksum, candidate.Checksum
}
