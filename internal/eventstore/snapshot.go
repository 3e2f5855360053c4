package eventstore

import (
	"context"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
)

// BuildSnapshot deep-clones the supplied live state into a core.Snapshot and
// computes its checksum, without appending a SNAPSHOT_CREATED event or
// recording it in the store's snapshot history. Used wherever a snapshot's
// content needs re-deriving for comparison rather than for the log itself,
// such as verifying a replayed bundle against its recorded final snapshot.
func (s *Store) BuildSnapshot(
	trigger core.SnapshotTrigger,
	queue []*core.Task,
	dag core.DAGState,
	contextView core.ContextStateView,
	budgets core.Budgets,
	artifacts []*core.Artifact,
) core.Snapshot {
	s.mu.Lock()
	seq := int64(len(s.events)) - 1
	s.mu.Unlock()

	snap := core.Snapshot{
		ID:             core.NewID(),
		RunID:          s.runID,
		Timestamp:      time.Now().UTC(),
		SequenceNumber: seq,
		Queue:          cloneTasks(queue),
		DAG:            dag.Clone(),
		Context:        contextView.Clone(),
		Budgets:        budgets,
		Artifacts:      cloneArtifacts(artifacts),
		Trigger:        trigger,
	}
	snap.Checksum = checksum(snap)
	return snap
}

// CreateSnapshot builds a snapshot via BuildSnapshot, records it in the
// store's snapshot history, and appends a SNAPSHOT_CREATED event.
func (s *Store) CreateSnapshot(
	ctx context.Context,
	trigger core.SnapshotTrigger,
	queue []*core.Task,
	dag core.DAGState,
	contextView core.ContextStateView,
	budgets core.Budgets,
	artifacts []*core.Artifact,
) core.Snapshot {
	snap := s.BuildSnapshot(trigger, queue, dag, contextView, budgets, artifacts)

	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()

	s.Append(ctx, core.EventSnapshotCreated, map[string]any{
		"snapshot_id":     snap.ID,
		"trigger":         string(snap.Trigger),
		"sequence_number": snap.SequenceNumber,
		"checksum":        snap.Checksum,
		"task_count":      len(snap.Queue),
	})
	return snap
}

// Snapshots returns every snapshot captured so far, oldest-first.
func (s *Store) Snapshots() []core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Snapshot(nil), s.snapshots...)
}

func cloneTasks(tasks []*core.Task) []*core.Task {
	out := make([]*core.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

func cloneArtifacts(artifacts []*core.Artifact) []*core.Artifact {
	out := make([]*core.Artifact, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Clone()
	}
	return out
}
