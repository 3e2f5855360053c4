// Package core holds the shared, dependency-free data model used across the
// kernel: identifiers, events, tasks, acceptance criteria, budgets, context
// items, artifacts, snapshots, and run configuration. Every other kernel
// package depends on core; core depends on nothing in this module, which is
// what keeps the EventStore, TaskQueue, ContextManager, Verifier, and
// Governor free of cyclic ownership (cross-references use string ids, never
// direct pointers into another package's live state).
package core

import "github.com/google/uuid"

// ChainSentinel seeds the hash chain: event 0's hash_prev is this fixed
// value rather than a zero hash, per the event log's chain invariant.
const ChainSentinel = "00000000"

// NewID returns a fresh random identifier suitable for events, tasks,
// context items, artifacts, and snapshots.
func NewID() string {
	return uuid.NewString()
}

// Default token caps for the three context tiers, and the aggregate cap
// across all tiers.
const (
	DefaultPinnedCap   = 2000
	DefaultWorkingCap  = 4000
	DefaultLongtermCap = 20000
	DefaultTotalCap    = 26000
)

// DefaultWarningThreshold is the fraction of a budget's maximum at which the
// governor begins reporting shouldCheckpoint()==true.
const DefaultWarningThreshold = 0.8

// Priority levels are multiples of 10 in [0,100]; 50 is the default task
// priority assigned by addTask when the caller does not specify one.
const DefaultTaskPriority = 50
