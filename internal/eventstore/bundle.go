package eventstore

import (
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

// Bundle is the deterministic export format for a run's full event log and
// captured snapshots, suitable for JSON serialisation and later replay via
// FromBundle.
type Bundle struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Events     []core.Event   `json:"events" yaml:"events"`
	Snapshots  []core.Snapshot `json:"snapshots" yaml:"snapshots"`
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
}

// ExportBundle returns the run id, full event list, full snapshot list, and
// export timestamp as a Bundle.
func (s *Store) ExportBundle() *Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Bundle{
		RunID:      s.runID,
		Events:     append([]core.Event(nil), s.events...),
		Snapshots:  append([]core.Snapshot(nil), s.snapshots...),
		ExportedAt: time.Now().UTC(),
	}
}

// FromBundle rebuilds a Store from a previously exported Bundle. The next
// appended event's hash_prev links from the bundle's last event, and its
// sequence number continues from last+1, so further appends extend the
// original chain seamlessly.
func FromBundle(bundle *Bundle, logger telemetry.Logger) *Store {
	s := New(bundle.RunID, logger)
	s.events = append([]core.Event(nil), bundle.Events...)
	s.snapshots = append([]core.Snapshot(nil), bundle.Snapshots...)
	return s
}
