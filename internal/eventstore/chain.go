package eventstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/goadesign/agent-kernel/internal/core"
)

// computeHash derives an event's hash_self from its serialised body and
// hash_prev, using sha256 as the spec's design notes prescribe. encoding/json
// sorts map[string]any keys on marshal, so the payload digest is stable
// regardless of map iteration order.
func computeHash(e core.Event) string {
	payload, _ := json.Marshal(e.Payload)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s", e.RunID, e.Type, e.SequenceNumber, e.HashPrev, e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChainIntegrity walks the log checking contiguous sequence numbers and
// hash_prev linkage. It returns true with no errors if the chain is intact.
func (s *Store) VerifyChainIntegrity() (bool, []string) {
	s.mu.Lock()
	events := append([]core.Event(nil), s.events...)
	s.mu.Unlock()

	var errs []string
	prevHash := core.ChainSentinel
	for i, e := range events {
		if e.SequenceNumber != int64(i) {
			errs = append(errs, fmt.Sprintf("event %d: sequence_number=%d, want %d", i, e.SequenceNumber, i))
		}
		if e.HashPrev != prevHash {
			errs = append(errs, fmt.Sprintf("event %d: hash_prev=%s, want %s", i, e.HashPrev, prevHash))
		}
		if want := computeHash(e); want != e.HashSelf {
			errs = append(errs, fmt.Sprintf("event %d: hash_self=%s, recomputed %s", i, e.HashSelf, want))
		}
		prevHash = e.HashSelf
	}
	return len(errs) == 0, errs
}

// checksum computes a stable digest over a snapshot's content, excluding the
// checksum field itself, so bundle round-trips can be compared byte-for-byte.
func checksum(snap core.Snapshot) string {
	snap.Checksum = ""
	body, _ := json.Marshal(snap)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Checksum exposes checksum to callers outside this package that need to
// recompute a snapshot's digest for comparison, such as replay verification.
func Checksum(snap core.Snapshot) string {
	return checksum(snap)
}
