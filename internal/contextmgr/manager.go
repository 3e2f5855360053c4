// Package contextmgr implements the kernel's three-tier bounded context
// window: pinned, working, and longterm, each under an independent token
// cap, with priority- and access-count-based eviction, relevance-scored
// selection, and lexical contradiction detection against pinned
// constraints.
package contextmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
	"github.com/goadesign/agent-kernel/internal/kernelerrors"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

// Manager owns the three context tiers for a single run.
type Manager struct {
	mu       sync.Mutex
	pinned   core.ContextTier
	working  core.ContextTier
	longterm core.ContextTier
	store    *eventstore.Store
	logger   telemetry.Logger
}

// New constructs a Manager with the default tier caps from core.
func New(store *eventstore.Store, logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Manager{
		pinned:   core.ContextTier{Kind: core.TierPinned, MaxTokens: core.DefaultPinnedCap},
		working:  core.ContextTier{Kind: core.TierWorking, MaxTokens: core.DefaultWorkingCap},
		longterm: core.ContextTier{Kind: core.TierLongterm, MaxTokens: core.DefaultLongtermCap},
		store:    store,
		logger:   logger,
	}
}

// State returns a deep-cloned snapshot of all three tiers.
func (m *Manager) State() core.ContextStateView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.ContextStateView{
		Pinned:   m.pinned.Clone(),
		Working:  m.working.Clone(),
		Longterm: m.longterm.Clone(),
	}
}

// Restore replaces all three tiers' contents with view, as captured in a
// snapshot. It does not emit any event: it is used only to reconstruct
// kernel state during replay, not as a normal mutation.
func (m *Manager) Restore(view core.ContextStateView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = view.Pinned.Clone()
	m.working = view.Working.Clone()
	m.longterm = view.Longterm.Clone()
}

func (m *Manager) tierPtr(kind core.TierKind) *core.ContextTier {
	switch kind {
	case core.TierPinned:
		return &m.pinned
	case core.TierWorking:
		return &m.working
	default:
		return &m.longterm
	}
}

// estimateTokens is a deterministic character-count-based heuristic: roughly
// one token per four characters of content, with a floor of one token for any
// non-empty content.
func estimateTokens(content string) int {
	if content == "" {
		return 0
	}
	tokens := (len(content) + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// AddItem admits content into the given tier, computing its token cost,
// attempting eviction via makeRoom when the tier's cap would otherwise
// overflow, and emitting CONTEXT_UPDATED{add} on success or
// ERROR_RAISED{context_overflow} on rejection.
func (m *Manager) AddItem(ctx context.Context, tierKind core.TierKind, content string, kind core.ContextItemKind, source string, priority int) (*core.ContextItem, error) {
	required := estimateTokens(content)

	m.mu.Lock()
	tier := m.tierPtr(tierKind)
	if tier.CurrentTokens+required > tier.MaxTokens {
		m.makeRoomLocked(tierKind, required)
	}
	if tier.CurrentTokens+required > tier.MaxTokens {
		m.mu.Unlock()
		kerr := kernelerrors.Newf(kernelerrors.KindContextOverflow, "cannot admit %d tokens into tier %s (cap %d, used %d)", required, tierKind, tier.MaxTokens, tier.CurrentTokens)
		m.store.Append(ctx, core.EventErrorRaised, kerr.Payload())
		return nil, kerr
	}

	now := time.Now().UTC()
	item := &core.ContextItem{
		ID:         core.NewID(),
		Content:    content,
		Kind:       kind,
		Source:     source,
		Tokens:     required,
		Priority:   priority,
		CreatedAt:  now,
		AccessedAt: now,
	}
	tier.Items = append(tier.Items, item)
	tier.CurrentTokens += required
	m.mu.Unlock()

	m.store.Append(ctx, core.EventContextUpdated, map[string]any{
		"operation": "add",
		"tier":      string(tierKind),
		"item_id":   item.ID,
		"tokens":    required,
	})
	return item.Clone(), nil
}

// makeRoomLocked evicts items from tierKind, lowest priority then lowest
// access_count first, excluding constraint items, until at least required
// additional tokens of headroom exist or no more items can be evicted.
// Items evicted from pinned or working are moved to longterm; items evicted
// from longterm are removed outright. Callers must hold m.mu.
func (m *Manager) makeRoomLocked(tierKind core.TierKind, required int) {
	tier := m.tierPtr(tierKind)
	candidates := make([]*core.ContextItem, 0, len(tier.Items))
	for _, it := range tier.Items {
		if it.Kind != core.ContextConstraint {
			candidates = append(candidates, it)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].AccessCount < candidates[j].AccessCount
	})

	for _, it := range candidates {
		if tier.CurrentTokens+required <= tier.MaxTokens {
			break
		}
		m.removeFromTierLocked(tierKind, it.ID)
		if tierKind == core.TierLongterm {
			continue
		}
		if tier.CurrentTokens+required <= tier.MaxTokens {
			m.admitToLongtermLocked(it)
			continue
		}
		m.admitToLongtermLocked(it)
	}
}

// admitToLongtermLocked places an evicted item into longterm, recursively
// making room there if necessary, and drops the item outright only if no
// room can be freed.
func (m *Manager) admitToLongtermLocked(item *core.ContextItem) {
	if m.longterm.CurrentTokens+item.Tokens > m.longterm.MaxTokens {
		m.makeRoomLocked(core.TierLongterm, item.Tokens)
	}
	if m.longterm.CurrentTokens+item.Tokens > m.longterm.MaxTokens {
		return
	}
	m.longterm.Items = append(m.longterm.Items, item)
	m.longterm.CurrentTokens += item.Tokens
}

func (m *Manager) removeFromTierLocked(tierKind core.TierKind, id string) *core.ContextItem {
	tier := m.tierPtr(tierKind)
	for i, it := range tier.Items {
		if it.ID == id {
			tier.Items = append(tier.Items[:i], tier.Items[i+1:]...)
			tier.CurrentTokens -= it.Tokens
			return it
		}
	}
	return nil
}

// MoveItem relocates item id to toTier. The move is atomic: if the target
// tier rejects admission, the item is restored to its source tier and
// MoveItem returns false.
func (m *Manager) MoveItem(ctx context.Context, id string, toTier core.TierKind) bool {
	m.mu.Lock()
	var fromTier core.TierKind
	var item *core.ContextItem
	for _, k := range []core.TierKind{core.TierPinned, core.TierWorking, core.TierLongterm} {
		if it := m.removeFromTierLocked(k, id); it != nil {
			fromTier = k
			item = it
			break
		}
	}
	if item == nil {
		m.mu.Unlock()
		return false
	}

	target := m.tierPtr(toTier)
	if target.CurrentTokens+item.Tokens > target.MaxTokens {
		m.makeRoomLocked(toTier, item.Tokens)
	}
	if target.CurrentTokens+item.Tokens > target.MaxTokens {
		source := m.tierPtr(fromTier)
		source.Items = append(source.Items, item)
		source.CurrentTokens += item.Tokens
		m.mu.Unlock()
		return false
	}
	target.Items = append(target.Items, item)
	target.CurrentTokens += item.Tokens
	m.mu.Unlock()

	m.store.Append(ctx, core.EventContextUpdated, map[string]any{
		"operation": "move",
		"item_id":   id,
		"from":      string(fromTier),
		"to":        string(toTier),
	})
	return true
}

// SummarizeContext produces a deterministic textual snapshot of all three
// tiers and appends CHECKPOINT_CREATED{trigger: periodic}.
func (m *Manager) SummarizeContext(ctx context.Context, actionCount int) string {
	m.mu.Lock()
	pinned := m.pinned.Clone()
	working := m.working.Clone()
	longterm := m.longterm.Clone()
	m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "context summary after %d action(s)\n", actionCount)
	fmt.Fprintf(&b, "pinned: %d item(s), %d/%d tokens\n", len(pinned.Items), pinned.CurrentTokens, pinned.MaxTokens)
	for _, it := range pinned.Items {
		fmt.Fprintf(&b, "  - %s\n", truncate(it.Content, 100))
	}
	fmt.Fprintf(&b, "working: %d item(s), %d/%d tokens\n", len(working.Items), working.CurrentTokens, working.MaxTokens)
	for i, it := range working.Items {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "  - %s\n", truncate(it.Content, 100))
	}
	fmt.Fprintf(&b, "longterm: %d item(s), %d/%d tokens\n", len(longterm.Items), longterm.CurrentTokens, longterm.MaxTokens)

	summary := b.String()
	m.store.Append(ctx, core.EventCheckpointCreated, map[string]any{
		"trigger": "periodic",
		"summary": summary,
	})
	return summary
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
